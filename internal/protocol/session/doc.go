// Package session owns client session timing and retry helpers.
//
// Ownership boundary:
// - connect/read/write timeouts
// - retry backoff (fixed by default, exponential when configured)
package session
