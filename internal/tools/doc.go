// Package tools provides host process helpers.
//
// Ownership boundary:
// - one-shot command execution (link reassociation hooks)
// - long-lived subordinate processes whose stdout is streamed to a peer
package tools
