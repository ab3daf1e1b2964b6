// Package server runs the streaming server: the discovery broadcaster and a
// TCP accept loop that serves one client session at a time.
//
// Ownership boundary:
// - the TCP listener
// - broadcaster and metrics endpoint lifetimes
//
// Sessions themselves are owned by internal/bridge.
package server
