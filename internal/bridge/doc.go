// Package bridge forwards a subordinate data source's stdout to one TCP peer.
//
// Ownership boundary:
// - one Serve call owns the peer conn, the started process and its stdout
// - every exit path closes the conn, kills the process and reaps it
//
// Lines are opaque; each is written followed by exactly one "\n".
package bridge
