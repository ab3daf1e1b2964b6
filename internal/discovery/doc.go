// Package discovery owns the UDP identity broadcast and the client-side
// listener that turns one valid datagram into a connectable Endpoint.
//
// Ownership boundary:
// - server: Broadcaster owns its UDP socket for the process lifetime
// - client: Listener owns the bound discovery socket until Close
//
// The wire format lives in internal/protocol/discovery.
package discovery
