// Package supervisor owns the client connection lifecycle.
//
// States:
// - discovering: waiting for a server endpoint
// - connecting: dialing the last known endpoint, fixed-delay retry forever
// - link_down: association lost, re-association requested
// - connected: reading the line stream until error or peer close
//
// Each state is one method returning the next state, so the WiFi, discovery
// and TCP failure domains recover independently. There is no terminal state;
// Run returns only when its context ends or discovery cannot run at all.
package supervisor
