//go:build !unix

package discovery

import "syscall"

// The net package already enables SO_BROADCAST on datagram sockets here.
func broadcastControl(_, _ string, _ syscall.RawConn) error { return nil }

func reuseControl(_, _ string, _ syscall.RawConn) error { return nil }
