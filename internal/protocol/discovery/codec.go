// Package discovery encodes and decodes the UDP identity datagram
// "ECHO_SERVER:<port>". The datagram carries only the TCP port; the host is
// taken from the transport-level sender address.
package discovery

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Tag is the fixed identity prefix of every discovery datagram.
const Tag = "ECHO_SERVER"

// MaxDatagramLen is the largest payload Decode accepts. Listeners read one
// byte more so a datagram truncated by the socket is still rejected.
const MaxDatagramLen = 128

var (
	ErrInvalidMessage = errors.New("discovery: invalid message")
	ErrInvalidSender  = fmt.Errorf("%w: sender is not an IPv4 address", ErrInvalidMessage)
)

// Endpoint is a connectable TCP address learned from discovery.
type Endpoint struct {
	Host netip.Addr
	Port uint16
}

func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Host, e.Port)
}

func (e Endpoint) String() string {
	return e.AddrPort().String()
}

// IsValid reports whether e names an IPv4 host and a non-zero port.
func (e Endpoint) IsValid() bool {
	return e.Host.Is4() && e.Port != 0
}

// ParseEndpoint parses a static "host:port" endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("discovery: parse endpoint %q: %w", s, err)
	}
	ep := Endpoint{Host: ap.Addr().Unmap(), Port: ap.Port()}
	if !ep.IsValid() {
		return Endpoint{}, fmt.Errorf("discovery: endpoint %q must be IPv4 with a non-zero port", s)
	}
	return ep, nil
}

// Encode returns exactly "ECHO_SERVER:<port>".
func Encode(port uint16) []byte {
	buf := make([]byte, 0, len(Tag)+6)
	buf = append(buf, Tag...)
	buf = append(buf, ':')
	return strconv.AppendUint(buf, uint64(port), 10)
}

// Decode parses one datagram received from sender.
// Every malformed payload yields an error wrapping ErrInvalidMessage.
func Decode(payload []byte, sender netip.Addr) (Endpoint, error) {
	if len(payload) == 0 {
		return Endpoint{}, fmt.Errorf("%w: empty datagram", ErrInvalidMessage)
	}
	if len(payload) > MaxDatagramLen {
		return Endpoint{}, fmt.Errorf("%w: datagram exceeds %d bytes", ErrInvalidMessage, MaxDatagramLen)
	}
	fields := strings.Split(string(payload), ":")
	if len(fields) != 2 {
		return Endpoint{}, fmt.Errorf("%w: want 2 fields, got %d", ErrInvalidMessage, len(fields))
	}
	if fields[0] != Tag {
		return Endpoint{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidMessage, fields[0])
	}
	port, err := parsePort(fields[1])
	if err != nil {
		return Endpoint{}, err
	}
	host := sender.Unmap()
	if !host.Is4() {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidSender, sender)
	}
	return Endpoint{Host: host, Port: port}, nil
}

func parsePort(s string) (uint16, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty port", ErrInvalidMessage)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: non-numeric port %q", ErrInvalidMessage, s)
		}
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: port %q out of range", ErrInvalidMessage, s)
	}
	return uint16(v), nil
}
