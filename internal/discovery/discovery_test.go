package discovery

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/echolink/internal/testutil/testlog"
)

var loopback = netip.MustParseAddr("127.0.0.1")

func listenEphemeral(t *testing.T) (*Listener, uint16) {
	t.Helper()
	l, err := Listen(context.Background(), ListenConfig{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	port := uint16(l.LocalAddr().(*net.UDPAddr).Port)
	return l, port
}

func sendDatagrams(t *testing.T, port uint16, payloads ...string) {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(netip.AddrPortFrom(loopback, port)))
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()
	for _, p := range payloads {
		if _, err := conn.Write([]byte(p)); err != nil {
			t.Fatalf("write datagram %q: %v", p, err)
		}
	}
}

func TestListenerUsesSenderAddressAsHost(t *testing.T) {
	testlog.Start(t)
	l, port := listenEphemeral(t)
	sendDatagrams(t, port, "ECHO_SERVER:10.9.9.9:9000", "ECHO_SERVER:9000")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ep, err := l.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ep.Host != loopback {
		t.Fatalf("expected sender host %v, got %v", loopback, ep.Host)
	}
	if ep.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", ep.Port)
	}
}

func TestListenerSkipsInvalidDatagrams(t *testing.T) {
	testlog.Start(t)
	l, port := listenEphemeral(t)
	sendDatagrams(t, port, "", "hello", "ECHO_SERVER:70000", "ECHO_SERVER:abc", "ECHO_SERVER:4242")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ep, err := l.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ep.Port != 4242 {
		t.Fatalf("expected first valid endpoint port 4242, got %v", ep)
	}
}

func TestListenerRejectsTruncatedDatagram(t *testing.T) {
	testlog.Start(t)
	l, port := listenEphemeral(t)
	// The first 128 bytes alone would decode as port 9000.
	oversized := "ECHO_SERVER:" + strings.Repeat("0", 112) + "9000:garbage"
	sendDatagrams(t, port, oversized, "ECHO_SERVER:4243")

	ep, err := l.Discover(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if ep.Port != 4243 {
		t.Fatalf("expected oversized datagram skipped, got %v", ep)
	}
}

func TestListenerDiscoverTimeout(t *testing.T) {
	testlog.Start(t)
	l, port := listenEphemeral(t)
	sendDatagrams(t, port, "garbage")

	start := time.Now()
	_, err := l.Discover(context.Background(), 100*time.Millisecond)
	if !errors.Is(err, ErrDiscoveryTimeout) {
		t.Fatalf("expected ErrDiscoveryTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestListenerNextCanceled(t *testing.T) {
	testlog.Start(t)
	l, _ := listenEphemeral(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := l.Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrDiscoveryTimeout) {
		t.Fatalf("cancellation must not report a timeout: %v", err)
	}
}

func TestListenerReusableAfterTimeout(t *testing.T) {
	testlog.Start(t)
	l, port := listenEphemeral(t)
	if _, err := l.Discover(context.Background(), 50*time.Millisecond); !errors.Is(err, ErrDiscoveryTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	sendDatagrams(t, port, "ECHO_SERVER:8080")
	ep, err := l.Discover(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("discover after timeout: %v", err)
	}
	if ep.Port != 8080 {
		t.Fatalf("unexpected endpoint: %v", ep)
	}
}

func TestBroadcasterReachesListener(t *testing.T) {
	testlog.Start(t)
	l, port := listenEphemeral(t)

	b, err := NewBroadcaster(BroadcastConfig{
		AdvertisePort: 9000,
		Port:          port,
		BroadcastAddr: loopback,
		Interval:      20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	ep, err := l.Discover(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if ep.Host != loopback || ep.Port != 9000 {
		t.Fatalf("unexpected endpoint: %v", ep)
	}

	// A second cycle must arrive without any acknowledgement from the client.
	if _, err := l.Discover(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("broadcaster run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcaster did not stop on cancel")
	}
	if b.Sent() < 2 {
		t.Fatalf("expected at least two sends, got %d", b.Sent())
	}
	if b.Failed() != 0 {
		t.Fatalf("expected no failed sends on loopback, got %d", b.Failed())
	}
}

func TestOneShotDiscover(t *testing.T) {
	testlog.Start(t)
	// Bind once to learn a free port, then release it for Discover.
	probe, port := listenEphemeral(t)
	_ = probe.Close()

	b, err := NewBroadcaster(BroadcastConfig{AdvertisePort: 7001, Port: port, BroadcastAddr: loopback, Interval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	ep, err := Discover(context.Background(), ListenConfig{Port: port}, 2*time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if ep.Port != 7001 {
		t.Fatalf("unexpected endpoint: %v", ep)
	}
}

func TestNewBroadcasterValidation(t *testing.T) {
	testlog.Start(t)
	if _, err := NewBroadcaster(BroadcastConfig{}); !errors.Is(err, ErrAdvertisePortRequired) {
		t.Fatalf("expected ErrAdvertisePortRequired, got %v", err)
	}
	_, err := NewBroadcaster(BroadcastConfig{AdvertisePort: 9000, BroadcastAddr: netip.MustParseAddr("ff02::1")})
	if !errors.Is(err, ErrInvalidBroadcastAddr) {
		t.Fatalf("expected ErrInvalidBroadcastAddr, got %v", err)
	}
	b, err := NewBroadcaster(BroadcastConfig{AdvertisePort: 9000})
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	if b.cfg.Port != DefaultPort || b.cfg.Interval != DefaultInterval || b.cfg.BroadcastAddr != DefaultBroadcastAddr {
		t.Fatalf("unexpected defaults: %+v", b.cfg)
	}
	if string(b.payload) != "ECHO_SERVER:9000" {
		t.Fatalf("unexpected payload: %q", b.payload)
	}
}

func TestBroadcasterCountsSendFailures(t *testing.T) {
	testlog.Start(t)
	b, err := NewBroadcaster(BroadcastConfig{AdvertisePort: 9000, Port: 9, BroadcastAddr: loopback})
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_ = pc.Close()

	dest := net.UDPAddrFromAddrPort(netip.AddrPortFrom(loopback, 9))
	for i := 0; i < 2; i++ {
		if err := b.send(pc, dest); err == nil {
			t.Fatalf("expected send on a closed socket to fail")
		}
	}
	if b.Failed() != 2 || b.Sent() != 0 {
		t.Fatalf("expected 2 failed and 0 sent, got failed=%d sent=%d", b.Failed(), b.Sent())
	}
}
