package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/observability"
	wire "github.com/danmuck/echolink/internal/protocol/discovery"
	"github.com/rs/zerolog"
)

const (
	DefaultPort     uint16 = 9999
	DefaultInterval        = 2 * time.Second
)

var (
	ErrAdvertisePortRequired = errors.New("discovery: advertise port required")
	ErrInvalidBroadcastAddr  = errors.New("discovery: broadcast address must be IPv4")
)

// DefaultBroadcastAddr is the limited broadcast address of the local network.
var DefaultBroadcastAddr = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// BroadcastConfig configures the server identity broadcast.
type BroadcastConfig struct {
	// AdvertisePort is the TCP port carried in every datagram.
	AdvertisePort uint16
	// Port is the well-known UDP port clients listen on.
	Port          uint16
	BroadcastAddr netip.Addr
	Interval      time.Duration
}

func (c BroadcastConfig) withDefaults() BroadcastConfig {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if !c.BroadcastAddr.IsValid() {
		c.BroadcastAddr = DefaultBroadcastAddr
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Broadcaster periodically sends the encoded identity datagram.
// Nothing is acknowledged; a lost cycle is repaired by the next one.
type Broadcaster struct {
	cfg     BroadcastConfig
	payload []byte
	log     zerolog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewBroadcaster(cfg BroadcastConfig) (*Broadcaster, error) {
	cfg = cfg.withDefaults()
	if cfg.AdvertisePort == 0 {
		return nil, ErrAdvertisePortRequired
	}
	if !cfg.BroadcastAddr.Unmap().Is4() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBroadcastAddr, cfg.BroadcastAddr)
	}
	cfg.BroadcastAddr = cfg.BroadcastAddr.Unmap()
	return &Broadcaster{
		cfg:     cfg,
		payload: wire.Encode(cfg.AdvertisePort),
		log:     logging.For("discovery.broadcaster"),
	}, nil
}

// Run sends until ctx ends. Only socket setup errors are returned; send
// failures are logged and the loop continues.
func (b *Broadcaster) Run(ctx context.Context) error {
	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return fmt.Errorf("discovery: bind broadcast socket: %w", err)
	}
	defer pc.Close()

	dest := net.UDPAddrFromAddrPort(netip.AddrPortFrom(b.cfg.BroadcastAddr, b.cfg.Port))
	b.log.Info().
		Str("dest", dest.String()).
		Str("payload", string(b.payload)).
		Dur("interval", b.cfg.Interval).
		Msg("broadcasting")

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	var consecutive uint64
	for {
		if err := b.send(pc, dest); err != nil {
			consecutive++
			b.log.Warn().Err(err).Uint64("consecutive_failures", consecutive).Msg("broadcast send failed")
		} else {
			if consecutive > 0 {
				b.log.Info().Uint64("after_failures", consecutive).Msg("broadcast send recovered")
			}
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) send(pc net.PacketConn, dest net.Addr) error {
	_, err := pc.WriteTo(b.payload, dest)
	observability.RecordBroadcast(err)
	if err != nil {
		b.failed.Add(1)
		return err
	}
	b.sent.Add(1)
	b.log.Trace().Msg("broadcast sent")
	return nil
}

// Sent reports datagrams written successfully.
func (b *Broadcaster) Sent() uint64 { return b.sent.Load() }

// Failed reports datagrams whose send returned an error.
func (b *Broadcaster) Failed() uint64 { return b.failed.Load() }
