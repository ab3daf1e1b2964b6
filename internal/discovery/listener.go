package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/observability"
	wire "github.com/danmuck/echolink/internal/protocol/discovery"
	"github.com/rs/zerolog"
)

// Endpoint is the connectable address produced by discovery.
type Endpoint = wire.Endpoint

var ErrDiscoveryTimeout = errors.New("discovery: no valid datagram before timeout")

// ParseEndpoint parses a fixed "a.b.c.d:port" server address.
func ParseEndpoint(s string) (Endpoint, error) {
	return wire.ParseEndpoint(s)
}

// ListenConfig configures the client-side discovery socket.
type ListenConfig struct {
	// Port is the well-known discovery port; zero binds an ephemeral port.
	Port uint16
	// BindAddr defaults to all local interfaces.
	BindAddr string
}

// Listener receives discovery datagrams on one bound UDP socket.
type Listener struct {
	conn *net.UDPConn
	log  zerolog.Logger
	buf  []byte
}

// Listen binds the discovery socket. A bind failure is a startup error.
func Listen(ctx context.Context, cfg ListenConfig) (*Listener, error) {
	host := cfg.BindAddr
	if host == "" {
		host = "0.0.0.0"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(int(cfg.Port)))
	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: bind %s: %w", addr, err)
	}
	l := &Listener{
		conn: pc.(*net.UDPConn),
		log:  logging.For("discovery.listener"),
		buf:  make([]byte, wire.MaxDatagramLen+1),
	}
	l.log.Info().Str("addr", l.conn.LocalAddr().String()).Msg("listening for server broadcast")
	return l, nil
}

func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Listener) Close() error {
	return l.conn.Close()
}

// Next blocks until one valid datagram arrives and returns its Endpoint.
// Invalid datagrams are skipped. The wait is bounded only by ctx.
func (l *Listener) Next(ctx context.Context) (Endpoint, error) {
	deadline, _ := ctx.Deadline()
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return Endpoint{}, err
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Now())
		close(fired)
	})
	// A late wakeup must not leak its deadline into the next call.
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	for {
		n, src, err := l.conn.ReadFromUDPAddrPort(l.buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if errors.Is(ctxErr, context.DeadlineExceeded) {
					return Endpoint{}, fmt.Errorf("%w: %w", ErrDiscoveryTimeout, ctxErr)
				}
				return Endpoint{}, ctxErr
			}
			if errors.Is(err, os.ErrDeadlineExceeded) && !deadline.IsZero() {
				return Endpoint{}, fmt.Errorf("%w: %w", ErrDiscoveryTimeout, context.DeadlineExceeded)
			}
			return Endpoint{}, fmt.Errorf("discovery: receive: %w", err)
		}
		ep, err := wire.Decode(l.buf[:n], src.Addr())
		if err != nil {
			observability.RecordDatagram(false)
			l.log.Debug().Err(err).Str("from", src.String()).Msg("ignoring datagram")
			continue
		}
		observability.RecordDatagram(true)
		l.log.Info().Str("server", ep.String()).Msg("discovered server")
		return ep, nil
	}
}

// Discover waits for one valid datagram on the already bound socket, bounded
// by timeout when it is positive.
func (l *Listener) Discover(ctx context.Context, timeout time.Duration) (Endpoint, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return l.Next(ctx)
}

// Discover is the one-shot form: bind, wait for one endpoint, close.
func Discover(ctx context.Context, cfg ListenConfig, timeout time.Duration) (Endpoint, error) {
	l, err := Listen(ctx, cfg)
	if err != nil {
		return Endpoint{}, err
	}
	defer l.Close()
	return l.Discover(ctx, timeout)
}
