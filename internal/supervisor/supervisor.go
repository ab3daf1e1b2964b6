package supervisor

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/echolink/internal/discovery"
	"github.com/danmuck/echolink/internal/link"
	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/observability"
	"github.com/danmuck/echolink/internal/protocol/line"
	"github.com/danmuck/echolink/internal/protocol/session"
	"github.com/rs/zerolog"
)

// Discoverer yields one server endpoint per call.
type Discoverer interface {
	Discover(ctx context.Context) (discovery.Endpoint, error)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context) (discovery.Endpoint, error)

func (f DiscovererFunc) Discover(ctx context.Context) (discovery.Endpoint, error) {
	return f(ctx)
}

// StaticDiscoverer always yields the configured endpoint (fixed-address client).
type StaticDiscoverer discovery.Endpoint

func (s StaticDiscoverer) Discover(context.Context) (discovery.Endpoint, error) {
	return discovery.Endpoint(s), nil
}

// Dialer opens the TCP stream; *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// LineHandler receives each line of a connected session in receipt order.
type LineHandler func(ctx context.Context, line string)

type Config struct {
	Session session.Config
	// Rediscover sends the supervisor back to discovering after a session ends.
	Rediscover bool
	// RediscoverAfter, with Rediscover set, also abandons the endpoint after this
	// many consecutive connect failures. Zero keeps retrying the same endpoint.
	RediscoverAfter int
	// MaxLineBytes bounds one received line; zero disables the check.
	MaxLineBytes int
}

// Stats is a point-in-time snapshot of supervisor counters.
type Stats struct {
	ConnectAttempts     uint64
	ConnectFailures     uint64
	ConsecutiveFailures int
	Sessions            uint64
	LinesReceived       uint64
	LinkDowns           uint64
	Discoveries         uint64
}

type Supervisor struct {
	cfg        Config
	discoverer Discoverer
	link       link.Link
	handler    LineHandler
	dialer     Dialer
	hook       func(from, to State)
	log        zerolog.Logger

	backoff  *session.Backoff
	endpoint discovery.Endpoint
	haveEP   bool
	conn     net.Conn

	state           atomic.Int32
	consecutive     atomic.Int64
	connectAttempts atomic.Uint64
	connectFailures atomic.Uint64
	sessions        atomic.Uint64
	linesReceived   atomic.Uint64
	linkDowns       atomic.Uint64
	discoveries     atomic.Uint64
}

type Option func(*Supervisor)

func WithDialer(d Dialer) Option {
	return func(s *Supervisor) { s.dialer = d }
}

// WithTransitionHook observes every transition on the Run goroutine,
// including connecting->connecting retries.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(s *Supervisor) { s.hook = fn }
}

func New(cfg Config, d Discoverer, l link.Link, h LineHandler, opts ...Option) *Supervisor {
	cfg.Session = cfg.Session.WithDefaults()
	if l == nil {
		l = link.Static{}
	}
	if h == nil {
		h = func(context.Context, string) {}
	}
	s := &Supervisor{
		cfg:        cfg,
		discoverer: d,
		link:       l,
		handler:    h,
		dialer:     &net.Dialer{Timeout: cfg.Session.ConnectTimeout},
		log:        logging.For("supervisor"),
		backoff:    session.NewBackoff(cfg.Session.Backoff),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(int32(Discovering))
	observability.SetClientState(Discovering.String())
	return s
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) Stats() Stats {
	return Stats{
		ConnectAttempts:     s.connectAttempts.Load(),
		ConnectFailures:     s.connectFailures.Load(),
		ConsecutiveFailures: int(s.consecutive.Load()),
		Sessions:            s.sessions.Load(),
		LinesReceived:       s.linesReceived.Load(),
		LinkDowns:           s.linkDowns.Load(),
		Discoveries:         s.discoveries.Load(),
	}
}

// Run drives the state machine until ctx ends, returning ctx.Err().
// The only other return is net.ErrClosed from the discoverer, which means the
// discovery socket is gone for good.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.dropConn()
	s.log.Info().Str("state", s.State().String()).Msg("supervisor started")
	for {
		if err := ctx.Err(); err != nil {
			s.log.Info().Str("state", s.State().String()).Msg("supervisor stopped")
			return err
		}

		var next State
		switch s.State() {
		case Discovering:
			var err error
			if next, err = s.discover(ctx); err != nil {
				return err
			}
		case Connecting:
			next = s.connect(ctx)
		case LinkDown:
			next = s.recoverLink(ctx)
		case Connected:
			next = s.stream(ctx)
		}
		s.transition(next)
	}
}

func (s *Supervisor) transition(next State) {
	prev := s.State()
	s.state.Store(int32(next))
	observability.RecordTransition(prev.String(), next.String())
	if prev == next {
		s.log.Debug().Str("state", next.String()).Msg("retry")
	} else {
		s.log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("state change")
	}
	if s.hook != nil {
		s.hook(prev, next)
	}
}

func (s *Supervisor) discover(ctx context.Context) (State, error) {
	ep, err := s.discoverer.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Discovering, nil
		}
		if errors.Is(err, net.ErrClosed) {
			s.log.Error().Err(err).Msg("discovery socket closed")
			return Discovering, err
		}
		if errors.Is(err, discovery.ErrDiscoveryTimeout) {
			s.log.Warn().Err(err).Msg("no server found, still discovering")
		} else {
			s.log.Warn().Err(err).Msg("discovery receive failed, retrying")
		}
		s.sleep(ctx, s.cfg.Session.LinkRetryDelay)
		return Discovering, nil
	}
	s.discoveries.Add(1)
	s.endpoint = ep
	s.haveEP = true
	s.backoff.Reset()
	s.consecutive.Store(0)
	s.log.Info().Str("endpoint", ep.String()).Msg("server endpoint")
	return Connecting, nil
}

func (s *Supervisor) connect(ctx context.Context) State {
	if !s.haveEP {
		return Discovering
	}
	if !link.Ready(s.link) {
		return LinkDown
	}

	addr := s.endpoint.String()
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Session.ConnectTimeout)
	conn, err := s.dialer.DialContext(dialCtx, "tcp", addr)
	cancel()
	s.connectAttempts.Add(1)
	observability.RecordConnectAttempt(err)
	if err != nil {
		if ctx.Err() != nil {
			return Connecting
		}
		s.connectFailures.Add(1)
		failures := s.consecutive.Add(1)
		delay := s.backoff.Next()
		s.log.Warn().
			Err(err).
			Str("endpoint", addr).
			Int64("consecutive_failures", failures).
			Dur("retry_in", delay).
			Msg("tcp connect failed")
		s.sleep(ctx, delay)
		if s.cfg.Rediscover && s.cfg.RediscoverAfter > 0 && failures >= int64(s.cfg.RediscoverAfter) {
			s.haveEP = false
			return Discovering
		}
		return Connecting
	}

	s.backoff.Reset()
	s.consecutive.Store(0)
	s.conn = conn
	s.sessions.Add(1)
	s.log.Info().Str("endpoint", addr).Str("local", conn.LocalAddr().String()).Msg("connected")
	return Connected
}

func (s *Supervisor) recoverLink(ctx context.Context) State {
	s.linkDowns.Add(1)
	addr, _ := s.link.CurrentAddress()
	s.log.Warn().Str("addr", addr.String()).Msg("link down, requesting reconnect")
	if err := s.link.Connect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("link reconnect request failed")
	}
	s.sleep(ctx, s.cfg.Session.LinkRetryDelay)
	if !s.haveEP {
		return Discovering
	}
	return Connecting
}

func (s *Supervisor) stream(ctx context.Context) State {
	conn := s.conn
	defer s.dropConn()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	r := line.NewReader(conn, line.Limits{MaxLineBytes: s.cfg.MaxLineBytes})
	var received uint64
	for {
		if s.cfg.Session.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
		}
		text, err := r.ReadLine()
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				s.log.Info().Uint64("lines", received).Msg("server closed the stream")
			default:
				s.log.Warn().Err(err).Uint64("lines", received).Msg("stream read failed, reconnecting")
			}
			if s.cfg.Rediscover {
				s.haveEP = false
				return Discovering
			}
			return Connecting
		}
		received++
		s.linesReceived.Add(1)
		observability.RecordLineReceived()
		s.handler(ctx, text)
	}
}

func (s *Supervisor) dropConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
