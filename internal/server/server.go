package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/echolink/internal/bridge"
	"github.com/danmuck/echolink/internal/discovery"
	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/observability"
	"github.com/rs/zerolog"
)

var (
	ErrListen        = errors.New("server: listen failed")
	ErrNotListening  = errors.New("server: Listen must be called before Serve")
	ErrSourceMissing = errors.New("server: data source required")
)

const acceptRetryDelay = 100 * time.Millisecond

type Config struct {
	ListenAddr  string
	MetricsAddr string
	// Discovery.AdvertisePort is overwritten with the bound TCP port.
	Discovery discovery.BroadcastConfig
	Bridge    bridge.Config
}

type Server struct {
	cfg    Config
	bridge *bridge.Bridge
	log    zerolog.Logger
	ln     net.Listener

	sessions atomic.Uint64
}

func New(cfg Config, source bridge.Source) (*Server, error) {
	if source == nil {
		return nil, ErrSourceMissing
	}
	return &Server{
		cfg:    cfg,
		bridge: bridge.New(cfg.Bridge, source),
		log:    logging.For("server"),
	}, nil
}

// Listen binds the TCP listener. Failure is a startup error.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrListen, s.cfg.ListenAddr, err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr is the bound listener address; nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Sessions reports completed client sessions.
func (s *Server) Sessions() uint64 {
	return s.sessions.Load()
}

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the broadcaster, the optional metrics endpoint and the accept
// loop until ctx ends. A broadcaster or metrics bind failure stops the server
// and is returned.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return ErrNotListening
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bcfg := s.cfg.Discovery
	bcfg.AdvertisePort = uint16(s.ln.Addr().(*net.TCPAddr).Port)
	broadcaster, err := discovery.NewBroadcaster(bcfg)
	if err != nil {
		_ = s.ln.Close()
		return err
	}

	var wg sync.WaitGroup
	fatal := make(chan error, 2)
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				s.log.Error().Err(err).Str("task", name).Msg("background task failed")
				fatal <- err
				cancel()
			}
		}()
	}
	background("broadcaster", broadcaster.Run)
	if s.cfg.MetricsAddr != "" {
		background("metrics", func(ctx context.Context) error {
			return observability.ServeMetrics(ctx, s.cfg.MetricsAddr, s.log)
		})
	}

	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()

	s.acceptLoop(ctx)
	cancel()
	wg.Wait()

	select {
	case err := <-fatal:
		return err
	default:
		return nil
	}
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		// Sessions are served inline; further clients wait in the backlog.
		if _, err := s.bridge.Serve(ctx, conn); err != nil {
			s.log.Warn().Err(err).Msg("session failed")
		}
		s.sessions.Add(1)
	}
}
