package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/observability"
	"github.com/danmuck/echolink/internal/protocol/line"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrSourceStart = errors.New("bridge: source start failed")

// EndReason names why a session stopped.
type EndReason string

const (
	ReasonSourceEOF   EndReason = "source_eof"
	ReasonSourceError EndReason = "source_error"
	ReasonPeerClosed  EndReason = "peer_closed"
	ReasonCanceled    EndReason = "canceled"
	ReasonStartFailed EndReason = "start_failed"
)

type Config struct {
	// WriteTimeout bounds one line write to the peer; zero disables it.
	WriteTimeout time.Duration
	// MaxLineBytes bounds one source line; zero disables the check.
	MaxLineBytes int
}

// Result summarizes one served session.
type Result struct {
	SessionID string
	Remote    string
	Lines     uint64
	Reason    EndReason
	ExitCode  int32
	Duration  time.Duration
}

type Bridge struct {
	cfg    Config
	source Source
	log    zerolog.Logger
}

func New(cfg Config, source Source) *Bridge {
	return &Bridge{cfg: cfg, source: source, log: logging.For("bridge")}
}

// Serve runs one session on conn and always closes it. Only a source start
// failure is returned as an error; every other end is reported in Result.
func (b *Bridge) Serve(ctx context.Context, conn net.Conn) (res Result, err error) {
	res = Result{SessionID: uuid.NewString(), Remote: conn.RemoteAddr().String()}
	log := b.log.With().Str("session", res.SessionID).Str("remote", res.Remote).Logger()
	start := time.Now()
	log.Info().Msg("client connected")

	defer func() {
		_ = conn.Close()
		res.Duration = time.Since(start)
		observability.RecordBridgeSession(string(res.Reason), res.Duration)
		log.Info().
			Str("reason", string(res.Reason)).
			Uint64("lines", res.Lines).
			Int32("exit_code", res.ExitCode).
			Dur("duration", res.Duration).
			Msg("session ended")
	}()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc, err := b.source.Start(sessCtx)
	if err != nil {
		res.Reason = ReasonStartFailed
		log.Error().Err(err).Msg("data source did not start")
		return res, fmt.Errorf("%w: %w", ErrSourceStart, err)
	}
	defer func() {
		cancel()
		_ = proc.Kill()
		_ = proc.Wait()
		res.ExitCode = proc.ExitCode()
	}()
	stopKill := context.AfterFunc(sessCtx, func() { _ = proc.Kill() })
	defer stopKill()

	// The peer never sends. A reset ends the session at once; a clean EOF may
	// be a half-close from a peer that still reads, so a dead peer in that
	// case surfaces on the next failed write.
	var peerGone atomic.Bool
	go func() {
		if _, err := io.Copy(io.Discard, conn); err == nil {
			return
		}
		peerGone.Store(true)
		cancel()
	}()

	r := line.NewReader(proc.Stdout(), line.Limits{MaxLineBytes: b.cfg.MaxLineBytes})
	w := line.NewWriter(conn)
	for {
		text, rerr := r.ReadLine()
		if rerr != nil {
			switch {
			case peerGone.Load():
				res.Reason = ReasonPeerClosed
			case ctx.Err() != nil:
				res.Reason = ReasonCanceled
			case errors.Is(rerr, io.EOF):
				res.Reason = ReasonSourceEOF
			default:
				res.Reason = ReasonSourceError
				log.Warn().Err(rerr).Msg("data source read failed")
			}
			return res, nil
		}

		log.Debug().Str("line", text).Msg("forward")
		if b.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
		}
		if werr := w.WriteLine(text); werr != nil {
			if ctx.Err() != nil {
				res.Reason = ReasonCanceled
			} else {
				res.Reason = ReasonPeerClosed
				log.Info().Err(werr).Msg("peer write failed")
			}
			return res, nil
		}
		res.Lines++
		observability.RecordBridgeLine()
	}
}
