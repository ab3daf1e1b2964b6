package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "echolink",
			Subsystem: "discovery",
			Name:      "broadcasts_total",
			Help:      "Discovery datagrams sent by the server.",
		},
		[]string{"result"},
	)
	datagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "echolink",
			Subsystem: "discovery",
			Name:      "datagrams_received_total",
			Help:      "Discovery datagrams received by a client listener.",
		},
		[]string{"result"},
	)
	bridgeSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "echolink",
			Subsystem: "bridge",
			Name:      "sessions_total",
			Help:      "Server stream sessions by end reason.",
		},
		[]string{"reason"},
	)
	bridgeLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "echolink",
			Subsystem: "bridge",
			Name:      "lines_forwarded_total",
			Help:      "Lines forwarded from the data source to a client.",
		},
	)
	bridgeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "echolink",
			Subsystem: "bridge",
			Name:      "session_duration_seconds",
			Help:      "Server stream session duration in seconds.",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600},
		},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "echolink",
			Subsystem: "client",
			Name:      "connect_attempts_total",
			Help:      "Client TCP connect attempts.",
		},
		[]string{"result"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "echolink",
			Subsystem: "client",
			Name:      "transitions_total",
			Help:      "Connection supervisor state transitions.",
		},
		[]string{"from", "to"},
	)
	clientState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "echolink",
			Subsystem: "client",
			Name:      "state",
			Help:      "1 for the supervisor's current state, 0 otherwise.",
		},
		[]string{"state"},
	)
	linesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "echolink",
			Subsystem: "client",
			Name:      "lines_received_total",
			Help:      "Lines received from the server.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			broadcasts, datagrams,
			bridgeSessions, bridgeLines, bridgeDuration,
			connectAttempts, transitions, clientState, linesReceived,
		)
	})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordBroadcast(err error) {
	RegisterMetrics()
	broadcasts.WithLabelValues(resultLabel(err)).Inc()
}

func RecordDatagram(valid bool) {
	RegisterMetrics()
	label := "valid"
	if !valid {
		label = "invalid"
	}
	datagrams.WithLabelValues(label).Inc()
}

func RecordBridgeLine() {
	RegisterMetrics()
	bridgeLines.Inc()
}

func RecordBridgeSession(reason string, duration time.Duration) {
	RegisterMetrics()
	bridgeSessions.WithLabelValues(reason).Inc()
	bridgeDuration.Observe(duration.Seconds())
}

func RecordConnectAttempt(err error) {
	RegisterMetrics()
	connectAttempts.WithLabelValues(resultLabel(err)).Inc()
}

// RecordTransition counts one state change and moves the state gauge.
func RecordTransition(from, to string) {
	RegisterMetrics()
	transitions.WithLabelValues(from, to).Inc()
	clientState.WithLabelValues(from).Set(0)
	clientState.WithLabelValues(to).Set(1)
}

// SetClientState marks state as the only current supervisor state.
func SetClientState(state string) {
	RegisterMetrics()
	clientState.Reset()
	clientState.WithLabelValues(state).Set(1)
}

func RecordLineReceived() {
	RegisterMetrics()
	linesReceived.Inc()
}

// ServeMetrics exposes /metrics on addr until ctx ends.
// An empty addr disables the endpoint and returns nil immediately.
func ServeMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	if addr == "" {
		return nil
	}
	RegisterMetrics()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("metrics listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
