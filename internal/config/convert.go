package config

import (
	"github.com/danmuck/echolink/internal/bridge"
	"github.com/danmuck/echolink/internal/discovery"
	"github.com/danmuck/echolink/internal/protocol/session"
	"github.com/danmuck/echolink/internal/server"
	"github.com/danmuck/echolink/internal/supervisor"
)

func (c Config) ServerConfig() server.Config {
	return server.Config{
		ListenAddr:  c.Server.ListenAddr,
		MetricsAddr: c.Server.MetricsAddr,
		Discovery: discovery.BroadcastConfig{
			Port:          c.Discovery.Port,
			BroadcastAddr: c.Discovery.BroadcastAddr,
			Interval:      c.Discovery.Interval,
		},
		Bridge: bridge.Config{
			WriteTimeout: c.Server.WriteTimeout,
			MaxLineBytes: c.Server.MaxLineBytes,
		},
	}
}

func (c Config) Source() bridge.ExecSource {
	return bridge.ExecSource{Spec: c.Server.Source}
}

func (c Config) ListenConfig() discovery.ListenConfig {
	return discovery.ListenConfig{Port: c.Discovery.Port}
}

func (c Config) SupervisorConfig() supervisor.Config {
	return supervisor.Config{
		Session: session.Config{
			ConnectTimeout: c.Client.ConnectTimeout,
			ReadTimeout:    c.Client.ReadTimeout,
			LinkRetryDelay: c.Client.LinkRetryDelay,
			Backoff: session.BackoffConfig{
				InitialDelay: c.Client.RetryDelay,
				Multiplier:   c.Client.RetryMultiplier,
				MaxDelay:     c.Client.RetryMaxDelay,
			},
		},
		Rediscover:      c.Client.Rediscover,
		RediscoverAfter: c.Client.RediscoverAfter,
		MaxLineBytes:    c.Client.MaxLineBytes,
	}
}

// FixedEndpoint parses client.endpoint for the no-discovery client.
func (c Config) FixedEndpoint() (discovery.Endpoint, error) {
	return discovery.ParseEndpoint(c.Client.Endpoint)
}
