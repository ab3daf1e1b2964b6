package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines client session timing.
type Config struct {
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for one line; zero waits indefinitely since
	// the stream carries no heartbeat.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LinkRetryDelay time.Duration
	Backoff        BackoffConfig
}

// DefaultConfig returns a fixed 1s retry with no growth and no cap.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    0,
		WriteTimeout:   10 * time.Second,
		LinkRetryDelay: time.Second,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   1.0,
			MaxDelay:     0,
			Jitter:       false,
		},
	}
}

// WithDefaults fills zero-valued timing fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.LinkRetryDelay <= 0 {
		c.LinkRetryDelay = def.LinkRetryDelay
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = 1.0
	}
	return c
}
