package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/echolink/internal/discovery"
	"github.com/danmuck/echolink/internal/link"
	"github.com/danmuck/echolink/internal/protocol/line"
	"github.com/danmuck/echolink/internal/tools"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Discovery Discovery
	Server    Server
	Client    Client
}

type Discovery struct {
	Port          uint16
	Interval      time.Duration
	BroadcastAddr netip.Addr
	// Timeout bounds one discovery wait on the client; zero waits forever.
	Timeout time.Duration
}

type Server struct {
	ListenAddr   string
	MetricsAddr  string
	WriteTimeout time.Duration
	MaxLineBytes int
	Source       tools.Spec
}

type Client struct {
	// Discovery false connects straight to Endpoint.
	Discovery       bool
	Endpoint        string
	Rediscover      bool
	RediscoverAfter int
	ConnectTimeout  time.Duration
	RetryDelay      time.Duration
	RetryMultiplier float64
	RetryMaxDelay   time.Duration
	LinkRetryDelay  time.Duration
	ReadTimeout     time.Duration
	MaxLineBytes    int
	MetricsAddr     string
	Link            link.Config
}

func Default() Config {
	return Config{
		Discovery: Discovery{
			Port:          discovery.DefaultPort,
			Interval:      discovery.DefaultInterval,
			BroadcastAddr: discovery.DefaultBroadcastAddr,
		},
		Server: Server{
			ListenAddr:   ":9000",
			WriteTimeout: 10 * time.Second,
			MaxLineBytes: line.DefaultLimits().MaxLineBytes,
			Source: tools.Spec{
				Command: "replaysource",
				Args:    []string{"--loop"},
			},
		},
		Client: Client{
			Discovery:       true,
			ConnectTimeout:  5 * time.Second,
			RetryDelay:      time.Second,
			RetryMultiplier: 1,
			LinkRetryDelay:  time.Second,
			MaxLineBytes:    line.DefaultLimits().MaxLineBytes,
			Link:            link.Config{Kind: link.KindStatic},
		},
	}
}

// Load decodes path and applies every defined key on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg *Config, raw File, meta toml.MetaData) error {
	var err error
	defined := func(key ...string) bool { return meta.IsDefined(key...) }
	duration := func(dst *time.Duration, v string, key ...string) {
		if err != nil || !defined(key...) {
			return
		}
		d, perr := time.ParseDuration(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("parse %s: %w", strings.Join(key, "."), perr)
			return
		}
		*dst = d
	}

	if defined("discovery", "port") {
		if raw.Discovery.Port < 1 || raw.Discovery.Port > 65535 {
			return fmt.Errorf("discovery.port out of range: %d", raw.Discovery.Port)
		}
		cfg.Discovery.Port = uint16(raw.Discovery.Port)
	}
	duration(&cfg.Discovery.Interval, raw.Discovery.Interval, "discovery", "interval")
	duration(&cfg.Discovery.Timeout, raw.Discovery.Timeout, "discovery", "timeout")
	if defined("discovery", "broadcast_addr") {
		addr, perr := netip.ParseAddr(strings.TrimSpace(raw.Discovery.BroadcastAddr))
		if perr != nil {
			return fmt.Errorf("parse discovery.broadcast_addr: %w", perr)
		}
		cfg.Discovery.BroadcastAddr = addr
	}

	if defined("server", "listen_addr") {
		cfg.Server.ListenAddr = strings.TrimSpace(raw.Server.ListenAddr)
	}
	if defined("server", "metrics_addr") {
		cfg.Server.MetricsAddr = strings.TrimSpace(raw.Server.MetricsAddr)
	}
	duration(&cfg.Server.WriteTimeout, raw.Server.WriteTimeout, "server", "write_timeout")
	if defined("server", "max_line_bytes") {
		cfg.Server.MaxLineBytes = raw.Server.MaxLineBytes
	}
	if defined("server", "source", "command") {
		cfg.Server.Source.Command = strings.TrimSpace(raw.Server.Source.Command)
	}
	if defined("server", "source", "args") {
		cfg.Server.Source.Args = raw.Server.Source.Args
	}
	if defined("server", "source", "dir") {
		cfg.Server.Source.Dir = strings.TrimSpace(raw.Server.Source.Dir)
	}
	if defined("server", "source", "env") {
		cfg.Server.Source.Env = raw.Server.Source.Env
	}

	c := &cfg.Client
	if defined("client", "discovery") {
		c.Discovery = raw.Client.Discovery
	}
	if defined("client", "endpoint") {
		c.Endpoint = strings.TrimSpace(raw.Client.Endpoint)
	}
	if defined("client", "rediscover") {
		c.Rediscover = raw.Client.Rediscover
	}
	if defined("client", "rediscover_after") {
		c.RediscoverAfter = raw.Client.RediscoverAfter
	}
	duration(&c.ConnectTimeout, raw.Client.ConnectTimeout, "client", "connect_timeout")
	duration(&c.RetryDelay, raw.Client.RetryDelay, "client", "retry_delay")
	if defined("client", "retry_multiplier") {
		c.RetryMultiplier = raw.Client.RetryMultiplier
	}
	duration(&c.RetryMaxDelay, raw.Client.RetryMaxDelay, "client", "retry_max_delay")
	duration(&c.LinkRetryDelay, raw.Client.LinkRetryDelay, "client", "link_retry_delay")
	duration(&c.ReadTimeout, raw.Client.ReadTimeout, "client", "read_timeout")
	if defined("client", "max_line_bytes") {
		c.MaxLineBytes = raw.Client.MaxLineBytes
	}
	if defined("client", "metrics_addr") {
		c.MetricsAddr = strings.TrimSpace(raw.Client.MetricsAddr)
	}
	if defined("client", "link", "kind") {
		c.Link.Kind = strings.ToLower(strings.TrimSpace(raw.Client.Link.Kind))
	}
	if defined("client", "link", "interface") {
		c.Link.Interface = strings.TrimSpace(raw.Client.Link.Interface)
	}
	if defined("client", "link", "reconnect_command") {
		c.Link.ReconnectCommand = raw.Client.Link.ReconnectCommand
	}
	return err
}

// Validate checks the resolved config; every failure wraps ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Discovery.Port == 0 {
		return errors.New("discovery.port is required")
	}
	if c.Discovery.Interval <= 0 {
		return errors.New("discovery.interval must be positive")
	}
	if !c.Discovery.BroadcastAddr.Is4() {
		return fmt.Errorf("discovery.broadcast_addr must be IPv4: %s", c.Discovery.BroadcastAddr)
	}
	if c.Discovery.Timeout < 0 {
		return errors.New("discovery.timeout must not be negative")
	}

	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if c.Server.WriteTimeout < 0 {
		return errors.New("server.write_timeout must not be negative")
	}
	if c.Server.MaxLineBytes < 0 || c.Client.MaxLineBytes < 0 {
		return errors.New("max_line_bytes must not be negative")
	}
	if c.Server.Source.Command == "" {
		return errors.New("server.source.command is required")
	}

	if !c.Client.Discovery {
		if c.Client.Endpoint == "" {
			return errors.New("client.endpoint is required when client.discovery is false")
		}
		if _, err := discovery.ParseEndpoint(c.Client.Endpoint); err != nil {
			return fmt.Errorf("client.endpoint: %w", err)
		}
	}
	if c.Client.RediscoverAfter < 0 {
		return errors.New("client.rediscover_after must not be negative")
	}
	if c.Client.ConnectTimeout <= 0 {
		return errors.New("client.connect_timeout must be positive")
	}
	if c.Client.RetryDelay <= 0 {
		return errors.New("client.retry_delay must be positive")
	}
	if c.Client.RetryMultiplier < 1 {
		return errors.New("client.retry_multiplier must be >= 1")
	}
	if c.Client.RetryMaxDelay < 0 || c.Client.ReadTimeout < 0 {
		return errors.New("client timeouts must not be negative")
	}
	if c.Client.LinkRetryDelay <= 0 {
		return errors.New("client.link_retry_delay must be positive")
	}
	switch c.Client.Link.Kind {
	case "", link.KindStatic:
	case link.KindInterface:
		if c.Client.Link.Interface == "" {
			return errors.New("client.link.interface is required for kind interface")
		}
	default:
		return fmt.Errorf("client.link.kind unknown: %q", c.Client.Link.Kind)
	}
	return nil
}
