package main

import (
	"strings"

	"github.com/danmuck/echolink/internal/config"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	endpoint   string
	rediscover bool
	metrics    string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "path to TOML config; built-in defaults when empty")
	fs.StringVar(&o.endpoint, "endpoint", "", "connect to host:port directly and skip discovery")
	fs.BoolVar(&o.rediscover, "rediscover", false, "discover again after every session")
	fs.StringVar(&o.metrics, "metrics", "", "override client.metrics_addr")
}

func loadClientConfig(o options, fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if path := strings.TrimSpace(o.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if fs.Changed("endpoint") {
		cfg.Client.Discovery = false
		cfg.Client.Endpoint = strings.TrimSpace(o.endpoint)
	}
	if fs.Changed("rediscover") {
		cfg.Client.Rediscover = o.rediscover
	}
	if fs.Changed("metrics") {
		cfg.Client.MetricsAddr = strings.TrimSpace(o.metrics)
	}
	return cfg, cfg.Validate()
}
