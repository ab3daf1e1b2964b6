package main

import (
	"strings"

	"github.com/danmuck/echolink/internal/config"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	listen     string
	metrics    string
	command    []string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "path to TOML config; built-in defaults when empty")
	fs.StringVar(&o.listen, "listen", "", "override server.listen_addr")
	fs.StringVar(&o.metrics, "metrics", "", "override server.metrics_addr")
	fs.StringSliceVar(&o.command, "source", nil, "override server.source command and args, comma separated")
}

// loadServerConfig resolves the file (or defaults) and applies changed flags.
func loadServerConfig(o options, fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if path := strings.TrimSpace(o.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if fs.Changed("listen") {
		cfg.Server.ListenAddr = strings.TrimSpace(o.listen)
	}
	if fs.Changed("metrics") {
		cfg.Server.MetricsAddr = strings.TrimSpace(o.metrics)
	}
	if fs.Changed("source") && len(o.command) > 0 {
		cfg.Server.Source.Command = o.command[0]
		cfg.Server.Source.Args = o.command[1:]
	}
	return cfg, cfg.Validate()
}
