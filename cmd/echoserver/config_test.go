package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/echolink/internal/config"
	"github.com/danmuck/echolink/internal/testutil/testlog"
	"github.com/spf13/pflag"
)

func parse(t *testing.T, args ...string) (options, *pflag.FlagSet) {
	t.Helper()
	var opts options
	fs := pflag.NewFlagSet("echoserver", pflag.ContinueOnError)
	opts.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return opts, fs
}

func TestLoadServerConfigDefaults(t *testing.T) {
	testlog.Start(t)
	opts, fs := parse(t)
	cfg, err := loadServerConfig(opts, fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != config.Default().Server.ListenAddr {
		t.Fatalf("unexpected listen addr: %q", cfg.Server.ListenAddr)
	}
}

func TestLoadServerConfigFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "server.toml")
	body := "[server]\nlisten_addr = \"0.0.0.0:9000\"\nmetrics_addr = \"127.0.0.1:9100\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	opts, fs := parse(t, "--config", path, "--listen", "127.0.0.1:9001", "--source", "python3,gesture.py")
	cfg, err := loadServerConfig(opts, fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9001" {
		t.Fatalf("expected flag override, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.MetricsAddr != "127.0.0.1:9100" {
		t.Fatalf("expected file metrics addr, got %q", cfg.Server.MetricsAddr)
	}
	if cfg.Server.Source.Command != "python3" || len(cfg.Server.Source.Args) != 1 || cfg.Server.Source.Args[0] != "gesture.py" {
		t.Fatalf("unexpected source: %+v", cfg.Server.Source)
	}
}

func TestLoadServerConfigRejectsEmptyListen(t *testing.T) {
	testlog.Start(t)
	opts, fs := parse(t, "--listen", " ")
	if _, err := loadServerConfig(opts, fs); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
