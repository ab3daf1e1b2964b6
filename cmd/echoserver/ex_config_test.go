package main

import (
	"testing"

	"github.com/danmuck/echolink/internal/config"
	"github.com/danmuck/echolink/internal/testutil/testlog"
)

func TestExampleConfigLoads(t *testing.T) {
	testlog.Start(t)
	cfg, err := config.Load("ex.config.toml")
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Server.Source.Command != "python3" || cfg.Server.MetricsAddr != "127.0.0.1:9100" {
		t.Fatalf("unexpected server section: %+v", cfg.Server)
	}
}
