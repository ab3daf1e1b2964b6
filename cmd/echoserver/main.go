// echoserver advertises itself on the LAN and streams the stdout lines of a
// data source process to one connected client at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "echoserver: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	fs := pflag.NewFlagSet("echoserver", pflag.ContinueOnError)
	opts.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadServerConfig(opts, fs)
	if err != nil {
		return err
	}
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg.ServerConfig(), cfg.Source())
	if err != nil {
		return err
	}
	log.Info().
		Str("listen", cfg.Server.ListenAddr).
		Uint16("discovery_port", cfg.Discovery.Port).
		Str("source", cfg.Server.Source.String()).
		Msg("echoserver starting")
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info().Uint64("sessions", srv.Sessions()).Msg("echoserver stopped")
	return nil
}
