// echoclient discovers an echoserver on the LAN, keeps a TCP session to it
// alive and prints every received line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/echolink/internal/config"
	"github.com/danmuck/echolink/internal/discovery"
	"github.com/danmuck/echolink/internal/link"
	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/observability"
	"github.com/danmuck/echolink/internal/supervisor"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "echoclient: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("echoclient", pflag.ContinueOnError)
	opts.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadClientConfig(opts, fs)
	if err != nil {
		return err
	}
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = runClient(ctx, cfg, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runClient(ctx context.Context, cfg config.Config, out io.Writer) error {
	log := logging.For("echoclient")

	lnk, err := link.New(cfg.Client.Link)
	if err != nil {
		return err
	}
	if err := link.WaitReady(ctx, lnk, cfg.Client.LinkRetryDelay); err != nil {
		return err
	}

	d, closeDiscoverer, err := newDiscoverer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDiscoverer()

	if cfg.Client.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.Client.MetricsAddr, log); err != nil {
				log.Warn().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	handler := func(_ context.Context, line string) {
		fmt.Fprintf(out, "Received: %s\n", line)
	}
	sup := supervisor.New(cfg.SupervisorConfig(), d, lnk, handler)
	return sup.Run(ctx)
}

// newDiscoverer binds the discovery socket up front so a bind failure is a
// startup error, or returns the fixed endpoint when discovery is off.
func newDiscoverer(ctx context.Context, cfg config.Config) (supervisor.Discoverer, func(), error) {
	if !cfg.Client.Discovery {
		ep, err := cfg.FixedEndpoint()
		if err != nil {
			return nil, nil, err
		}
		return supervisor.StaticDiscoverer(ep), func() {}, nil
	}

	l, err := discovery.Listen(ctx, cfg.ListenConfig())
	if err != nil {
		return nil, nil, err
	}
	timeout := cfg.Discovery.Timeout
	d := supervisor.DiscovererFunc(func(ctx context.Context) (discovery.Endpoint, error) {
		return l.Discover(ctx, timeout)
	})
	return d, func() { _ = l.Close() }, nil
}
