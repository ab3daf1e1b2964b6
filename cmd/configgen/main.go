package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/echolink/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	kind := fs.String("kind", config.KindServer, "config kind: server|client")
	output := fs.StringP("output", "o", "", "output path for config template (defaults to per-kind cmd path)")
	validate := fs.Bool("validate", false, "validate an existing config file")
	input := fs.StringP("input", "i", "", "config path for validation (defaults to per-kind cmd path)")
	force := fs.Bool("force", false, "overwrite existing config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *validate {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := config.Load(path); err != nil {
			return err
		}
		fmt.Printf("Validated %s config at %s\n", *kind, path)
		return nil
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			return err
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		return err
	}
	fmt.Printf("Wrote %s config template to %s\n", *kind, target)
	return nil
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case config.KindServer:
		return "cmd/echoserver/config.toml", nil
	case config.KindClient:
		return "cmd/echoclient/config.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}
