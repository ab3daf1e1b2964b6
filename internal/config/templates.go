package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	KindServer = "server"
	KindClient = "client"
)

// Template renders the default config for one binary. Both binaries read the
// [discovery] table; each keeps only its own section.
func Template(kind string) (string, error) {
	f := Default().ToFile()
	var doc any
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		doc = struct {
			Discovery DiscoveryFile `toml:"discovery"`
			Server    ServerFile    `toml:"server"`
		}{f.Discovery, f.Server}
	case KindClient:
		doc = struct {
			Discovery DiscoveryFile `toml:"discovery"`
			Client    ClientFile    `toml:"client"`
		}{f.Discovery, f.Client}
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# echolink %s config\n\n", kind)
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return buf.String(), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
