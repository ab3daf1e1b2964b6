package config

// File is the on-disk TOML shape. Durations are Go duration strings.
type File struct {
	Discovery DiscoveryFile `toml:"discovery"`
	Server    ServerFile    `toml:"server"`
	Client    ClientFile    `toml:"client"`
}

type DiscoveryFile struct {
	Port          int    `toml:"port"`
	Interval      string `toml:"interval"`
	BroadcastAddr string `toml:"broadcast_addr"`
	Timeout       string `toml:"timeout"`
}

type ServerFile struct {
	ListenAddr   string     `toml:"listen_addr"`
	MetricsAddr  string     `toml:"metrics_addr"`
	WriteTimeout string     `toml:"write_timeout"`
	MaxLineBytes int        `toml:"max_line_bytes"`
	Source       SourceFile `toml:"source"`
}

type SourceFile struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Dir     string   `toml:"dir"`
	Env     []string `toml:"env"`
}

type ClientFile struct {
	Discovery       bool     `toml:"discovery"`
	Endpoint        string   `toml:"endpoint"`
	Rediscover      bool     `toml:"rediscover"`
	RediscoverAfter int      `toml:"rediscover_after"`
	ConnectTimeout  string   `toml:"connect_timeout"`
	RetryDelay      string   `toml:"retry_delay"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
	RetryMaxDelay   string   `toml:"retry_max_delay"`
	LinkRetryDelay  string   `toml:"link_retry_delay"`
	ReadTimeout     string   `toml:"read_timeout"`
	MaxLineBytes    int      `toml:"max_line_bytes"`
	MetricsAddr     string   `toml:"metrics_addr"`
	Link            LinkFile `toml:"link"`
}

type LinkFile struct {
	Kind             string   `toml:"kind"`
	Interface        string   `toml:"interface"`
	ReconnectCommand []string `toml:"reconnect_command"`
}

// ToFile renders a resolved config back into its file shape.
func (c Config) ToFile() File {
	return File{
		Discovery: DiscoveryFile{
			Port:          int(c.Discovery.Port),
			Interval:      c.Discovery.Interval.String(),
			BroadcastAddr: c.Discovery.BroadcastAddr.String(),
			Timeout:       c.Discovery.Timeout.String(),
		},
		Server: ServerFile{
			ListenAddr:   c.Server.ListenAddr,
			MetricsAddr:  c.Server.MetricsAddr,
			WriteTimeout: c.Server.WriteTimeout.String(),
			MaxLineBytes: c.Server.MaxLineBytes,
			Source: SourceFile{
				Command: c.Server.Source.Command,
				Args:    nonNil(c.Server.Source.Args),
				Dir:     c.Server.Source.Dir,
				Env:     nonNil(c.Server.Source.Env),
			},
		},
		Client: ClientFile{
			Discovery:       c.Client.Discovery,
			Endpoint:        c.Client.Endpoint,
			Rediscover:      c.Client.Rediscover,
			RediscoverAfter: c.Client.RediscoverAfter,
			ConnectTimeout:  c.Client.ConnectTimeout.String(),
			RetryDelay:      c.Client.RetryDelay.String(),
			RetryMultiplier: c.Client.RetryMultiplier,
			RetryMaxDelay:   c.Client.RetryMaxDelay.String(),
			LinkRetryDelay:  c.Client.LinkRetryDelay.String(),
			ReadTimeout:     c.Client.ReadTimeout.String(),
			MaxLineBytes:    c.Client.MaxLineBytes,
			MetricsAddr:     c.Client.MetricsAddr,
			Link: LinkFile{
				Kind:             c.Client.Link.Kind,
				Interface:        c.Client.Link.Interface,
				ReconnectCommand: nonNil(c.Client.Link.ReconnectCommand),
			},
		},
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
