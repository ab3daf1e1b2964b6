// Package link is the boundary to the host's network association (WiFi on
// embedded clients). The supervisor only asks whether the link is usable and
// requests re-association; radio control stays with the OS.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/danmuck/echolink/internal/logging"
	"github.com/danmuck/echolink/internal/tools"
)

const (
	KindStatic    = "static"
	KindInterface = "interface"
)

var (
	ErrUnknownKind       = errors.New("link: unknown kind")
	ErrInterfaceRequired = errors.New("link: interface name required")
	ErrNoAddress         = errors.New("link: no IPv4 address assigned")
)

// Link is the association collaborator used by the supervisor.
type Link interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	CurrentAddress() (netip.Addr, error)
}

// Config selects and configures a Link implementation.
type Config struct {
	Kind             string
	Interface        string
	ReconnectCommand []string
}

func New(cfg Config) (Link, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindStatic:
		return Static{}, nil
	case KindInterface:
		if strings.TrimSpace(cfg.Interface) == "" {
			return nil, ErrInterfaceRequired
		}
		return &Interface{
			Name:             strings.TrimSpace(cfg.Interface),
			ReconnectCommand: cfg.ReconnectCommand,
			Runner:           tools.ExecRunner{},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Ready reports a usable link: associated and holding a real address.
// An unspecified address (0.0.0.0) means DHCP has not finished yet.
func Ready(l Link) bool {
	if !l.IsConnected() {
		return false
	}
	addr, err := l.CurrentAddress()
	return err == nil && addr.IsValid() && !addr.IsUnspecified()
}

// WaitReady polls until Ready or ctx ends.
func WaitReady(ctx context.Context, l Link, poll time.Duration) error {
	log := logging.For("link")
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if Ready(l) {
			addr, _ := l.CurrentAddress()
			log.Info().Str("addr", addr.String()).Msg("link ready")
			return nil
		}
		addr, err := l.CurrentAddress()
		log.Info().Str("addr", addr.String()).AnErr("addr_err", err).Msg("waiting for association and address")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Static is an always-up link for wired or desktop hosts.
type Static struct {
	Addr netip.Addr
}

func (Static) Connect(context.Context) error { return nil }

func (Static) IsConnected() bool { return true }

func (s Static) CurrentAddress() (netip.Addr, error) {
	if s.Addr.IsValid() {
		return s.Addr, nil
	}
	return netip.AddrFrom4([4]byte{127, 0, 0, 1}), nil
}

// Interface tracks one named OS interface.
type Interface struct {
	Name string
	// ReconnectCommand, when set, is run by Connect (e.g. nmcli device connect wlan0).
	ReconnectCommand []string
	Runner           tools.CommandRunner

	lookup func(name string) (*net.Interface, []net.Addr, error)
}

func (i *Interface) state() (*net.Interface, []net.Addr, error) {
	if i.lookup != nil {
		return i.lookup(i.Name)
	}
	iface, err := net.InterfaceByName(i.Name)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil, err
	}
	return iface, addrs, nil
}

func (i *Interface) IsConnected() bool {
	iface, _, err := i.state()
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
}

func (i *Interface) CurrentAddress() (netip.Addr, error) {
	_, addrs, err := i.state()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, a := range addrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		if addr := prefix.Addr().Unmap(); addr.Is4() {
			return addr, nil
		}
	}
	return netip.IPv4Unspecified(), ErrNoAddress
}

// Connect requests re-association. Without a command it only logs and
// leaves recovery to the OS supplicant.
func (i *Interface) Connect(ctx context.Context) error {
	log := logging.For("link")
	if len(i.ReconnectCommand) == 0 {
		log.Info().Str("interface", i.Name).Msg("waiting for OS to re-associate")
		return nil
	}
	runner := i.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	_, stderr, code, err := runner.Run(ctx, i.ReconnectCommand[0], i.ReconnectCommand[1:]...)
	if err != nil {
		log.Warn().
			Err(err).
			Str("interface", i.Name).
			Int32("exit_code", code).
			Str("stderr", strings.TrimSpace(string(stderr))).
			Msg("reconnect command failed")
		return fmt.Errorf("link: reconnect %s: %w", i.Name, err)
	}
	log.Info().Str("interface", i.Name).Msg("reconnect command succeeded")
	return nil
}
