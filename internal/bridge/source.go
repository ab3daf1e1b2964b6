package bridge

import (
	"context"
	"io"

	"github.com/danmuck/echolink/internal/tools"
)

// Process is a running data source.
type Process interface {
	Stdout() io.Reader
	Kill() error
	// Wait reaps the process; it is called only after Stdout reads stop.
	Wait() error
	ExitCode() int32
}

// Source starts one data source per session.
type Source interface {
	Start(ctx context.Context) (Process, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Process, error)

func (f SourceFunc) Start(ctx context.Context) (Process, error) {
	return f(ctx)
}

// ExecSource runs an external command as the data source.
type ExecSource struct {
	Spec tools.Spec
}

func (s ExecSource) Start(ctx context.Context) (Process, error) {
	p, err := tools.Start(ctx, s.Spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}
