package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/echolink/internal/logging"
	"github.com/rs/zerolog"
)

var ErrCommandRequired = errors.New("tools: command required")

// DefaultWaitDelay bounds how long Wait lingers on pipes held open by
// descendants after the process itself has exited.
const DefaultWaitDelay = 2 * time.Second

// Spec describes a subordinate process.
type Spec struct {
	Command string
	Args    []string
	Dir     string
	// Env entries are appended to the current environment.
	Env []string
}

func (s Spec) String() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// Process is a started subordinate whose stdout is owned by the caller.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *lineLogger

	waitOnce sync.Once
	waitErr  error
}

// Start launches spec. The process is killed when ctx ends.
func Start(ctx context.Context, spec Spec) (*Process, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, ErrCommandRequired
	}
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.WaitDelay = DefaultWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	log := logging.For("tools.process")
	stderr := &lineLogger{log: log.With().Str("command", spec.Command).Logger()}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tools: start %q: %w", spec.String(), err)
	}
	log.Debug().Str("command", spec.String()).Int("pid", cmd.Process.Pid).Msg("process started")
	return &Process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (p *Process) Stdout() io.Reader { return p.stdout }

// Kill terminates the process; killing an exited process is not an error.
func (p *Process) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Wait reaps the process once; later calls return the first result.
// Callers must finish reading Stdout before calling Wait.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.stderr.flush()
	})
	return p.waitErr
}

// ExitCode is valid after Wait returns.
func (p *Process) ExitCode() int32 {
	return ExitCode(p.Wait())
}

// lineLogger forwards stderr to the log one line at a time.
type lineLogger struct {
	mu  sync.Mutex
	log zerolog.Logger
	buf []byte
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, b...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(b), nil
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(b []byte) {
	text := strings.TrimRight(string(b), "\r")
	if text == "" {
		return
	}
	l.log.Warn().Str("stderr", text).Msg("process stderr")
}
