package tools

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/echolink/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExitCode(t *testing.T) {
	testlog.Start(t)
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("nil error exit code=%d", got)
	}
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Fatalf("generic error exit code=%d", got)
	}
	_, _, code, err := ExecRunner{}.Run(context.Background(), "echolink-definitely-missing-binary")
	if err == nil || code != 127 {
		t.Fatalf("expected 127 for missing binary, code=%d err=%v", code, err)
	}
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	testlog.Start(t)
	requireShell(t)
	stdout, stderr, code, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err == nil {
		t.Fatalf("expected exit error")
	}
	if code != 3 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if strings.TrimSpace(string(stdout)) != "out" || strings.TrimSpace(string(stderr)) != "err" {
		t.Fatalf("unexpected output stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestStartStreamsStdoutAndReportsExit(t *testing.T) {
	testlog.Start(t)
	requireShell(t)
	p, err := Start(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", `printf 'a\nb\n'; echo warn >&2; exit 2`},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := io.ReadAll(p.Stdout())
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if string(out) != "a\nb\n" {
		t.Fatalf("unexpected stdout: %q", out)
	}
	if err := p.Wait(); err == nil {
		t.Fatalf("expected exit error")
	}
	if p.ExitCode() != 2 {
		t.Fatalf("unexpected exit code: %d", p.ExitCode())
	}
}

func TestStartRequiresCommand(t *testing.T) {
	testlog.Start(t)
	if _, err := Start(context.Background(), Spec{Command: "  "}); !errors.Is(err, ErrCommandRequired) {
		t.Fatalf("expected ErrCommandRequired, got %v", err)
	}
}

func TestKillStopsLongRunningProcess(t *testing.T) {
	testlog.Start(t)
	requireShell(t)
	p, err := Start(context.Background(), Spec{Command: "sh", Args: []string{"-c", "exec sleep 30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("process not reaped after kill")
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("second kill should be a no-op, got %v", err)
	}
}

func TestLineLoggerSplitsLines(t *testing.T) {
	testlog.Start(t)
	l := &lineLogger{log: zerolog.Nop()}
	if _, err := l.Write([]byte("one\ntw")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if string(l.buf) != "tw" {
		t.Fatalf("expected partial line buffered, got %q", l.buf)
	}
	_, _ = l.Write([]byte("o\n"))
	if len(l.buf) != 0 {
		t.Fatalf("expected buffer drained, got %q", l.buf)
	}
	_, _ = l.Write([]byte("tail"))
	l.flush()
	if l.buf != nil {
		t.Fatalf("expected flush to clear buffer")
	}
}
