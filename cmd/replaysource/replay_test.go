package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/echolink/internal/testutil/testlog"
)

func TestBuiltinRecordsAreGestureJSON(t *testing.T) {
	testlog.Start(t)
	records, err := loadRecords("")
	if err != nil {
		t.Fatalf("builtin records: %v", err)
	}
	if len(records) != len(gestureSamples) {
		t.Fatalf("expected %d records, got %d", len(gestureSamples), len(records))
	}
	if records[0] != `{"state":"open","angle":90}` {
		t.Fatalf("unexpected first record: %q", records[0])
	}
}

func TestReadRecordsSkipsBlankAndRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	records, err := readRecords(strings.NewReader("{\"state\":\"open\"}\n\n  \n{\"state\":\"closed\"}"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 2 || records[1] != `{"state":"closed"}` {
		t.Fatalf("unexpected records: %q", records)
	}

	if _, err := readRecords(strings.NewReader("{\"state\":\"open\"}\nnot json\n")); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if _, err := readRecords(strings.NewReader("\n\n")); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
}

func TestLoadRecordsFromFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "gestures.jsonl")
	if err := os.WriteFile(path, []byte("{\"state\":\"open\"}\n{\"state\":\"closed\"}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := loadRecords(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("unexpected records: %q", records)
	}
	if _, err := loadRecords(filepath.Join(t.TempDir(), "missing.jsonl")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestReplayWritesInOrderThenExits(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	records := []string{`{"state":"open"}`, `{"state":"closed"}`}
	if err := replay(context.Background(), &out, records, time.Millisecond, false); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := out.String(); got != "{\"state\":\"open\"}\n{\"state\":\"closed\"}\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestReplayLoopStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	err := replay(ctx, &out, []string{"1", "2"}, time.Millisecond, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if n := strings.Count(out.String(), "\n"); n < 3 {
		t.Fatalf("expected loop to wrap around, wrote %d records", n)
	}
}
