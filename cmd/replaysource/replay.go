package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/echolink/internal/protocol/line"
	"github.com/spf13/pflag"
)

var (
	ErrNoRecords     = errors.New("replaysource: no records to replay")
	ErrInvalidRecord = errors.New("replaysource: record is not valid JSON")
)

type gesture struct {
	State string `json:"state"`
	Angle int    `json:"angle"`
}

var gestureSamples = []gesture{
	{State: "open", Angle: 90},
	{State: "closed", Angle: 90},
	{State: "open", Angle: 45},
	{State: "closed", Angle: 135},
}

type options struct {
	file     string
	interval time.Duration
	loop     bool
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.file, "file", "f", "", "JSON-lines file to replay; built-in gesture samples when empty")
	fs.DurationVar(&o.interval, "interval", 500*time.Millisecond, "delay between records")
	fs.BoolVar(&o.loop, "loop", false, "restart from the first record after the last")
}

func loadRecords(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return builtinRecords()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()
	return readRecords(f)
}

func builtinRecords() ([]string, error) {
	out := make([]string, 0, len(gestureSamples))
	for _, g := range gestureSamples {
		b, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

// readRecords keeps non-blank lines; each must be one JSON value.
func readRecords(r io.Reader) ([]string, error) {
	reader := line.NewReader(r, line.DefaultLimits())
	var out []string
	for n := 1; ; n++ {
		rec, err := reader.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", n, err)
		}
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		if !json.Valid([]byte(rec)) {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidRecord, n)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// replay writes one record per interval, the first immediately.
func replay(ctx context.Context, out io.Writer, records []string, interval time.Duration, loop bool) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	w := line.NewWriter(out)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for i := 0; ; i++ {
		if i == len(records) {
			if !loop {
				return nil
			}
			i = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if err := w.WriteLine(records[i]); err != nil {
			return err
		}
		timer.Reset(interval)
	}
}
