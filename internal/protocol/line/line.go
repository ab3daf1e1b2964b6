// Package line frames a byte stream as newline-delimited text records.
//
// Records are opaque: the reader strips the trailing "\n" (and a preceding
// "\r") and the writer appends exactly one "\n".
package line

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

const Terminator = '\n'

var (
	ErrLineTooLong     = errors.New("line: record exceeds max length")
	ErrEmbeddedNewline = errors.New("line: record contains a newline")
)

// Limits constrains line decode memory use.
type Limits struct {
	// MaxLineBytes bounds one record excluding the terminator; zero disables the check.
	MaxLineBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxLineBytes: 1024 * 1024}
}

// Reader reads newline-terminated records.
type Reader struct {
	r      *bufio.Reader
	limits Limits
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{r: bufio.NewReader(r), limits: limits}
}

// ReadLine returns the next record without its terminator.
//
// A final unterminated record before EOF is returned with a nil error; the
// following call returns io.EOF. Errors other than io.EOF are returned as-is.
func (r *Reader) ReadLine() (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}
		buf = append(buf, chunk...)
		if r.limits.MaxLineBytes > 0 && len(buf) > r.limits.MaxLineBytes {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return string(buf), nil
		}
	}
}

// Writer writes newline-terminated records.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteLine writes s plus one terminator in a single Write call so a record
// is never split across writes by this package.
func (w *Writer) WriteLine(s string) error {
	if bytes.IndexByte([]byte(s), Terminator) >= 0 {
		return ErrEmbeddedNewline
	}
	buf := make([]byte, 0, len(s)+1)
	buf = append(buf, s...)
	buf = append(buf, Terminator)
	_, err := w.w.Write(buf)
	return err
}
