// Package csvstream implements the line-oriented CSV stages of the fetch
// pipeline: filter by column value, and enrich with a looked-up trailing
// column.
//
// The registry files are plain comma-joined lines without quoting, so rows
// are split on the delimiter verbatim rather than parsed as RFC 4180. Every
// stage streams one line at a time; memory is bounded by the longest line.
//
// Rows with too few fields for the column being inspected are skipped and
// counted, never reported as errors.
package csvstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/corpfetch/internal/errs"
)

// Delimiter separates fields within a line.
const Delimiter = ","

// ContextCheckInterval is how often (in lines) the stages check for
// cancellation.
var ContextCheckInterval = 500

// readBufferSize is the bufio buffer for both reading and writing.
const readBufferSize = 64 * 1024

// lineReader yields lines with their terminator removed and remembers the
// terminator convention of the first line.
type lineReader struct {
	r   *bufio.Reader
	eol string
	n   int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, readBufferSize)}
}

// next returns the next line, or io.EOF when the input is exhausted.
// A final line without terminator is still returned.
func (lr *lineReader) next() (string, error) {
	s, err := lr.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && s == "" {
		return "", io.EOF
	}

	term := ""
	if strings.HasSuffix(s, "\n") {
		s = s[:len(s)-1]
		term = "\n"
		if strings.HasSuffix(s, "\r") {
			s = s[:len(s)-1]
			term = "\r\n"
		}
	}
	if lr.n == 0 {
		lr.eol = term
	}
	lr.n++
	return s, nil
}

// lineEnding is the convention used for every written line: the header's
// terminator, or "\n" when the header was the unterminated last line.
func (lr *lineReader) lineEnding() string {
	if lr.eol == "" {
		return "\n"
	}
	return lr.eol
}

// splitFields splits a line on the delimiter, keeping empty trailing fields.
func splitFields(line string) []string {
	return strings.Split(line, Delimiter)
}

// columnIndex returns the position of name in header, comparing trimmed
// values, or -1.
func columnIndex(header []string, name string) int {
	name = strings.TrimSpace(name)
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// header is a parsed first line.
type header struct {
	line   string
	fields []string
	index  int
}

// readHeader consumes the first line and locates column.
func readHeader(lr *lineReader, path, column string) (header, error) {
	line, err := lr.next()
	if err == io.EOF || (err == nil && strings.TrimSpace(line) == "") {
		return header{}, &errs.SchemaError{Path: path, Err: errs.ErrEmptyFile}
	}
	if err != nil {
		return header{}, fmt.Errorf("read header %s: %w", path, err)
	}

	fields := splitFields(line)
	idx := columnIndex(fields, column)
	if idx < 0 {
		return header{}, &errs.SchemaError{Path: path, Column: column, Err: errs.ErrColumnNotFound}
	}

	return header{line: line, fields: fields, index: idx}, nil
}

// checkContext is called once per line; it only consults ctx every
// ContextCheckInterval lines.
func checkContext(ctx context.Context, line int) error {
	if ContextCheckInterval <= 0 || line%ContextCheckInterval != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled at line %d: %w", line, err)
	}
	return nil
}

// fileSink is a buffered output file whose Close flushes and reports the
// first error.
type fileSink struct {
	f *os.File
	w *bufio.Writer
}

func createSink(path string) (*fileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &fileSink{f: f, w: bufio.NewWriterSize(f, readBufferSize)}, nil
}

func (s *fileSink) writeLine(line, eol string) error {
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	_, err := s.w.WriteString(eol)
	return err
}

func (s *fileSink) Close() error {
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Walk streams path and calls visit with the header fields and each
// non-blank data row. Iteration stops at the first error returned by visit.
func Walk(ctx context.Context, path string, visit func(header, fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	lr := newLineReader(f)
	first, err := lr.next()
	if err == io.EOF || (err == nil && strings.TrimSpace(first) == "") {
		return &errs.SchemaError{Path: path, Err: errs.ErrEmptyFile}
	}
	if err != nil {
		return fmt.Errorf("read header %s: %w", path, err)
	}
	hdr := splitFields(first)

	for lineNum := 2; ; lineNum++ {
		if err := checkContext(ctx, lineNum); err != nil {
			return err
		}
		line, err := lr.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", path, lineNum, err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := visit(hdr, splitFields(line)); err != nil {
			return err
		}
	}
}
