// Package errs defines the typed errors raised by the fetch pipeline stages.
//
// Every type unwraps to its underlying cause so callers can combine
// errors.As for classification with errors.Is for the root cause
// (context.DeadlineExceeded, io.ErrUnexpectedEOF and so on).
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// DownloadError is returned when the document server answers with anything
// other than HTTP 200.
type DownloadError struct {
	StatusCode int
	URL        string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed: unexpected status %d", e.StatusCode)
}

// EncodingError reports a byte/text conversion failure.
// Offset is the byte position in the input where the problem was detected,
// or -1 when unknown.
type EncodingError struct {
	From   string
	To     string
	Offset int64
	Err    error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("encoding error: %s -> %s", e.From, e.To)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ErrEmptyFile is the cause of a SchemaError raised for a file with no header.
var ErrEmptyFile = errors.New("empty file")

// ErrColumnNotFound is the cause of a SchemaError raised for a missing column.
var ErrColumnNotFound = errors.New("column not found")

// SchemaError reports a structurally unusable CSV file.
type SchemaError struct {
	Path   string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema error in %s: %v: %q", e.Path, e.Err, e.Column)
	}
	return fmt.Sprintf("schema error in %s: %v", e.Path, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// RegistryFetchError wraps a transport or parse failure while paging the
// registry API. Page is the 1-based page that failed.
type RegistryFetchError struct {
	Page int
	Err  error
}

func (e *RegistryFetchError) Error() string {
	return fmt.Sprintf("registry fetch failed at page %d: %v", e.Page, e.Err)
}

func (e *RegistryFetchError) Unwrap() error { return e.Err }

// TimeoutError reports a stage that exceeded its deadline.
type TimeoutError struct {
	Stage string
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a deadline expiry, either from a context
// or from a network operation with its own timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
