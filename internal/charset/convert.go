package charset

// convert.go streams bytes through decode -> strict check -> encode.
//
// The strict check sits between the two codecs and works on UTF-8 text, so
// it sees U+FFFD regardless of which legacy codec produced it. Source and
// sink I/O errors are tagged on the way through so they are not mistaken for
// encoding failures.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/JonMunkholm/corpfetch/internal/errs"
	"golang.org/x/text/transform"
)

// ErrUndecodable is the cause of an EncodingError raised when the source
// bytes are not valid in the source charset.
var ErrUndecodable = errors.New("undecodable byte sequence")

// ErrUnmappable is the cause of an EncodingError raised when decoded text has
// no representation in the target charset.
var ErrUnmappable = errors.New("character not representable in target charset")

// Convert decodes data from one charset and re-encodes it in another.
func Convert(data []byte, from, to Charset) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(data) + len(data)/2)
	if _, err := ConvertStream(&out, bytes.NewReader(data), from, to); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ConvertStream copies src to dst, converting from one charset to another.
// Memory use is bounded by the transform buffers, not the input size.
// Returns the number of bytes written to dst.
func ConvertStream(dst io.Writer, src io.Reader, from, to Charset) (int64, error) {
	if from.IsZero() || to.IsZero() {
		return 0, fmt.Errorf("charset: source and target charset are required")
	}

	chain := transform.Chain(from.decoder(), &strictText{}, to.encoder())
	reader := transform.NewReader(&sourceReader{r: src}, chain)

	n, err := io.Copy(&sinkWriter{w: dst}, reader)
	if err == nil {
		return n, nil
	}

	var ioErr *ioFault
	if errors.As(err, &ioErr) {
		return n, ioErr.err
	}

	var rep *replacementFault
	if errors.As(err, &rep) {
		return n, &errs.EncodingError{
			From:   from.String(),
			To:     to.String(),
			Offset: rep.offset,
			Err:    ErrUndecodable,
		}
	}

	return n, &errs.EncodingError{
		From:   from.String(),
		To:     to.String(),
		Offset: -1,
		Err:    fmt.Errorf("%w: %v", ErrUnmappable, err),
	}
}

// strictText passes UTF-8 through unchanged and fails on U+FFFD, which is
// what every x/text decoder emits for bytes it cannot map.
type strictText struct {
	offset int64
}

func (s *strictText) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError {
			// Incomplete rune split across buffers
			if size <= 1 && !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			return nDst, nSrc, &replacementFault{offset: s.offset}
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		copy(dst[nDst:], src[nSrc:nSrc+size])
		nDst += size
		nSrc += size
		s.offset += int64(size)
	}
	return nDst, nSrc, nil
}

func (s *strictText) Reset() {
	s.offset = 0
}

// replacementFault marks the position (in decoded UTF-8 bytes) of the first
// replacement character.
type replacementFault struct {
	offset int64
}

func (f *replacementFault) Error() string {
	return fmt.Sprintf("replacement character at decoded offset %d", f.offset)
}

type ioFault struct {
	err error
}

func (f *ioFault) Error() string { return f.err.Error() }
func (f *ioFault) Unwrap() error { return f.err }

type sourceReader struct {
	r io.Reader
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = &ioFault{err: err}
	}
	return n, err
}

type sinkWriter struct {
	w io.Writer
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		err = &ioFault{err: err}
	}
	return n, err
}
