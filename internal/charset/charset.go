// Package charset converts downloaded registry files between the legacy
// Korean encoding and UTF-8.
//
// Conversion is strict: text that cannot be decoded or encoded fails with an
// *errs.EncodingError instead of silently producing replacement characters.
// The FTC open-data files are published in EUC-KR; the x/text codec used for
// it also accepts the CP949 (Unified Hangul Code) extension.
//
// The strict check rejects every U+FFFD in decoded text. A UTF-8 source that
// genuinely contains U+FFFD is therefore reported as undecodable.
package charset

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

// Charset is a named text encoding.
type Charset struct {
	name string
	enc  encoding.Encoding
}

var (
	// EUCKR is the legacy encoding of the FTC mail-order registry files.
	EUCKR = Charset{name: "euc-kr", enc: korean.EUCKR}

	// UTF8 is the canonical encoding written to staging.
	UTF8 = Charset{name: "utf-8", enc: unicode.UTF8}
)

// aliases are Windows code page names for the Korean codec that the WHATWG
// index does not list.
var aliases = map[string]Charset{
	"cp949":       EUCKR,
	"ms949":       EUCKR,
	"uhc":         EUCKR,
	"windows-949": EUCKR,
}

// Lookup resolves a WHATWG encoding label or a Korean code page alias
// ("euc-kr", "cp949", "utf8", ...).
func Lookup(label string) (Charset, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Charset{}, fmt.Errorf("charset: empty label")
	}
	if cs, ok := aliases[strings.ToLower(label)]; ok {
		return cs, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return Charset{}, fmt.Errorf("charset: unknown label %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return Charset{}, fmt.Errorf("charset: unnamed encoding for %q: %w", label, err)
	}
	return Charset{name: name, enc: enc}, nil
}

// Name returns the canonical lower-case label.
func (c Charset) Name() string {
	return c.name
}

func (c Charset) String() string {
	return strings.ToUpper(c.name)
}

// IsZero reports whether c was never resolved.
func (c Charset) IsZero() bool {
	return c.enc == nil
}

func (c Charset) isUTF8() bool {
	return c.name == UTF8.name
}

// decoder returns a transformer from c to UTF-8. A UTF-8 source has its
// leading byte order mark stripped.
func (c Charset) decoder() *encoding.Decoder {
	if c.isUTF8() {
		return unicode.UTF8BOM.NewDecoder()
	}
	return c.enc.NewDecoder()
}

// encoder returns a transformer from UTF-8 to c. Unsupported runes make it
// fail rather than substitute.
func (c Charset) encoder() *encoding.Encoder {
	return c.enc.NewEncoder()
}
