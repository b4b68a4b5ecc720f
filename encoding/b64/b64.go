// Package b64 implements the base64 framing used on the signing backend wire:
// standard padded base64, wrapped at 64 columns with "\n" and a trailing newline.
package b64

import (
	"encoding/base64"
	"errors"
	"strings"
)

// LineLength is the number of base64 characters per encoded line.
const LineLength = 64

var ErrInvalid = errors.New("b64: invalid base64 payload")

// EncodeToString returns the wrapped form of src. Every line except possibly
// the last one is exactly LineLength characters; each line ends with "\n".
// Empty input encodes to the empty string.
func EncodeToString(src []byte) string {
	flat := base64.StdEncoding.EncodeToString(src)
	if flat == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(flat) + len(flat)/LineLength + 1)
	for len(flat) > LineLength {
		b.WriteString(flat[:LineLength])
		b.WriteByte('\n')
		flat = flat[LineLength:]
	}
	b.WriteString(flat)
	b.WriteByte('\n')
	return b.String()
}

// DecodeString accepts both the wrapped form and a single unbroken string.
// Carriage returns are tolerated so CRLF-wrapped payloads decode too.
func DecodeString(s string) ([]byte, error) {
	var b strings.Builder
	b.Grow(len(s))
	for _, chunk := range strings.FieldsFunc(s, isLineBreak) {
		b.WriteString(strings.TrimSpace(chunk))
	}
	out, err := base64.StdEncoding.DecodeString(b.String())
	if err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	return out, nil
}

// Wrapped reports whether s is already in the canonical wrapped form.
func Wrapped(s string) bool {
	if s == "" {
		return true
	}
	if !strings.HasSuffix(s, "\n") {
		return false
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, line := range lines {
		if len(line) > LineLength || (i < len(lines)-1 && len(line) != LineLength) {
			return false
		}
	}
	return true
}

func isLineBreak(r rune) bool { return r == '\n' || r == '\r' }
