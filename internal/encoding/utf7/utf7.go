// Package utf7 implements RFC 2152 UTF-7 decoding for the file names that
// WOPI clients send in X-WOPI-RequestedName and X-WOPI-SuggestedTarget
// headers, which are not ASCII-safe.
package utf7

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf16"
)

// ErrMalformed is returned when a shifted sequence is not valid UTF-7.
var ErrMalformed = errors.New("malformed utf-7 sequence")

// Decode converts a UTF-7 string to UTF-8. Characters outside shifted
// sequences pass through unchanged; "+-" decodes to a literal "+".
func Decode(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '+' {
			b.WriteByte(c)
			continue
		}
		// Shifted sequence: base64 run terminated by '-' or a non-base64 byte.
		j := i + 1
		for j < len(s) && isBase64(s[j]) {
			j++
		}
		if j == i+1 {
			// "+-" is the escape for '+'; a bare trailing '+' is malformed.
			if j < len(s) && s[j] == '-' {
				b.WriteByte('+')
				i = j
				continue
			}
			return "", ErrMalformed
		}
		decoded, err := decodeSegment(s[i+1 : j])
		if err != nil {
			return "", err
		}
		b.WriteString(decoded)
		i = j - 1
		if j < len(s) && s[j] == '-' {
			i = j
		}
	}
	return b.String(), nil
}

// decodeSegment decodes one modified-base64 run into UTF-16BE code units.
func decodeSegment(seg string) (string, error) {
	raw, err := base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(seg)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw)%2 == 1 {
		// Trailing padding bits; they must be zero.
		if raw[len(raw)-1] != 0 {
			return "", ErrMalformed
		}
		raw = raw[:len(raw)-1]
	}
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return string(utf16.Decode(units)), nil
}

func isBase64(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/'
}
