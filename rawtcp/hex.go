package rawtcp

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const hexDigits = "0123456789ABCDEF"

// ParseHex decodes a line of hex byte pairs. All whitespace is ignored, so
// "12 34 56", "123456" and " 1 2 3 4 5 6 " decode to the same three bytes.
// Digits are case-insensitive.
func ParseHex(input string) ([]byte, error) {
	digits := strings.ToUpper(stripSpace(input))
	if digits == "" {
		return nil, &FormatError{Kind: FormatEmpty}
	}
	if err := checkASCII(digits); err != nil {
		return nil, err
	}
	if len(digits)%2 != 0 {
		return nil, newOddLengthError(digits)
	}

	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, okHi := hexValue(digits[2*i])
		lo, okLo := hexValue(digits[2*i+1])
		if !okHi || !okLo {
			return nil, newInvalidByteError(digits[2*i:2*i+2], i)
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

// FormatHex renders b as uppercase hex pairs separated by single spaces,
// e.g. "12 34 AB". An empty slice renders as "".
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b)*3 - 1)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(hexDigits[v>>4])
		sb.WriteByte(hexDigits[v&0x0F])
	}
	return sb.String()
}

// CanonicalHex normalizes hex input to the form FormatHex produces.
func CanonicalHex(input string) (string, error) {
	b, err := ParseHex(input)
	if err != nil {
		return "", err
	}
	return FormatHex(b), nil
}

// checkASCII rejects the first pair holding a non-ASCII rune. Pairs are
// counted in runes so the reported pair is never a split UTF-8 sequence.
func checkASCII(digits string) error {
	runes := []rune(digits)
	for i, r := range runes {
		if r < utf8.RuneSelf {
			continue
		}
		start := i &^ 1
		end := min(start+2, len(runes))
		return newInvalidByteError(string(runes[start:end]), i/2)
	}
	return nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// hexValue expects an uppercased digit.
func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
