package segment

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// Escape escapes a string for embedding in a JSON document body. Control
// characters get their short escapes and any character outside the ASCII
// range is written as a \uXXXX sequence (surrogate pairs for characters
// beyond the BMP), matching what the search engine accepts in hand-built
// request bodies.
func Escape(input string) string {
	var out strings.Builder
	out.Grow(len(input))

	for _, r := range input {
		switch r {
		case '\n':
			out.WriteString(`\n`)
		case '\t':
			out.WriteString(`\t`)
		case '\r':
			out.WriteString(`\r`)
		case '\\':
			out.WriteString(`\\`)
		case '"':
			out.WriteString(`\"`)
		case '\b':
			out.WriteString(`\b`)
		case '\f':
			out.WriteString(`\f`)
		default:
			if r > 127 {
				if r > 0xFFFF {
					hi, lo := utf16.EncodeRune(r)
					writeUnicodeEscape(&out, hi)
					writeUnicodeEscape(&out, lo)
				} else {
					writeUnicodeEscape(&out, r)
				}
			} else {
				out.WriteRune(r)
			}
		}
	}

	return out.String()
}

func writeUnicodeEscape(out *strings.Builder, r rune) {
	out.WriteString(`\u`)
	hex := strconv.FormatInt(int64(r), 16)
	for i := len(hex); i < 4; i++ {
		out.WriteByte('0')
	}
	out.WriteString(hex)
}

// DecodeUnicodeEscapes replaces \uXXXX sequences with the characters they
// encode, combining surrogate pairs. Malformed sequences are left as-is.
func DecodeUnicodeEscapes(input string) string {
	if !strings.Contains(input, `\u`) {
		return input
	}

	var out strings.Builder
	out.Grow(len(input))

	for i := 0; i < len(input); {
		if r, next, ok := decodeEscapeAt(input, i); ok {
			out.WriteRune(r)
			i = next
			continue
		}
		out.WriteByte(input[i])
		i++
	}

	return out.String()
}

// decodeEscapeAt decodes a \uXXXX sequence starting at i, consuming a
// following low surrogate when present.
func decodeEscapeAt(input string, i int) (rune, int, bool) {
	r, ok := parseUnit(input, i)
	if !ok {
		return 0, 0, false
	}
	next := i + 6

	if utf16.IsSurrogate(r) {
		if lo, ok := parseUnit(input, next); ok {
			if combined := utf16.DecodeRune(r, lo); combined != 0xFFFD {
				return combined, next + 6, true
			}
		}
		// Unpaired surrogate: emit the replacement character rather than
		// producing invalid UTF-8.
		return 0xFFFD, next, true
	}

	return r, next, true
}

func parseUnit(input string, i int) (rune, bool) {
	if i+6 > len(input) || input[i] != '\\' || input[i+1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(input[i+2:i+6], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
