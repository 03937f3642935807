// Package datefmt assembles date fields read by OCR into XX/XX/XXXX strings.
package datefmt

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Style selects the cleanup applied before formatting.
type Style int

const (
	// Strict formats the concatenated text only when it is exactly 8 characters long.
	Strict Style = iota
	// Padded drops non-digits, keeps the first 8 and left-pads with zeros.
	Padded
)

func (s Style) String() string {
	if s == Padded {
		return "padded"
	}
	return "strict"
}

func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Order names the digit order printed on a template. It is informational:
// values are never reordered or validated as calendar dates.
type Order string

const (
	MDY Order = "MM/DD/YYYY"
	DMY Order = "DD/MM/YYYY"
)

var (
	nonDigit  = regexp.MustCompile(`\D`)
	formatted = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// Assemble joins per-slot OCR texts in slot order and formats the result.
func Assemble(parts []string, style Style) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.TrimSpace(p))
	}
	return Format(b.String(), style)
}

// Format inserts separators after the second and fourth characters.
// Under Strict a value that is not exactly 8 characters is returned unchanged.
func Format(raw string, style Style) string {
	s := raw
	if style == Padded {
		s = nonDigit.ReplaceAllString(s, "")
		if len(s) > 8 {
			s = s[:8]
		}
		s = strings.Repeat("0", 8-len(s)) + s
	}

	if utf8.RuneCountInString(s) != 8 {
		return s
	}
	r := []rune(s)
	return string(r[:2]) + "/" + string(r[2:4]) + "/" + string(r[4:])
}

// IsFormatted reports whether v has the XX/XX/XXXX shape with digits only.
// Anything else is a soft failure that needs manual review.
func IsFormatted(v string) bool {
	return formatted.MatchString(v)
}
