package exchange

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// transform.go interprets the per-column transform tokens attached through
// the mapping editor. Tokens are opaque everywhere else in the pipeline;
// only the job executor gives them meaning.

// dateLayouts are tried in order when normalizing a date value.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// ApplyTransform applies a transform token to a source value.
// An empty token is the identity. Unknown tokens are row errors.
func ApplyTransform(token, value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "":
		return value, nil
	case "trim":
		return strings.TrimSpace(value), nil
	case "upper":
		return strings.ToUpper(value), nil
	case "lower":
		return strings.ToLower(value), nil
	case "title":
		return titleCase(value), nil
	case "date":
		return normalizeDate(value)
	case "number":
		return normalizeNumber(value)
	case "phone":
		return normalizePhone(value), nil
	default:
		return "", fmt.Errorf("unknown transform %q", token)
	}
}

// titleCase uppercases the first letter of each word.
func titleCase(s string) string {
	prev := ' '
	return strings.Map(func(r rune) rune {
		out := r
		if unicode.IsSpace(prev) || prev == '-' {
			out = unicode.ToUpper(r)
		} else {
			out = unicode.ToLower(r)
		}
		prev = r
		return out
	}, s)
}

// normalizeDate parses a value against the known layouts and renders it as
// ISO 8601 (2006-01-02). Empty values pass through untouched.
func normalizeDate(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", value)
}

// normalizeNumber strips currency symbols and thousands separators, leaving
// a plain decimal string. Empty values pass through untouched.
func normalizeNumber(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", nil
	}

	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',', r == '$', r == ' ':
			// dropped
		default:
			return "", fmt.Errorf("invalid number %q", value)
		}
	}

	out := b.String()
	if out == "" || out == "-" || out == "." || strings.Count(out, ".") > 1 {
		return "", fmt.Errorf("invalid number %q", value)
	}
	return out, nil
}

// normalizePhone keeps digits and a leading plus sign.
func normalizePhone(value string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(value) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
