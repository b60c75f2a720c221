// Package datetime converts the DateTimeFormatter-style patterns used
// in pact documents (e.g. yyyy-MM-dd'T'HH:mm:ss) into Go time layouts.
package datetime

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Default patterns applied when a rule or generator carries no format.
const (
	DefaultDateTimeFormat = "yyyy-MM-dd'T'HH:mm:ss"
	DefaultDateFormat     = "yyyy-MM-dd"
	DefaultTimeFormat     = "HH:mm:ss"
)

var tokenLayouts = map[string]string{
	"yyyy": "2006",
	"yy":   "06",
	"MMMM": "January",
	"MMM":  "Jan",
	"MM":   "01",
	"M":    "1",
	"dd":   "02",
	"d":    "2",
	"EEEE": "Monday",
	"EEE":  "Mon",
	"HH":   "15",
	"H":    "15",
	"hh":   "03",
	"h":    "3",
	"mm":   "04",
	"m":    "4",
	"ss":   "05",
	"s":    "5",
	"a":    "PM",
	"z":    "MST",
	"ZZ":   "-07:00",
	"Z":    "-0700",
	"XXX":  "Z07:00",
	"XX":   "Z0700",
	"X":    "Z07",
}

// Layout converts a pattern into a Go time layout. Unknown pattern
// letters are an error so a bad format surfaces as a configuration
// problem instead of silently matching nothing.
func Layout(pattern string) (string, error) {
	var out strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		c := runes[i]
		if c == '\'' {
			// quoted literal; '' is an escaped quote
			if i+1 < len(runes) && runes[i+1] == '\'' {
				out.WriteRune('\'')
				i += 2
				continue
			}
			end := i + 1
			for end < len(runes) && runes[end] != '\'' {
				out.WriteRune(runes[end])
				end++
			}
			i = end + 1
			continue
		}
		if !isPatternLetter(c) {
			out.WriteRune(c)
			i++
			continue
		}
		run := 1
		for i+run < len(runes) && runes[i+run] == c {
			run++
		}
		token := string(runes[i : i+run])
		if c == 'S' {
			// fractional seconds; the separator comes from the pattern
			out.WriteString(strings.Repeat("0", run))
			i += run
			continue
		}
		layout, ok := longestTokenLayout(token)
		if !ok {
			return "", errors.Errorf("unsupported date/time pattern token '%s'", token)
		}
		out.WriteString(layout)
		i += run
		continue
	}
	return out.String(), nil
}

func longestTokenLayout(token string) (string, bool) {
	for len(token) > 0 {
		if layout, ok := tokenLayouts[token]; ok {
			return layout, true
		}
		token = token[:len(token)-1]
	}
	return "", false
}

func isPatternLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Parse validates a value against a pattern.
func Parse(pattern, val string) (time.Time, error) {
	layout, err := Layout(pattern)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, val)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "'%s' is not valid under format '%s'", val, pattern)
	}
	return t, nil
}

// Format renders a time using a pattern. Falls back to RFC3339 when
// the pattern cannot be converted, since generation must not fail.
func Format(pattern string, t time.Time) string {
	layout, err := Layout(pattern)
	if err != nil {
		return t.Format(time.RFC3339)
	}
	return t.Format(layout)
}
