// Package message prepares client supplied text for relaying to other terminals.
package message

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Reset - SGR sequence which restores default terminal attributes.
const Reset = "\x1b[0m"

var sgr = regexp.MustCompile(`^\x1b\[[0-9;]*m$`)

// Sanitize - returns text suitable to be printed on a peer terminal.
// Broken UTF-8 and control characters (escape sequences included) are dropped,
// continuous line breaks are folded into single space, other spaces become plain space.
// Leading and trailing spaces are trimmed.
func Sanitize(text string) string {
	b := strings.Builder{}
	b.Grow(len(text))
	prev := rune(0)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		switch {
		case r == '\n' || r == '\r':
			if prev != '\n' {
				b.WriteByte(' ')
			}
			r = '\n'
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case !unicode.IsPrint(r):
			// drop
			continue
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return strings.TrimSpace(b.String())
}

// Clip - cuts text to at most limit runes.
func Clip(text string, limit int) string {
	if limit < 0 {
		return text
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

// IsColor - reports whether s is empty or a single SGR sequence like "\x1b[1;31m".
func IsColor(s string) bool {
	return s == "" || sgr.MatchString(s)
}

// Paint - wraps text with color and reset sequences, text is returned as is for empty color.
func Paint(color, text string) string {
	if color == "" {
		return text
	}
	return color + text + Reset
}

// Line - formats chat line as "[15:04:05] name > text" painting name and text with given colors.
func Line(at time.Time, name, nameColor, text, textColor string) string {
	return "[" + at.Format(time.TimeOnly) + "] " + Paint(nameColor, name) + " > " + Paint(textColor, text)
}
