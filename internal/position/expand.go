package position

import (
	"strings"
	"unicode/utf16"
)

// DefaultReferencePrefix is the character absorbed by ExpandReferencePrefix
const DefaultReferencePrefix = '&'

// Expander widens selections over a run of reference-prefix characters so the
// analyzer sees the whole referenced expression, e.g. "&&&x" instead of "x".
type Expander struct {
	Prefix rune
}

// NewExpander creates an expander for the given prefix. A zero prefix falls
// back to DefaultReferencePrefix.
func NewExpander(prefix rune) Expander {
	if prefix == 0 {
		prefix = DefaultReferencePrefix
	}
	return Expander{Prefix: prefix}
}

// ExpandReferencePrefix expands start with the default prefix character
func ExpandReferencePrefix(text string, start Position) Position {
	return NewExpander(DefaultReferencePrefix).Expand(text, start)
}

// Expand walks start left while the character right before it is the prefix.
// Out of range positions are returned unchanged.
func (e Expander) Expand(text string, start Position) Position {
	if start.Column <= 0 || start.Line < 0 {
		return start
	}

	line, ok := lineAt(text, start.Line)
	if !ok {
		return start
	}

	units := utf16.Encode([]rune(line))
	if start.Column > len(units) {
		return start
	}

	prefix := utf16.Encode([]rune{e.Prefix})
	if len(prefix) != 1 {
		return start
	}

	column := start.Column
	for column > 0 && units[column-1] == prefix[0] {
		column--
	}

	return Position{Line: start.Line, Column: column}
}

// ExpandRange applies Expand to the start of r and keeps the end
func (e Expander) ExpandRange(text string, r Range) Range {
	return Range{Start: e.Expand(text, r.Start), End: r.End}
}

// TextInRange returns the text covered by r, or "" if r is outside text
func TextInRange(text string, r Range) string {
	start, end := r.Start, r.End
	if end.Before(start) {
		start, end = end, start
	}

	from, ok := offsetOf(text, start)
	if !ok {
		return ""
	}
	to, ok := offsetOf(text, end)
	if !ok {
		return ""
	}

	return text[from:to]
}

// ByteColumn converts the UTF-16 column of p to a byte offset within its line
func ByteColumn(text string, p Position) (int, bool) {
	offset, ok := offsetOf(text, p)
	if !ok {
		return 0, false
	}
	return offset - (strings.LastIndexByte(text[:offset], '\n') + 1), true
}

func lineAt(text string, line int) (string, bool) {
	if text == "" {
		return "", false
	}
	lines := strings.Split(text, "\n")
	if line >= len(lines) {
		return "", false
	}
	return strings.TrimSuffix(lines[line], "\r"), true
}

// offsetOf converts a position to a byte offset in text
func offsetOf(text string, p Position) (int, bool) {
	offset := 0
	for i := 0; i < p.Line; i++ {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return 0, false
		}
		offset += next + 1
	}

	units := 0
	for i, r := range text[offset:] {
		if units >= p.Column || r == '\n' {
			return offset + i, units == p.Column
		}
		units += len(utf16.Encode([]rune{r}))
	}

	return len(text), units == p.Column
}
