package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandReferencePrefix(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		start    Position
		expected Position
	}{
		{
			name:     "three prefixes",
			text:     "&&&x",
			start:    Position{Line: 0, Column: 3},
			expected: Position{Line: 0, Column: 0},
		},
		{
			name:     "no prefix",
			text:     "x",
			start:    Position{Line: 0, Column: 0},
			expected: Position{Line: 0, Column: 0},
		},
		{
			name:     "stops at other character",
			text:     "let y = &&value;",
			start:    Position{Line: 0, Column: 10},
			expected: Position{Line: 0, Column: 8},
		},
		{
			name:     "second line",
			text:     "fn main() {\n    foo(&mut x);\n}",
			start:    Position{Line: 1, Column: 9},
			expected: Position{Line: 1, Column: 8},
		},
		{
			name:     "not directly before start",
			text:     "& x",
			start:    Position{Line: 0, Column: 2},
			expected: Position{Line: 0, Column: 2},
		},
		{
			name:     "empty document",
			text:     "",
			start:    Position{Line: 0, Column: 3},
			expected: Position{Line: 0, Column: 3},
		},
		{
			name:     "line out of range",
			text:     "&x",
			start:    Position{Line: 4, Column: 1},
			expected: Position{Line: 4, Column: 1},
		},
		{
			name:     "column past end of line",
			text:     "&x",
			start:    Position{Line: 0, Column: 10},
			expected: Position{Line: 0, Column: 10},
		},
		{
			name:     "crlf line endings",
			text:     "a\r\n&&b\r\n",
			start:    Position{Line: 1, Column: 2},
			expected: Position{Line: 1, Column: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandReferencePrefix(tt.text, tt.start))
		})
	}
}

func TestExpanderCustomPrefix(t *testing.T) {
	e := NewExpander('*')
	assert.Equal(t, Position{Line: 0, Column: 0}, e.Expand("**p", Position{Line: 0, Column: 2}))

	e = NewExpander(0)
	assert.Equal(t, DefaultReferencePrefix, e.Prefix)
}

func TestExpandRangeKeepsEnd(t *testing.T) {
	r := Range{Start: Position{Line: 0, Column: 2}, End: Position{Line: 0, Column: 3}}
	expanded := NewExpander('&').ExpandRange("&&x", r)

	assert.Equal(t, Position{Line: 0, Column: 0}, expanded.Start)
	assert.Equal(t, r.End, expanded.End)
}

func TestTextInRange(t *testing.T) {
	text := "fn main() {\n    let guard = m.lock();\n}"

	assert.Equal(t, "guard", TextInRange(text, Range{
		Start: Position{Line: 1, Column: 8},
		End:   Position{Line: 1, Column: 13},
	}))
	assert.Equal(t, "{\n    let", TextInRange(text, Range{
		Start: Position{Line: 0, Column: 10},
		End:   Position{Line: 1, Column: 7},
	}))
	assert.Equal(t, "", TextInRange(text, Range{
		Start: Position{Line: 8, Column: 0},
		End:   Position{Line: 9, Column: 0},
	}))
}

func TestByteColumn(t *testing.T) {
	text := "fn main() {\n    let é = \"😀x\";\n}"

	tests := []struct {
		name string
		pos  Position
		want int
		ok   bool
	}{
		{"ascii", Position{Line: 0, Column: 3}, 3, true},
		{"after two-byte rune", Position{Line: 1, Column: 9}, 10, true},
		{"after surrogate pair", Position{Line: 1, Column: 15}, 18, true},
		{"line end", Position{Line: 2, Column: 1}, 1, true},
		{"past line end", Position{Line: 0, Column: 40}, 0, false},
		{"missing line", Position{Line: 5, Column: 0}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ByteColumn(text, tt.pos)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
