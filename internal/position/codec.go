package position

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a zero-based line/column pair. Columns count UTF-16 code units
// like LSP positions do.
type Position struct {
	Line   int `json:"line" msgpack:"line"`
	Column int `json:"column" msgpack:"column"`
}

// Range is a pair of positions. Start is not required to come before End.
type Range struct {
	Start Position `json:"start" msgpack:"start"`
	End   Position `json:"end" msgpack:"end"`
}

const (
	listSeparator  = ", "
	rangeSeparator = ": "
	fieldSeparator = ":"
)

// ParseError is returned when a range string from the analyzer can't be decoded
type ParseError struct {
	Input  string
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("invalid range %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("invalid range %q: token %q %s", e.Input, e.Token, e.Reason)
}

// EncodeRange renders a range in the analyzer's 1-based "L1:C1: L2:C2" notation
func EncodeRange(r Range) string {
	return fmt.Sprintf("%d:%d: %d:%d", r.Start.Line+1, r.Start.Column+1, r.End.Line+1, r.End.Column+1)
}

// DecodeRange decodes a single "L1:C1: L2:C2" string
func DecodeRange(s string) (Range, error) {
	parts := strings.Split(s, rangeSeparator)
	if len(parts) != 2 {
		return Range{}, &ParseError{Input: s, Reason: "expected two positions separated by \": \""}
	}

	start, err := decodePosition(s, parts[0])
	if err != nil {
		return Range{}, err
	}
	end, err := decodePosition(s, parts[1])
	if err != nil {
		return Range{}, err
	}

	return Range{Start: start, End: end}, nil
}

// DecodeRangeList decodes a ", " joined list of ranges. An empty string is an
// empty list.
func DecodeRangeList(s string) ([]Range, error) {
	if s == "" {
		return []Range{}, nil
	}

	items := strings.Split(s, listSeparator)
	ranges := make([]Range, 0, len(items))
	for _, item := range items {
		r, err := DecodeRange(item)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	return ranges, nil
}

// EncodeRangeList is the inverse of DecodeRangeList
func EncodeRangeList(ranges []Range) string {
	encoded := make([]string, len(ranges))
	for i, r := range ranges {
		encoded[i] = EncodeRange(r)
	}
	return strings.Join(encoded, listSeparator)
}

func decodePosition(input, s string) (Position, error) {
	fields := strings.Split(s, fieldSeparator)
	if len(fields) != 2 {
		return Position{}, &ParseError{Input: input, Token: s, Reason: "is not a line:column pair"}
	}

	line, err := decodeCoordinate(input, fields[0])
	if err != nil {
		return Position{}, err
	}
	column, err := decodeCoordinate(input, fields[1])
	if err != nil {
		return Position{}, err
	}

	return Position{Line: line, Column: column}, nil
}

// decodeCoordinate converts a 1-based wire coordinate to a zero-based one
func decodeCoordinate(input, token string) (int, error) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, &ParseError{Input: input, Token: token, Reason: "is not a number"}
	}
	if n < 1 {
		return 0, &ParseError{Input: input, Token: token, Reason: "must be at least 1"}
	}
	return n - 1, nil
}

// Contains reports whether p lies within r, treating r as normalized
func (r Range) Contains(p Position) bool {
	start, end := r.Start, r.End
	if end.Before(start) {
		start, end = end, start
	}
	return !p.Before(start) && !end.Before(p)
}

// Before reports whether p comes strictly before other
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Column < other.Column
}

func (r Range) String() string {
	return EncodeRange(r)
}
