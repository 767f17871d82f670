package protocol

// Location represents a location in a document
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// Range represents a range in a document
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Position represents a position in a document. Character counts UTF-16
// code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// IsEmpty reports whether the range selects nothing
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// TextDocumentIdentifier identifies a document by URI
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentPositionParams is a document plus a position inside it
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}
