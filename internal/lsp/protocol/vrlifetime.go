package protocol

// Custom methods exchanged with the editor extension
const (
	MethodDidChangeSelection    = "vrlifetime/didChangeSelection"
	MethodDidChangeActiveEditor = "vrlifetime/didChangeActiveEditor"
	MethodDecorations           = "vrlifetime/decorations"
	MethodLifetimes             = "vrlifetime/lifetimes"
	MethodScanStarted           = "vrlifetime/scanStarted"
	MethodScanCompleted         = "vrlifetime/scanCompleted"

	CommandRescan  = "vrlifetime.rescan"
	CommandRebuild = "vrlifetime.rebuild"
)

// DidChangeSelectionParams is sent when the selection in the active editor changes
type DidChangeSelectionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Selection    Range                  `json:"selection"`
}

// DidChangeActiveEditorParams is sent when another editor becomes active.
// A nil TextDocument means no editor is active.
type DidChangeActiveEditorParams struct {
	TextDocument *TextDocumentIdentifier `json:"textDocument,omitempty"`
}

// DecorationOptions is one highlighted lifetime range
type DecorationOptions struct {
	Range        Range  `json:"range"`
	HoverMessage string `json:"hoverMessage"`
}

// DecorationsParams replaces all lifetime decorations of a document
type DecorationsParams struct {
	URI    string              `json:"uri"`
	Symbol string              `json:"symbol"`
	Ranges []DecorationOptions `json:"ranges"`
}

// LifetimesParams requests the current lifetime ranges of a document
type LifetimesParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// LifetimesResult is the answer to a vrlifetime/lifetimes request
type LifetimesResult struct {
	Symbol string  `json:"symbol"`
	Ranges []Range `json:"ranges"`
}

// ScanCompletedParams reports the outcome of a detector run
type ScanCompletedParams struct {
	Findings      int     `json:"findings"`
	Files         int     `json:"files"`
	TimeInSeconds float64 `json:"timeInSeconds"`
}
