package indexer

import (
	"github.com/vrlifetime/vrlifetime-lsp/internal/lockreport"
)

// FindingIndex persists the findings of the last detector run so a new
// session can publish them before its first scan finishes
type FindingIndex struct {
	data *DataIndexer[lockreport.DoubleLockFinding]
}

// NewFindingIndex opens the findings database at dbPath
func NewFindingIndex(dbPath string) (*FindingIndex, error) {
	data, err := NewDataIndexer[lockreport.DoubleLockFinding](dbPath)
	if err != nil {
		return nil, err
	}
	return &FindingIndex{data: data}, nil
}

// Save replaces the stored findings. Findings are keyed by the offending
// range and associated with the offending file.
func (f *FindingIndex) Save(findings []lockreport.DoubleLockFinding) error {
	items := make([]Item[lockreport.DoubleLockFinding], len(findings))
	for i, finding := range findings {
		items[i] = Item[lockreport.DoubleLockFinding]{
			FilePath: finding.SecondLock.File,
			Key:      finding.SecondLock.RangeKey(),
			Value:    finding,
		}
	}
	return f.data.ReplaceAll(items)
}

// Load returns the stored findings in their original order
func (f *FindingIndex) Load() ([]lockreport.DoubleLockFinding, error) {
	return f.data.GetAllValues()
}

// Clear drops all stored findings
func (f *FindingIndex) Clear() error {
	return f.data.Clear()
}

// Close closes the database
func (f *FindingIndex) Close() error {
	return f.data.Close()
}
