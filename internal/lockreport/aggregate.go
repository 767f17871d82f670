package lockreport

import "github.com/vrlifetime/vrlifetime-lsp/internal/position"

// DiagnosticEntry is one warning on an offending range
type DiagnosticEntry struct {
	Message      string     `json:"message"`
	RelatedSites []LockSite `json:"relatedSites"`
}

// Diagnostic is a flattened (file, range, entry) tuple
type Diagnostic struct {
	File         string
	Range        position.Range
	Message      string
	RelatedSites []LockSite
}

type rangeEntries struct {
	rng     position.Range
	entries []DiagnosticEntry
}

type fileDiagnostics struct {
	ranges map[string]*rangeEntries
	order  []string
}

// DiagnosticIndex groups findings by offending file and range. Iteration
// follows insertion order.
type DiagnosticIndex struct {
	files map[string]*fileDiagnostics
	order []string
	count int
}

// NewDiagnosticIndex creates an empty index
func NewDiagnosticIndex() *DiagnosticIndex {
	return &DiagnosticIndex{
		files: make(map[string]*fileDiagnostics),
	}
}

// Aggregate builds a fresh index from parsed findings
func Aggregate(findings []DoubleLockFinding) *DiagnosticIndex {
	idx := NewDiagnosticIndex()
	for _, finding := range findings {
		idx.Add(finding)
	}
	return idx
}

// Add appends a new entry under the finding's second lock site. Findings on
// the same site are kept as separate entries.
func (idx *DiagnosticIndex) Add(finding DoubleLockFinding) {
	site := finding.SecondLock

	file, ok := idx.files[site.File]
	if !ok {
		file = &fileDiagnostics{ranges: make(map[string]*rangeEntries)}
		idx.files[site.File] = file
		idx.order = append(idx.order, site.File)
	}

	key := site.RangeKey()
	entries, ok := file.ranges[key]
	if !ok {
		entries = &rangeEntries{rng: site.Range}
		file.ranges[key] = entries
		file.order = append(file.order, key)
	}

	entries.entries = append(entries.entries, DiagnosticEntry{
		Message:      site.Message,
		RelatedSites: []LockSite{finding.FirstLock},
	})
	idx.count++
}

// Files returns the files with at least one diagnostic
func (idx *DiagnosticIndex) Files() []string {
	return append([]string(nil), idx.order...)
}

// Ranges returns the serialized range keys for a file
func (idx *DiagnosticIndex) Ranges(file string) []string {
	f, ok := idx.files[file]
	if !ok {
		return nil
	}
	return append([]string(nil), f.order...)
}

// Entries returns the entries stored under a file and range key
func (idx *DiagnosticIndex) Entries(file, rangeKey string) []DiagnosticEntry {
	f, ok := idx.files[file]
	if !ok {
		return nil
	}
	r, ok := f.ranges[rangeKey]
	if !ok {
		return nil
	}
	return r.entries
}

// Each calls fn for every entry in insertion order
func (idx *DiagnosticIndex) Each(fn func(d Diagnostic)) {
	for _, name := range idx.order {
		f := idx.files[name]
		for _, key := range f.order {
			r := f.ranges[key]
			for _, entry := range r.entries {
				fn(Diagnostic{
					File:         name,
					Range:        r.rng,
					Message:      entry.Message,
					RelatedSites: entry.RelatedSites,
				})
			}
		}
	}
}

// FileDiagnostics returns the flattened diagnostics of one file
func (idx *DiagnosticIndex) FileDiagnostics(file string) []Diagnostic {
	var diagnostics []Diagnostic
	f, ok := idx.files[file]
	if !ok {
		return diagnostics
	}
	for _, key := range f.order {
		r := f.ranges[key]
		for _, entry := range r.entries {
			diagnostics = append(diagnostics, Diagnostic{
				File:         file,
				Range:        r.rng,
				Message:      entry.Message,
				RelatedSites: entry.RelatedSites,
			})
		}
	}
	return diagnostics
}

// Len returns the total number of entries
func (idx *DiagnosticIndex) Len() int {
	return idx.count
}
