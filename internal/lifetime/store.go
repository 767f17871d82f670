package lifetime

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
)

// ErrMalformedResponse is returned when the query output is not a JSON object
var ErrMalformedResponse = errors.New("malformed lifetime query response")

type fileRanges struct {
	file   string
	ranges []position.Range
}

// Store holds the lifetime ranges of the currently selected symbol. It is
// replaced as a whole on every successful query.
type Store struct {
	mu      sync.RWMutex
	symbol  string
	entries []fileRanges
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Replace decodes a query response and swaps it in. On ErrMalformedResponse
// the store keeps its previous content. Values that fail to decode are
// skipped and returned as a combined error after the swap.
func (s *Store) Replace(symbol string, response []byte) error {
	if !gjson.ValidBytes(response) {
		return fmt.Errorf("%w: not valid JSON", ErrMalformedResponse)
	}

	parsed := gjson.ParseBytes(response)
	if !parsed.IsObject() {
		return fmt.Errorf("%w: expected an object, got %s", ErrMalformedResponse, parsed.Type)
	}

	var entries []fileRanges
	var decodeErr error

	parsed.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			decodeErr = multierror.Append(decodeErr, fmt.Errorf("ranges for %s are not a string", key.String()))
			return true
		}

		ranges, err := position.DecodeRangeList(value.String())
		if err != nil {
			decodeErr = multierror.Append(decodeErr, fmt.Errorf("failed to decode ranges for %s: %w", key.String(), err))
			return true
		}

		entries = append(entries, fileRanges{file: key.String(), ranges: ranges})
		return true
	})

	s.mu.Lock()
	s.symbol = symbol
	s.entries = entries
	s.mu.Unlock()

	return decodeErr
}

// Clear drops all ranges
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbol = ""
	s.entries = nil
}

// Symbol returns the text the ranges belong to
func (s *Store) Symbol() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbol
}

// Files returns the analyzer's file keys in response order
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]string, len(s.entries))
	for i, entry := range s.entries {
		files[i] = entry.file
	}
	return files
}

// Lookup returns the ranges for a document. Analyzer paths are relative, so
// the first key that is a suffix of documentPath wins.
func (s *Store) Lookup(documentPath string) []position.Range {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if strings.HasSuffix(documentPath, entry.file) {
			return append([]position.Range(nil), entry.ranges...)
		}
	}
	return nil
}
