package analyzer

import (
	"context"
	"fmt"

	"github.com/tidwall/sjson"
)

// QueryRequest asks the analyzer for the lifetime of the expression at Pos
type QueryRequest struct {
	Root string `json:"root"`
	// File is relative to Root
	File string `json:"file"`
	// Pos is an encoded position range, e.g. "4:9: 4:10"
	Pos string `json:"pos"`
}

// JSON renders the request payload handed to the query command
func (r QueryRequest) JSON() (string, error) {
	payload := "{}"
	fields := []struct {
		path  string
		value string
	}{
		{"root", r.Root},
		{"file", r.File},
		{"pos", r.Pos},
	}

	for _, field := range fields {
		var err error
		payload, err = sjson.Set(payload, field.path, field.value)
		if err != nil {
			return "", fmt.Errorf("failed to set %s in query payload: %w", field.path, err)
		}
	}

	return payload, nil
}

// Analyzer is the external lock and lifetime detector. All calls block
// until the underlying process exits.
type Analyzer interface {
	// RunQuery returns the raw output of a lifetime query
	RunQuery(ctx context.Context, req QueryRequest) ([]byte, error)
	// RunScan returns the raw double-lock detector output for the workspace
	RunScan(ctx context.Context) (string, error)
	// Rebuild regenerates the analyzer's lifetime database for the workspace
	Rebuild(ctx context.Context) error
}

// InvocationError is returned when an analyzer command could not be started
type InvocationError struct {
	Command string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("failed to run %q: %v", e.Command, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
