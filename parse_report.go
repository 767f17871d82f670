package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lockreport"
)

var parseReportCmd = &cobra.Command{
	Use:   "parse-report <file>",
	Short: "Print the diagnostics of a saved double-lock report",
	Long: `parse-report reads the captured output of the double-lock detector and
prints the findings grouped by file and range as JSON, in report order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		out, err := renderReport(string(data))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

type reportFile struct {
	File   string        `json:"file"`
	Ranges []reportRange `json:"ranges"`
}

type reportRange struct {
	Range   string                       `json:"range"`
	Entries []lockreport.DiagnosticEntry `json:"entries"`
}

// renderReport lists the diagnostics of a report in the order the detector
// reported their files and ranges
func renderReport(report string) ([]byte, error) {
	index := lockreport.Aggregate(lockreport.Parse(report))

	files := make([]reportFile, 0, len(index.Files()))
	for _, file := range index.Files() {
		entry := reportFile{File: file}
		for _, key := range index.Ranges(file) {
			entry.Ranges = append(entry.Ranges, reportRange{Range: key, Entries: index.Entries(file, key)})
		}
		files = append(files, entry)
	}

	raw, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	return pretty.Pretty(raw), nil
}
