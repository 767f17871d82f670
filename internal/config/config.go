package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/vrlifetime/vrlifetime-lsp/internal/analyzer"
	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
	"github.com/vrlifetime/vrlifetime-lsp/internal/scheduler"
)

// FileName is the per-project configuration file looked up in the workspace root
const FileName = ".vrlifetime.toml"

// Config is the server configuration
type Config struct {
	LogLevel    string            `toml:"log_level"`
	Analyzer    AnalyzerConfig    `toml:"analyzer"`
	Editor      EditorConfig      `toml:"editor"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// AnalyzerConfig holds the analyzer command lines. {root} is replaced by the
// workspace root.
type AnalyzerConfig struct {
	Query           string `toml:"query"`
	Rebuild         string `toml:"rebuild"`
	Scan            string `toml:"scan"`
	Clean           string `toml:"clean"`
	CleanBeforeScan bool   `toml:"clean_before_scan"`
	// ScanOnSave runs the detector on every textDocument/didSave
	ScanOnSave bool `toml:"scan_on_save"`
}

type EditorConfig struct {
	DebounceMs      int    `toml:"debounce_ms"`
	ReferencePrefix string `toml:"reference_prefix"`
}

type DiagnosticsConfig struct {
	Source string `toml:"source"`
	Cache  bool   `toml:"cache"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		LogLevel: logrus.InfoLevel.String(),
		Analyzer: AnalyzerConfig{
			Query:           "lifetime-query",
			Rebuild:         "lifetime-build {root}",
			Scan:            "cargo +nightly-2020-05-10 lock-bug-detect double-lock",
			Clean:           "cargo clean",
			CleanBeforeScan: true,
			ScanOnSave:      true,
		},
		Editor: EditorConfig{
			DebounceMs:      int(scheduler.DefaultQuietInterval / time.Millisecond),
			ReferencePrefix: string(position.DefaultReferencePrefix),
		},
		Diagnostics: DiagnosticsConfig{
			Source: "VRLifeTime",
			Cache:  true,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to stat %q: %w", path, err)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode %q: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// LoadForRoot loads the project configuration from the workspace root
func LoadForRoot(root string) (Config, error) {
	return Load(filepath.Join(root, FileName))
}

// Validate checks values that would otherwise fail late
func (c Config) Validate() error {
	if c.Editor.DebounceMs < 0 {
		return fmt.Errorf("editor.debounce_ms must not be negative")
	}
	if utf8.RuneCountInString(c.Editor.ReferencePrefix) > 1 {
		return fmt.Errorf("editor.reference_prefix must be a single character, got %q", c.Editor.ReferencePrefix)
	}
	if c.Analyzer.Query == "" || c.Analyzer.Scan == "" {
		return fmt.Errorf("analyzer.query and analyzer.scan must be set")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Debounce returns the decoration quiet interval
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Editor.DebounceMs) * time.Millisecond
}

// Prefix returns the reference-prefix character, zero when unset
func (c Config) Prefix() rune {
	r, _ := utf8.DecodeRuneInString(c.Editor.ReferencePrefix)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

// Commands converts the analyzer section for the process analyzer
func (c Config) Commands() analyzer.Commands {
	commands := analyzer.Commands{
		Query:   c.Analyzer.Query,
		Rebuild: c.Analyzer.Rebuild,
		Scan:    c.Analyzer.Scan,
	}
	if c.Analyzer.CleanBeforeScan {
		commands.Clean = c.Analyzer.Clean
	}
	return commands
}
