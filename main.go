package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vrlifetime/vrlifetime-lsp/internal/config"
	"github.com/vrlifetime/vrlifetime-lsp/internal/logging"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lsp"
)

var (
	configPath string
	logLevel   string
	debounceMs int

	rootCmd = &cobra.Command{
		Use:   "vrlifetime-lsp",
		Short: "Language server for the VRLifeTime lock and lifetime analyzer",
		Long: `vrlifetime-lsp speaks the Language Server Protocol over stdio. It shows the
lifetime of the selected Rust expression and reports double-lock findings of
the VRLifeTime analyzer as diagnostics.`,
		SilenceUsage: true,
		RunE:         runServer,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file, disables the per-project .vrlifetime.toml")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.Flags().IntVar(&debounceMs, "debounce", -1, "decoration quiet interval in milliseconds")

	rootCmd.AddCommand(parseReportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags overrides configuration values set on the command line
func applyFlags(cfg *config.Config) {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if debounceMs >= 0 {
		cfg.Editor.DebounceMs = debounceMs
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	hook := logging.NewClientHook(logrus.InfoLevel)
	logger.AddHook(hook)

	server := lsp.NewServer(lsp.Options{
		Config:        cfg,
		ProjectConfig: configPath == "",
		Override:      applyFlags,
		Logger:        logger,
		Hook:          hook,
		StateDir:      getProjectConfigFolder,
		Watch:         true,
	})

	if err := server.Start(os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("LSP server error: %w", err)
	}
	return nil
}
