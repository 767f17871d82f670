package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

const stateDirName = "vrlifetime-lsp"

// getProjectConfigFolder returns the state directory of a workspace root,
// creating it if needed. Distinct roots never share a directory.
func getProjectConfigFolder(projectRoot string) (string, error) {
	configDir, err := getUserConfigDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(configDir, stateDirName, projectSlug(projectRoot))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// projectSlug names a root by its base name and a hash of its cleaned path
func projectSlug(projectRoot string) string {
	root := filepath.Clean(projectRoot)
	sum := sha256.Sum256([]byte(root))

	base := strings.Trim(filepath.Base(root), `.\/:`)
	if base == "" {
		base = "root"
	}
	return base + "-" + hex.EncodeToString(sum[:6])
}

func getUserConfigDir() (string, error) {
	if configDir, err := os.UserConfigDir(); err == nil {
		return configDir, nil
	}
	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return filepath.Join(usr.HomeDir, ".config"), nil
}
