package indexer

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAnalyzerOutput(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/ws/lifetime_demo.info", true},
		{"lifetime_.info", true},
		{"/ws/lifetime_demo.json", false},
		{"/ws/src/main.rs", false},
		{"/ws/my_lifetime_demo.info", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAnalyzerOutput(tt.path))
		})
	}
}

func TestOutputWatcherReportsBatches(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var batches [][]string
	w := NewOutputWatcher(root, 50*time.Millisecond, func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, paths)
	}, logrus.New())
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lifetime_b.info"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lifetime_a.info"), []byte("{}"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var seen []string
	for _, batch := range batches {
		seen = append(seen, batch...)
	}
	assert.Contains(t, seen, filepath.Join(root, "lifetime_a.info"))
	assert.Contains(t, seen, filepath.Join(root, "lifetime_b.info"))
	assert.NotContains(t, seen, filepath.Join(root, "notes.txt"))
}

func TestOutputWatcherStartMissingRoot(t *testing.T) {
	w := NewOutputWatcher(filepath.Join(t.TempDir(), "missing"), 0, nil, nil)
	assert.Error(t, w.Start())
	w.Stop()
}
