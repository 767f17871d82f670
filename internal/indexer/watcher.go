package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// OutputPattern matches the lifetime databases the analyzer writes into the
// workspace root, one per crate.
const OutputPattern = "lifetime_*.info"

// DefaultWatchDelay is how long the watcher waits for writes to settle
const DefaultWatchDelay = 200 * time.Millisecond

// IsAnalyzerOutput reports whether path names a lifetime database
func IsAnalyzerOutput(path string) bool {
	ok, _ := filepath.Match(OutputPattern, filepath.Base(path))
	return ok
}

// OutputWatcher watches the workspace root for analyzer output and reports
// batches of changed databases once writes have settled.
type OutputWatcher struct {
	root     string
	delay    time.Duration
	onChange func(paths []string)
	logger   logrus.FieldLogger

	watcher   *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	watcherWg sync.WaitGroup
}

// NewOutputWatcher creates a watcher for root. onChange runs on the watcher
// goroutine.
func NewOutputWatcher(root string, delay time.Duration, onChange func(paths []string), logger logrus.FieldLogger) *OutputWatcher {
	if delay <= 0 {
		delay = DefaultWatchDelay
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &OutputWatcher{
		root:     root,
		delay:    delay,
		onChange: onChange,
		logger:   logger.WithField("component", "watcher"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Root returns the watched directory
func (w *OutputWatcher) Root() string {
	return w.root
}

// Start begins watching. The databases live directly in the root, so
// subdirectories are not watched.
func (w *OutputWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(w.root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	w.watcher = watcher
	w.watcherWg.Add(1)
	go w.loop()
	return nil
}

func (w *OutputWatcher) loop() {
	defer w.watcherWg.Done()
	defer func() { _ = w.watcher.Close() }()

	pending := make(map[string]bool)
	debounceTimer := time.NewTimer(time.Hour)
	debounceTimer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for path := range pending {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		pending = make(map[string]bool)

		w.logger.WithField("count", len(paths)).Debug("Analyzer output changed")
		if w.onChange != nil {
			w.onChange(paths)
		}
	}

	for {
		select {
		case <-w.ctx.Done():
			debounceTimer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsAnalyzerOutput(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[event.Name] = true

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.delay)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("File watcher error")

		case <-debounceTimer.C:
			flush()
		}
	}
}

// Stop stops the watcher and waits for its goroutine. Pending changes are
// dropped.
func (w *OutputWatcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcherWg.Wait()
		w.watcher = nil
	}
}
