package lsp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/vrlifetime/vrlifetime-lsp/internal/analyzer"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lifetime"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lockreport"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lsp/protocol"
	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
	"github.com/vrlifetime/vrlifetime-lsp/internal/scheduler"
	"golang.org/x/sync/singleflight"
)

// FindingCache persists the findings of the last scan
type FindingCache interface {
	Save(findings []lockreport.DoubleLockFinding) error
	Load() ([]lockreport.DoubleLockFinding, error)
	Clear() error
}

type rootSetter interface {
	SetRoot(root string)
}

// SessionOptions configures a Session
type SessionOptions struct {
	Analyzer  analyzer.Analyzer
	Documents *DocumentManager
	Notifier  Notifier
	// Cache is optional
	Cache  FindingCache
	Logger logrus.FieldLogger

	Debounce   time.Duration
	Prefix     rune
	Source     string
	ScanOnSave bool
}

// Session holds the state of one workspace: the active document, the last
// selection, the lifetime ranges of the selected symbol and the current
// double-lock diagnostics.
type Session struct {
	mu           sync.Mutex
	root         string
	activeURI    string
	selectedText string
	lastQuery    *analyzer.QueryRequest
	index        *lockreport.DiagnosticIndex
	// queries orders lifetime queries so an older refresh cannot replace
	// the ranges of a newer selection
	queries sync.Mutex

	baseCtx    context.Context
	analyzer   analyzer.Analyzer
	documents  *DocumentManager
	store      *lifetime.Store
	querier    *lifetime.Querier
	debouncer  *scheduler.Debouncer
	expander   position.Expander
	presenter  *presenter
	cache      FindingCache
	scans      singleflight.Group
	scanOnSave bool
	logger     logrus.FieldLogger
}

// NewSession creates a session. Background callbacks run with ctx.
func NewSession(ctx context.Context, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	documents := opts.Documents
	if documents == nil {
		documents = NewDocumentManager()
	}

	store := lifetime.NewStore()
	return &Session{
		index:      lockreport.NewDiagnosticIndex(),
		baseCtx:    ctx,
		analyzer:   opts.Analyzer,
		documents:  documents,
		store:      store,
		querier:    lifetime.NewQuerier(opts.Analyzer, store, logger),
		debouncer:  scheduler.New(opts.Debounce),
		expander:   position.NewExpander(opts.Prefix),
		presenter:  newPresenter(opts.Notifier, opts.Source),
		cache:      opts.Cache,
		scanOnSave: opts.ScanOnSave,
		logger:     logger,
	}
}

// SetRoot changes the workspace root. Lifetime ranges of the previous
// root are dropped.
func (s *Session) SetRoot(root string) {
	s.mu.Lock()
	changed := s.root != "" && s.root != root
	s.root = root
	if changed {
		s.lastQuery = nil
		s.selectedText = ""
	}
	s.mu.Unlock()

	if changed {
		s.store.Clear()
	}

	if setter, ok := s.analyzer.(rootSetter); ok {
		setter.SetRoot(root)
	}
}

// Root returns the workspace root
func (s *Session) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// ActiveURI returns the active document, "" when no editor is active
func (s *Session) ActiveURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeURI
}

// SelectedText returns the text of the last non-empty selection
func (s *Session) SelectedText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedText
}

// Index returns the current diagnostic index
func (s *Session) Index() *lockreport.DiagnosticIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Store returns the lifetime ranges of the selected symbol
func (s *Session) Store() *lifetime.Store {
	return s.store
}

// Documents returns the open documents
func (s *Session) Documents() *DocumentManager {
	return s.documents
}

// SelectionChanged queries the lifetime of the selected expression and
// schedules a decoration refresh. Empty selections and selections outside
// the active document are ignored.
func (s *Session) SelectionChanged(ctx context.Context, uri string, selection protocol.Range) error {
	if selection.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	if s.activeURI == "" {
		s.activeURI = uri
	}
	if s.activeURI != uri {
		s.mu.Unlock()
		return nil
	}

	text, _ := s.documents.GetDocumentText(uri)
	selected := fromProtocolRange(selection)
	expanded := s.expander.ExpandRange(text, selected)

	req := analyzer.QueryRequest{
		Root: s.root,
		File: relativePath(s.root, uriToPath(uri)),
		Pos:  position.EncodeRange(expanded),
	}
	s.selectedText = position.TextInRange(text, selected)
	s.lastQuery = &req
	symbol := s.selectedText
	s.mu.Unlock()

	s.logger.WithField("symbol", symbol).Debug("Selection changed")
	s.queries.Lock()
	err := s.querier.Query(ctx, req, symbol)
	s.queries.Unlock()
	s.TriggerDecorations()
	return err
}

// DocumentChanged schedules a decoration refresh when uri is active
func (s *Session) DocumentChanged(uri string) {
	if s.ActiveURI() == uri {
		s.TriggerDecorations()
	}
}

// DocumentSaved rebuilds the lifetime database and, if enabled, rescans
// the workspace. A pending decoration refresh runs right after.
func (s *Session) DocumentSaved(ctx context.Context, uri string) error {
	s.logger.WithField("uri", uri).Debug("Document saved")
	defer s.FlushDecorations()

	if err := s.Rebuild(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to rebuild the lifetime database")
	}
	if !s.scanOnSave {
		return nil
	}
	return s.Rescan(ctx)
}

// ActiveEditorChanged switches the active document and schedules a
// decoration refresh. An empty uri means no editor is active. It reports
// whether the workspace should be rescanned.
func (s *Session) ActiveEditorChanged(uri string) bool {
	s.mu.Lock()
	s.activeURI = uri
	s.mu.Unlock()

	if uri == "" {
		return false
	}

	s.TriggerDecorations()
	return true
}

// Rebuild regenerates the analyzer's lifetime database
func (s *Session) Rebuild(ctx context.Context) error {
	return s.analyzer.Rebuild(ctx)
}

// Rescan runs the double-lock detector and publishes its findings.
// Concurrent calls share one detector run.
func (s *Session) Rescan(ctx context.Context) error {
	_, err, shared := s.scans.Do("scan", func() (interface{}, error) {
		return nil, s.scan(ctx)
	})
	if shared {
		s.logger.Debug("Joined a running scan")
	}
	return err
}

func (s *Session) scan(ctx context.Context) error {
	started := time.Now()
	s.presenter.scanStarted(ctx)

	out, err := s.analyzer.RunScan(ctx)
	if err != nil {
		return err
	}

	parser := lockreport.NewParser()
	for _, line := range strings.Split(out, "\n") {
		parser.Feed(strings.TrimSuffix(line, "\r"))
	}
	if parser.Pending() {
		s.logger.WithField("state", parser.State().String()).Debug("Dropped a truncated double-lock report")
	}

	findings := parser.Findings()
	s.logger.WithField("findings", len(findings)).Info("Double-lock scan finished")

	if s.cache != nil {
		if err := s.cache.Save(findings); err != nil {
			s.logger.WithError(err).Warn("Failed to cache findings")
		}
	}

	index := lockreport.Aggregate(findings)
	s.setIndex(index)
	err = s.PublishDiagnostics(ctx)
	s.presenter.scanCompleted(ctx, index, time.Since(started))
	return err
}

func (s *Session) setIndex(index *lockreport.DiagnosticIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
}

// LoadCachedFindings publishes the findings of the previous session. It is
// a no-op when nothing was cached. An unreadable cache is cleared.
func (s *Session) LoadCachedFindings(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	findings, err := s.cache.Load()
	if err != nil {
		s.logger.WithError(err).Warn("Dropping unreadable findings cache")
		if clearErr := s.cache.Clear(); clearErr != nil {
			return multierror.Append(err, clearErr)
		}
		return err
	}
	if len(findings) == 0 {
		return nil
	}

	s.logger.WithField("findings", len(findings)).Info("Publishing cached findings")
	s.setIndex(lockreport.Aggregate(findings))
	return s.PublishDiagnostics(ctx)
}

// PublishDiagnostics sends the current index to the editor. When the active
// document lies outside the workspace all diagnostics are cleared instead.
func (s *Session) PublishDiagnostics(ctx context.Context) error {
	s.mu.Lock()
	root, active, index := s.root, s.activeURI, s.index
	s.mu.Unlock()

	if active != "" && !insideRoot(root, uriToPath(active)) {
		return s.presenter.clear(ctx)
	}
	return s.presenter.publish(ctx, root, index)
}

// PublishedURIs returns the documents that currently carry diagnostics
func (s *Session) PublishedURIs() []string {
	return s.presenter.publishedURIs()
}

// RefreshLifetimes re-runs the last lifetime query after the analyzer's
// database changed on disk
func (s *Session) RefreshLifetimes(ctx context.Context) error {
	s.queries.Lock()
	defer s.queries.Unlock()

	s.mu.Lock()
	if s.lastQuery == nil {
		s.mu.Unlock()
		return nil
	}
	req, symbol := *s.lastQuery, s.selectedText
	s.mu.Unlock()

	err := s.querier.Refresh(ctx, req, symbol)
	s.TriggerDecorations()
	return err
}

// TriggerDecorations schedules a decoration refresh for the active document
func (s *Session) TriggerDecorations() {
	s.debouncer.Trigger(s.updateDecorations)
}

// FlushDecorations runs a pending decoration refresh immediately
func (s *Session) FlushDecorations() {
	s.debouncer.Flush()
}

func (s *Session) updateDecorations() {
	s.mu.Lock()
	root, active := s.root, s.activeURI
	s.mu.Unlock()

	if root == "" || active == "" {
		return
	}

	ranges := s.store.Lookup(uriToPath(active))
	if err := s.presenter.decorate(s.baseCtx, active, s.store.Symbol(), ranges); err != nil {
		s.logger.WithError(err).Warn("Failed to send decorations")
	}
}

// Lifetimes returns the lifetime ranges of the selected symbol in uri
func (s *Session) Lifetimes(uri string) protocol.LifetimesResult {
	ranges := s.store.Lookup(uriToPath(uri))
	result := protocol.LifetimesResult{
		Symbol: s.store.Symbol(),
		Ranges: make([]protocol.Range, 0, len(ranges)),
	}
	for _, r := range ranges {
		result.Ranges = append(result.Ranges, toProtocolRange(r))
	}
	return result
}

// Hover describes the lifetime range under p, nil when p is outside all
// ranges of the selected symbol
func (s *Session) Hover(uri string, p protocol.Position) *protocol.Hover {
	pos := fromProtocolPosition(p)
	for _, r := range s.store.Lookup(uriToPath(uri)) {
		if !r.Contains(pos) {
			continue
		}

		value := lifetimeMessage(s.store.Symbol())
		if name, ok := s.documents.EnclosingFunction(uri, pos); ok {
			value += "\n\nin `fn " + name + "`"
		}
		rng := toProtocolRange(r)
		return &protocol.Hover{
			Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: value},
			Range:    &rng,
		}
	}
	return nil
}

// Close stops pending decoration refreshes
func (s *Session) Close() {
	s.debouncer.Close()
}
