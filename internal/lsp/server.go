package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/vrlifetime/vrlifetime-lsp/internal/analyzer"
	"github.com/vrlifetime/vrlifetime-lsp/internal/config"
	"github.com/vrlifetime/vrlifetime-lsp/internal/indexer"
	"github.com/vrlifetime/vrlifetime-lsp/internal/logging"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lsp/protocol"
)

// AnalyzerFactory creates the analyzer for a workspace root
type AnalyzerFactory func(root string, cfg config.Config, logger logrus.FieldLogger) analyzer.Analyzer

// Options configures a Server
type Options struct {
	Config config.Config
	// ProjectConfig reads the workspace's config file on initialize
	ProjectConfig bool
	// Override is applied to every loaded configuration, e.g. CLI flags
	Override func(cfg *config.Config)

	Logger *logrus.Logger
	Hook   *logging.ClientHook

	// StateDir returns the per-project state directory; nil disables the
	// findings cache
	StateDir func(root string) (string, error)
	Analyzer AnalyzerFactory
	// Notifier replaces the connection for outgoing notifications
	Notifier Notifier
	// Watch enables the analyzer output watcher
	Watch bool
}

// Server represents the LSP server
type Server struct {
	opts            Options
	cfg             config.Config
	rootPath        string
	folders         []protocol.WorkspaceFolder
	conn            *jsonrpc2.Conn
	logger          *logrus.Logger
	documentManager *DocumentManager
	session         *Session
	findings        *indexer.FindingIndex
	watcher         *indexer.OutputWatcher

	baseCtx context.Context
	cancel  context.CancelFunc
	tasks   sync.WaitGroup
	mu      sync.Mutex
}

// NewServer creates a new LSP server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Analyzer == nil {
		opts.Analyzer = func(root string, cfg config.Config, logger logrus.FieldLogger) analyzer.Analyzer {
			return analyzer.NewProcessAnalyzer(root, cfg.Commands(), logger)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:            opts,
		cfg:             opts.Config,
		logger:          logger,
		documentManager: NewDocumentManager(),
		baseCtx:         ctx,
		cancel:          cancel,
	}
}

// Notify forwards a notification to the editor
func (s *Server) Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error {
	if s.opts.Notifier != nil {
		return s.opts.Notifier.Notify(ctx, method, params, opts...)
	}
	if s.conn == nil {
		return nil
	}
	return s.conn.Notify(ctx, method, params, opts...)
}

func (s *Server) Start(in io.Reader, out io.Writer) error {
	// Create a new JSON-RPC connection
	stream := jsonrpc2.NewBufferedStream(rwc{in, out}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(s.baseCtx, stream, jsonrpc2.HandlerWithError(s.handle))
	s.conn = conn
	if s.opts.Hook != nil {
		s.opts.Hook.Attach(s)
	}

	// Wait for the connection to close
	<-conn.DisconnectNotify()
	return s.CloseAll()
}

// rwc combines a reader and writer into a single ReadWriteCloser
type rwc struct {
	io.Reader
	io.Writer
}

// Close implements io.Closer
func (rwc) Close() error {
	return nil
}

// handle processes incoming JSON-RPC requests and notifications
func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	// Handle exit notification after shutdown
	if req.Method == "exit" {
		s.logger.Info("Received exit notification, exiting")
		if err := conn.Close(); err != nil {
			s.logger.WithError(err).Warn("error closing connection")
		}
		return nil, nil
	}

	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}
	result, err := s.dispatch(ctx, req.Method, params)
	if errors.Is(err, errMethodNotFound) {
		// This is a notification, no response needed
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "Method not implemented: " + req.Method}
	}
	return result, err
}

var errMethodNotFound = errors.New("method not found")

func parseParams(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeParseError, Message: err.Error()}
	}
	return nil
}

// dispatch routes one message. Requests arriving before initialize only see
// the document manager.
func (s *Server) dispatch(ctx context.Context, method string, raw json.RawMessage) (interface{}, error) {
	switch method {
	case "initialize":
		var params protocol.InitializeParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		return s.initialize(&params), nil

	case "initialized":
		s.background("startup", s.startup)
		return nil, nil

	case "textDocument/didOpen":
		var params protocol.DidOpenTextDocumentParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		s.documentManager.OpenDocument(params.TextDocument.URI, params.TextDocument.Text, params.TextDocument.Version)
		return nil, nil

	case "textDocument/didChange":
		var params protocol.DidChangeTextDocumentParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		if len(params.ContentChanges) > 0 {
			last := params.ContentChanges[len(params.ContentChanges)-1]
			s.documentManager.UpdateDocument(params.TextDocument.URI, last.Text, params.TextDocument.Version)
		}
		if session := s.currentSession(); session != nil {
			session.DocumentChanged(params.TextDocument.URI)
		}
		return nil, nil

	case "textDocument/didSave":
		var params protocol.DidSaveTextDocumentParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		if session := s.currentSession(); session != nil {
			s.background("save", func(ctx context.Context) error {
				return session.DocumentSaved(ctx, params.TextDocument.URI)
			})
		}
		return nil, nil

	case "textDocument/didClose":
		var params protocol.DidCloseTextDocumentParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		s.documentManager.CloseDocument(params.TextDocument.URI)
		return nil, nil

	case "textDocument/hover":
		var params protocol.HoverParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		session := s.currentSession()
		if session == nil {
			return nil, nil
		}
		return session.Hover(params.TextDocument.URI, params.Position), nil

	case protocol.MethodDidChangeSelection:
		var params protocol.DidChangeSelectionParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		if session := s.currentSession(); session != nil {
			if err := session.SelectionChanged(ctx, params.TextDocument.URI, params.Selection); err != nil {
				s.logger.WithError(err).Debug("Lifetime query failed")
			}
		}
		return nil, nil

	case protocol.MethodDidChangeActiveEditor:
		var params protocol.DidChangeActiveEditorParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		uri := ""
		if params.TextDocument != nil {
			uri = params.TextDocument.URI
		}
		if session := s.currentSession(); session != nil && session.ActiveEditorChanged(uri) {
			s.background("scan", session.Rescan)
		}
		return nil, nil

	case protocol.MethodLifetimes:
		var params protocol.LifetimesParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		session := s.currentSession()
		if session == nil {
			return protocol.LifetimesResult{Ranges: []protocol.Range{}}, nil
		}
		return session.Lifetimes(params.TextDocument.URI), nil

	case "workspace/executeCommand":
		var params protocol.ExecuteCommandParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		return s.executeCommand(&params)

	case "workspace/didChangeWorkspaceFolders":
		var params protocol.DidChangeWorkspaceFoldersParams
		if err := parseParams(raw, &params); err != nil {
			return nil, err
		}
		s.changeWorkspaceFolders(params.Event)
		return nil, nil

	case "shutdown":
		// Clean up resources
		if err := s.CloseAll(); err != nil {
			s.logger.WithError(err).Warn("Error closing resources")
		}

		s.logger.Info("Received shutdown request, waiting for exit notification")
		return nil, nil

	default:
		return nil, errMethodNotFound
	}
}

// initialize handles the LSP initialize request
func (s *Server) initialize(params *protocol.InitializeParams) interface{} {
	// Extract root path from params
	s.extractRootPath(params)
	s.folders = append([]protocol.WorkspaceFolder(nil), params.WorkspaceFolders...)

	s.loadProjectConfig()
	s.openSession()

	// Define server capabilities
	return map[string]interface{}{
		"capabilities": map[string]interface{}{
			"textDocumentSync": map[string]interface{}{
				"openClose": true,
				"change":    1, // Full sync
				"save": map[string]interface{}{
					"includeText": false,
				},
			},
			"hoverProvider": true,
			"executeCommandProvider": map[string]interface{}{
				"commands": []string{protocol.CommandRescan, protocol.CommandRebuild},
			},
			"workspace": map[string]interface{}{
				"workspaceFolders": map[string]interface{}{
					"supported":           true,
					"changeNotifications": true,
				},
			},
		},
		"serverInfo": map[string]interface{}{
			"name": "vrlifetime-lsp",
		},
	}
}

// extractRootPath extracts the root path from the initialize params
func (s *Server) extractRootPath(params *protocol.InitializeParams) {
	// Try to get from RootPath
	if params.RootPath != "" {
		s.rootPath = params.RootPath
		return
	}

	// Try to get from RootURI
	if params.RootURI != "" {
		s.rootPath = uriToPath(params.RootURI)
		return
	}

	// Try to get from WorkspaceFolders
	if len(params.WorkspaceFolders) > 0 {
		s.rootPath = uriToPath(params.WorkspaceFolders[0].URI)
		return
	}

	// Fall back to current directory
	s.rootPath, _ = os.Getwd()
}

func (s *Server) loadProjectConfig() {
	if !s.opts.ProjectConfig {
		return
	}

	cfg, err := config.LoadForRoot(s.rootPath)
	if err != nil {
		s.logger.WithError(err).WithField("file", filepath.Join(s.rootPath, config.FileName)).Warn("Ignoring invalid project config")
		return
	}
	if s.opts.Override != nil {
		s.opts.Override(&cfg)
	}
	s.cfg = cfg

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		s.logger.SetLevel(level)
	}
}

func (s *Server) openSession() {
	logger := s.logger.WithField("root", s.rootPath)

	var cache FindingCache
	if s.cfg.Diagnostics.Cache && s.opts.StateDir != nil {
		if findings, err := s.openFindingIndex(); err != nil {
			logger.WithError(err).Warn("Findings cache disabled")
		} else {
			s.findings = findings
			cache = findings
		}
	}

	session := NewSession(s.baseCtx, SessionOptions{
		Analyzer:   s.opts.Analyzer(s.rootPath, s.cfg, logger),
		Documents:  s.documentManager,
		Notifier:   s,
		Cache:      cache,
		Logger:     logger,
		Debounce:   s.cfg.Debounce(),
		Prefix:     s.cfg.Prefix(),
		Source:     s.cfg.Diagnostics.Source,
		ScanOnSave: s.cfg.Analyzer.ScanOnSave,
	})
	session.SetRoot(s.rootPath)

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

func (s *Server) openFindingIndex() (*indexer.FindingIndex, error) {
	dir, err := s.opts.StateDir(s.rootPath)
	if err != nil {
		return nil, err
	}
	wiped, err := indexer.CheckAndMigrateCache(dir)
	if err != nil {
		return nil, err
	}
	if wiped {
		s.logger.WithField("dir", dir).Debug("Findings cache reset")
	}
	return indexer.NewFindingIndex(filepath.Join(dir, "findings.db"))
}

func (s *Server) currentSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// startup publishes cached findings, runs the first scan and starts
// watching analyzer output. Cached findings stay up until the scan
// replaces them.
func (s *Server) startup(ctx context.Context) error {
	session := s.currentSession()
	if session == nil {
		return nil
	}

	var result *multierror.Error
	if err := session.LoadCachedFindings(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	s.background("scan", session.Rescan)
	if s.opts.Watch {
		if err := s.startWatcher(session.Root()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *Server) startWatcher(root string) error {
	session := s.currentSession()
	watcher := indexer.NewOutputWatcher(root, indexer.DefaultWatchDelay, func(paths []string) {
		s.logger.WithField("files", paths).Debug("Lifetime database changed")
		s.background("refresh", session.RefreshLifetimes)
	}, s.logger)
	if err := watcher.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.watcher
	s.watcher = watcher
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return nil
}

// changeWorkspaceFolders keeps the first remaining folder as root
func (s *Server) changeWorkspaceFolders(event protocol.WorkspaceFoldersChangeEvent) {
	removed := make(map[string]bool, len(event.Removed))
	for _, folder := range event.Removed {
		removed[folder.URI] = true
	}

	folders := make([]protocol.WorkspaceFolder, 0, len(s.folders)+len(event.Added))
	for _, folder := range s.folders {
		if !removed[folder.URI] {
			folders = append(folders, folder)
		}
	}
	folders = append(folders, event.Added...)
	s.folders = folders

	if len(folders) == 0 {
		return
	}
	root := uriToPath(folders[0].URI)
	if root == "" || root == s.rootPath {
		return
	}

	s.rootPath = root
	s.logger.WithField("root", root).Info("Workspace root changed")
	session := s.currentSession()
	if session == nil {
		return
	}
	session.SetRoot(root)

	s.mu.Lock()
	watching := s.watcher != nil
	s.mu.Unlock()
	if watching {
		if err := s.startWatcher(root); err != nil {
			s.logger.WithError(err).Warn("Failed to watch the new workspace root")
		}
	}
}

func (s *Server) executeCommand(params *protocol.ExecuteCommandParams) (interface{}, error) {
	session := s.currentSession()
	if session == nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "server not initialized"}
	}

	switch params.Command {
	case protocol.CommandRescan:
		s.background("scan", session.Rescan)
		return map[string]interface{}{
			"message": "Double-lock scan started",
		}, nil

	case protocol.CommandRebuild:
		s.background("rebuild", func(ctx context.Context) error {
			if err := session.Rebuild(ctx); err != nil {
				return err
			}
			return session.RefreshLifetimes(ctx)
		})
		return map[string]interface{}{
			"message": "Lifetime database rebuild started",
		}, nil

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "Unknown command: " + params.Command}
	}
}

// background runs fn off the request goroutine
func (s *Server) background(name string, fn func(ctx context.Context) error) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		if err := fn(s.baseCtx); err != nil {
			s.logger.WithError(err).WithField("task", name).Warn("Background task failed")
		}
	}()
}

// Wait blocks until all background tasks have finished
func (s *Server) Wait() {
	s.tasks.Wait()
}

// CloseAll stops background work and closes all resources. It is safe to
// call more than once.
func (s *Server) CloseAll() error {
	s.cancel()

	s.mu.Lock()
	watcher, session, findings := s.watcher, s.session, s.findings
	s.watcher, s.findings = nil, nil
	s.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if session != nil {
		session.Close()
	}
	s.tasks.Wait()

	var result *multierror.Error
	if findings != nil {
		if err := findings.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.documentManager != nil {
		s.documentManager.Close()
	}
	return result.ErrorOrNil()
}

// Session returns the workspace session, nil before initialize
func (s *Server) Session() *Session {
	return s.currentSession()
}

// DocumentManager returns the open documents
func (s *Server) DocumentManager() *DocumentManager {
	return s.documentManager
}
