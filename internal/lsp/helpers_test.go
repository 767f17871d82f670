package lsp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/vrlifetime/vrlifetime-lsp/internal/analyzer"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lockreport"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lsp/protocol"
)

const testRoot = "/ws"

const doubleLockReport = "Compiling demo v0.1.0\n" +
	"{FirstLock: (Mutex, \"m1\")}\n" +
	"\tsrc/a.rs:3:1: 3:10\n" +
	"{SecondLock: (Mutex, \"m2\")}\n" +
	"\tsrc/b.rs:5:2: 5:12\n" +
	"Callchains: {f -> g}\n" +
	"Finished dev\n"

type fakeAnalyzer struct {
	mu       sync.Mutex
	root     string
	outputs  [][]byte
	requests []analyzer.QueryRequest
	scan     string
	scanErr  error
	scans    int
	rebuilds int

	// when set, RunScan signals entered and waits for release
	entered chan struct{}
	release chan struct{}
	// when set, the next RunQuery blocks on it
	queryGate *gate
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (f *fakeAnalyzer) SetRoot(root string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.root = root
}

func (f *fakeAnalyzer) RunQuery(ctx context.Context, req analyzer.QueryRequest) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	out := []byte("{}")
	if len(f.outputs) > 0 {
		out = f.outputs[0]
		if len(f.outputs) > 1 {
			f.outputs = f.outputs[1:]
		}
	}
	g := f.queryGate
	f.queryGate = nil
	f.mu.Unlock()

	if g != nil {
		g.entered <- struct{}{}
		<-g.release
	}
	return out, nil
}

func (f *fakeAnalyzer) blockNextQuery() *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryGate = newGate()
	return f.queryGate
}

func (f *fakeAnalyzer) request(i int) analyzer.QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeAnalyzer) RunScan(ctx context.Context) (string, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return f.scan, f.scanErr
}

func (f *fakeAnalyzer) Rebuild(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	return nil
}

func (f *fakeAnalyzer) counts() (queries, scans, rebuilds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests), f.scans, f.rebuilds
}

func (f *fakeAnalyzer) setScan(out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scan = out
}

type notification struct {
	method string
	params interface{}
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notification
}

func (r *recordingNotifier) Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, notification{method: method, params: params})
	return nil
}

func (r *recordingNotifier) byMethod(method string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, item := range r.items {
		if item.method == method {
			out = append(out, item.params)
		}
	}
	return out
}

// published returns the last diagnostics sent per URI
func (r *recordingNotifier) published() map[string][]protocol.Diagnostic {
	out := make(map[string][]protocol.Diagnostic)
	for _, params := range r.byMethod("textDocument/publishDiagnostics") {
		p := params.(protocol.PublishDiagnosticsParams)
		out[p.URI] = p.Diagnostics
	}
	return out
}

type fakeCache struct {
	mu      sync.Mutex
	stored  []lockreport.DoubleLockFinding
	loadErr error
	saves   int
	clears  int
}

func (c *fakeCache) Save(findings []lockreport.DoubleLockFinding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = findings
	c.saves++
	return nil
}

func (c *fakeCache) Load() ([]lockreport.DoubleLockFinding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored, c.loadErr
}

func (c *fakeCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = nil
	c.loadErr = nil
	c.clears++
	return nil
}

func newTestSession(t *testing.T, fake *fakeAnalyzer, opts SessionOptions) (*Session, *recordingNotifier) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	notifier := &recordingNotifier{}

	opts.Analyzer = fake
	opts.Notifier = notifier
	opts.Logger = logger
	if opts.Debounce == 0 {
		// decorations are flushed explicitly
		opts.Debounce = time.Hour
	}
	if opts.Source == "" {
		opts.Source = "VRLifeTime"
	}

	session := NewSession(context.Background(), opts)
	session.SetRoot(testRoot)
	t.Cleanup(func() {
		session.Close()
		session.Documents().Close()
	})
	return session, notifier
}

func selection(startLine, startChar, endLine, endChar int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: startLine, Character: startChar},
		End:   protocol.Position{Line: endLine, Character: endChar},
	}
}
