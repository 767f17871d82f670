package lsp

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lockreport"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lsp/protocol"
	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
)

// Notifier sends JSON-RPC notifications, *jsonrpc2.Conn implements it
type Notifier interface {
	Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error
}

// presenter turns session state into notifications for the editor. It
// remembers which documents carry diagnostics so stale ones can be cleared.
type presenter struct {
	notifier Notifier
	source   string

	mu        sync.Mutex
	published map[string]bool
}

func newPresenter(notifier Notifier, source string) *presenter {
	return &presenter{
		notifier:  notifier,
		source:    source,
		published: make(map[string]bool),
	}
}

func toProtocolRange(r position.Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: r.Start.Line, Character: r.Start.Column},
		End:   protocol.Position{Line: r.End.Line, Character: r.End.Column},
	}
}

func fromProtocolRange(r protocol.Range) position.Range {
	return position.Range{
		Start: fromProtocolPosition(r.Start),
		End:   fromProtocolPosition(r.End),
	}
}

func fromProtocolPosition(p protocol.Position) position.Position {
	return position.Position{Line: p.Line, Column: p.Character}
}

func lifetimeMessage(symbol string) string {
	return fmt.Sprintf("lifetime for **%s**", symbol)
}

// diagnostics converts the index into per-document diagnostics. Analyzer
// paths are relative to root.
func (p *presenter) diagnostics(root string, index *lockreport.DiagnosticIndex) map[string][]protocol.Diagnostic {
	out := make(map[string][]protocol.Diagnostic)
	index.Each(func(d lockreport.Diagnostic) {
		uri := pathToURI(filepath.Join(root, filepath.FromSlash(d.File)))

		related := make([]protocol.DiagnosticRelatedInformation, 0, len(d.RelatedSites))
		for _, site := range d.RelatedSites {
			related = append(related, protocol.DiagnosticRelatedInformation{
				Location: protocol.Location{
					URI:   pathToURI(filepath.Join(root, filepath.FromSlash(site.File))),
					Range: toProtocolRange(site.Range),
				},
				Message: site.Message,
			})
		}

		out[uri] = append(out[uri], protocol.Diagnostic{
			Range:              toProtocolRange(d.Range),
			Severity:           protocol.DiagnosticSeverityWarning,
			Source:             p.source,
			Message:            d.Message,
			RelatedInformation: related,
		})
	})
	return out
}

// publish sends diagnostics for every file in the index and clears documents
// that were published before but have no findings now
func (p *presenter) publish(ctx context.Context, root string, index *lockreport.DiagnosticIndex) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.diagnostics(root, index)

	var result *multierror.Error
	for _, file := range index.Files() {
		uri := pathToURI(filepath.Join(root, filepath.FromSlash(file)))
		if err := p.send(ctx, uri, current[uri]); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		p.published[uri] = true
	}

	for uri := range p.published {
		if _, ok := current[uri]; ok {
			continue
		}
		if err := p.send(ctx, uri, []protocol.Diagnostic{}); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		delete(p.published, uri)
	}

	return result.ErrorOrNil()
}

// clear removes every published diagnostic
func (p *presenter) clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for uri := range p.published {
		if err := p.send(ctx, uri, []protocol.Diagnostic{}); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		delete(p.published, uri)
	}
	return result.ErrorOrNil()
}

// publishedURIs returns the documents currently carrying diagnostics
func (p *presenter) publishedURIs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	uris := make([]string, 0, len(p.published))
	for uri := range p.published {
		uris = append(uris, uri)
	}
	return uris
}

func (p *presenter) send(ctx context.Context, uri string, diagnostics []protocol.Diagnostic) error {
	if p.notifier == nil {
		return nil
	}
	return p.notifier.Notify(ctx, "textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// decorate replaces the lifetime highlights of a document
func (p *presenter) decorate(ctx context.Context, uri, symbol string, ranges []position.Range) error {
	if p.notifier == nil {
		return nil
	}

	options := make([]protocol.DecorationOptions, 0, len(ranges))
	for _, r := range ranges {
		options = append(options, protocol.DecorationOptions{
			Range:        toProtocolRange(r),
			HoverMessage: lifetimeMessage(symbol),
		})
	}

	return p.notifier.Notify(ctx, protocol.MethodDecorations, protocol.DecorationsParams{
		URI:    uri,
		Symbol: symbol,
		Ranges: options,
	})
}

func (p *presenter) scanStarted(ctx context.Context) {
	if p.notifier == nil {
		return
	}
	_ = p.notifier.Notify(ctx, protocol.MethodScanStarted, map[string]interface{}{
		"message": "Double-lock scan started",
	})
}

func (p *presenter) scanCompleted(ctx context.Context, index *lockreport.DiagnosticIndex, elapsed time.Duration) {
	if p.notifier == nil {
		return
	}
	_ = p.notifier.Notify(ctx, protocol.MethodScanCompleted, protocol.ScanCompletedParams{
		Findings:      index.Len(),
		Files:         len(index.Files()),
		TimeInSeconds: elapsed.Seconds(),
	})
}
