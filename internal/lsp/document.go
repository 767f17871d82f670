package lsp

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
)

var fnDeclPattern = regexp.MustCompile(`fn\s+([A-Za-z_][A-Za-z0-9_]*)`)

// TextDocument represents a document open in the editor
type TextDocument struct {
	URI     string
	Text    []byte
	Version int
	Tree    *tree_sitter.Tree
}

// DocumentManager manages text documents. Rust sources are kept parsed.
type DocumentManager struct {
	documents map[string]*TextDocument
	mu        sync.RWMutex
	parser    *tree_sitter.Parser
}

// NewDocumentManager creates a new document manager
func NewDocumentManager() *DocumentManager {
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_rust.Language())); err != nil {
		parser.Close()
		parser = nil
	}
	return &DocumentManager{
		documents: make(map[string]*TextDocument),
		parser:    parser,
	}
}

func (m *DocumentManager) parse(doc *TextDocument) {
	if doc.Tree != nil {
		doc.Tree.Close()
		doc.Tree = nil
	}
	if m.parser == nil || strings.ToLower(filepath.Ext(doc.URI)) != ".rs" {
		return
	}
	doc.Tree = m.parser.Parse(doc.Text, nil)
}

// OpenDocument adds or replaces a document
func (m *DocumentManager) OpenDocument(uri string, text string, version int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.documents[uri]; ok && old.Tree != nil {
		old.Tree.Close()
	}

	doc := &TextDocument{
		URI:     uri,
		Text:    []byte(text),
		Version: version,
	}
	m.parse(doc)
	m.documents[uri] = doc
}

// UpdateDocument updates an existing document, creating it if needed
func (m *DocumentManager) UpdateDocument(uri string, text string, version int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[uri]
	if !ok {
		doc = &TextDocument{URI: uri}
		m.documents[uri] = doc
	}
	doc.Text = []byte(text)
	doc.Version = version
	m.parse(doc)
}

// CloseDocument removes a document
func (m *DocumentManager) CloseDocument(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc, ok := m.documents[uri]; ok && doc.Tree != nil {
		doc.Tree.Close()
	}

	delete(m.documents, uri)
}

// GetDocumentText returns the text of a document by URI
func (m *DocumentManager) GetDocumentText(uri string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if doc, ok := m.documents[uri]; ok {
		return string(doc.Text), true
	}
	return "", false
}

// TextInRange returns the text selected by r in the document
func (m *DocumentManager) TextInRange(uri string, r position.Range) string {
	text, ok := m.GetDocumentText(uri)
	if !ok {
		return ""
	}
	return position.TextInRange(text, r)
}

// EnclosingFunction returns the name of the innermost function containing
// the given position. Documents without a syntax tree fall back to a
// backwards scan for the closest fn declaration.
func (m *DocumentManager) EnclosingFunction(uri string, p position.Position) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[uri]
	if !ok {
		return "", false
	}

	if doc.Tree != nil {
		column, ok := position.ByteColumn(string(doc.Text), p)
		if !ok {
			return "", false
		}
		point := tree_sitter.Point{Row: uint(p.Line), Column: uint(column)}
		node := doc.Tree.RootNode().NamedDescendantForPointRange(point, point)
		for node != nil {
			if node.Kind() == "function_item" {
				if name := node.ChildByFieldName("name"); name != nil {
					return name.Utf8Text(doc.Text), true
				}
			}
			node = node.Parent()
		}
		return "", false
	}

	lines := strings.Split(string(doc.Text), "\n")
	if p.Line >= len(lines) {
		return "", false
	}
	for line := p.Line; line >= 0; line-- {
		if match := fnDeclPattern.FindStringSubmatch(lines[line]); match != nil {
			return match[1], true
		}
	}
	return "", false
}

// Close closes the document manager and frees resources
func (m *DocumentManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.documents {
		if doc.Tree != nil {
			doc.Tree.Close()
			doc.Tree = nil
		}
	}

	if m.parser != nil {
		m.parser.Close()
		m.parser = nil
	}
}
