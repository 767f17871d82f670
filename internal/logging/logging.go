package logging

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lsp/protocol"
)

// New creates the server logger. stdout belongs to the JSON-RPC stream, so
// out is normally stderr.
func New(out io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		DisableSorting:   false,
		QuoteEmptyFields: true,
	})

	if level == "" {
		level = logrus.InfoLevel.String()
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	logger.SetLevel(parsed)

	return logger, nil
}

// Notifier sends JSON-RPC notifications, *jsonrpc2.Conn implements it
type Notifier interface {
	Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error
}

// ClientHook mirrors log entries into the editor's output channel through
// window/logMessage. Entries are dropped until a connection is attached.
type ClientHook struct {
	mu       sync.RWMutex
	notifier Notifier
	levels   []logrus.Level
}

// NewClientHook creates a hook for entries at minLevel or more severe
func NewClientHook(minLevel logrus.Level) *ClientHook {
	var levels []logrus.Level
	for _, level := range logrus.AllLevels {
		if level <= minLevel {
			levels = append(levels, level)
		}
	}
	return &ClientHook{levels: levels}
}

// Attach sets the connection log entries are forwarded to
func (h *ClientHook) Attach(n Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifier = n
}

// Levels implements logrus.Hook
func (h *ClientHook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook
func (h *ClientHook) Fire(entry *logrus.Entry) error {
	h.mu.RLock()
	n := h.notifier
	h.mu.RUnlock()

	if n == nil {
		return nil
	}

	return n.Notify(context.Background(), "window/logMessage", protocol.LogMessageParams{
		Type:    messageType(entry.Level),
		Message: FormatEntry(entry),
	})
}

// FormatEntry renders the message followed by sorted key=value fields
func FormatEntry(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return entry.Message
	}

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(entry.Message)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Data[key])
	}
	return b.String()
}

func messageType(level logrus.Level) protocol.MessageType {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return protocol.MessageTypeError
	case logrus.WarnLevel:
		return protocol.MessageTypeWarning
	case logrus.InfoLevel:
		return protocol.MessageTypeInfo
	default:
		return protocol.MessageTypeLog
	}
}
