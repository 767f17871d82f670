package logging

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrlifetime/vrlifetime-lsp/internal/lsp/protocol"
)

type recordingNotifier struct {
	mu      sync.Mutex
	methods []string
	params  []interface{}
}

func (r *recordingNotifier) Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append(r.methods, method)
	r.params = append(r.params, params)
	return nil
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug")
	require.NoError(t, err)

	logger.WithField("command", "cargo").Debug("Running analyzer")
	assert.Contains(t, buf.String(), "Running analyzer")
	assert.Contains(t, buf.String(), "command=cargo")

	logger, err = New(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	_, err = New(&buf, "chatty")
	assert.Error(t, err)
}

func TestClientHookForwardsEntries(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug")
	require.NoError(t, err)

	hook := NewClientHook(logrus.InfoLevel)
	logger.AddHook(hook)

	logger.Info("dropped before attach")

	notifier := &recordingNotifier{}
	hook.Attach(notifier)

	logger.Debug("below hook level")
	logger.WithError(errors.New("boom")).WithField("file", "src/main.rs").Error("Lifetime query failed")
	logger.Warn("careful")

	require.Len(t, notifier.params, 2)
	assert.Equal(t, []string{"window/logMessage", "window/logMessage"}, notifier.methods)
	assert.Equal(t, protocol.LogMessageParams{
		Type:    protocol.MessageTypeError,
		Message: "Lifetime query failed error=boom file=src/main.rs",
	}, notifier.params[0])
	assert.Equal(t, protocol.MessageTypeWarning, notifier.params[1].(protocol.LogMessageParams).Type)
}

func TestClientHookLevels(t *testing.T) {
	hook := NewClientHook(logrus.WarnLevel)
	assert.ElementsMatch(t, []logrus.Level{
		logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel,
	}, hook.Levels())
}
