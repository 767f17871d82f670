package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// RootPlaceholder is replaced by the workspace root in configured commands
const RootPlaceholder = "{root}"

// Commands are the shell-style command lines used to drive the analyzer
type Commands struct {
	Query   string
	Rebuild string
	Scan    string
	// Clean runs before Scan when set
	Clean string
}

// ProcessAnalyzer runs the analyzer as child processes in the workspace root
type ProcessAnalyzer struct {
	mu       sync.RWMutex
	root     string
	commands Commands
	logger   logrus.FieldLogger
}

// NewProcessAnalyzer creates an analyzer bound to a workspace root
func NewProcessAnalyzer(root string, commands Commands, logger logrus.FieldLogger) *ProcessAnalyzer {
	return &ProcessAnalyzer{
		root:     root,
		commands: commands,
		logger:   logger,
	}
}

// SetRoot changes the workspace root, e.g. after a workspace folder change
func (a *ProcessAnalyzer) SetRoot(root string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.root = root
}

// Root returns the current workspace root
func (a *ProcessAnalyzer) Root() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.root
}

// RunQuery passes the request JSON as the last argument of the query command
func (a *ProcessAnalyzer) RunQuery(ctx context.Context, req QueryRequest) ([]byte, error) {
	payload, err := req.JSON()
	if err != nil {
		return nil, err
	}

	args, err := SplitCommand(a.commands.Query, a.Root())
	if err != nil {
		return nil, err
	}

	return a.run(ctx, append(args, payload))
}

// RunScan runs the optional clean command and then the detector
func (a *ProcessAnalyzer) RunScan(ctx context.Context) (string, error) {
	root := a.Root()

	if a.commands.Clean != "" {
		args, err := SplitCommand(a.commands.Clean, root)
		if err != nil {
			return "", err
		}
		if _, err := a.run(ctx, args); err != nil {
			return "", err
		}
	}

	args, err := SplitCommand(a.commands.Scan, root)
	if err != nil {
		return "", err
	}

	out, err := a.run(ctx, args)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Rebuild runs the rebuild command
func (a *ProcessAnalyzer) Rebuild(ctx context.Context) error {
	args, err := SplitCommand(a.commands.Rebuild, a.Root())
	if err != nil {
		return err
	}
	_, err = a.run(ctx, args)
	return err
}

// run executes args in the workspace root and returns stdout. A non-zero exit
// is only logged: the detector's output is still worth parsing.
func (a *ProcessAnalyzer) run(ctx context.Context, args []string) ([]byte, error) {
	commandLine := strings.Join(args, " ")

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = a.Root()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := a.logger.WithField("command", commandLine)
	logger.Debug("Running analyzer")

	err := cmd.Run()
	a.logStderr(logger, stderr.Bytes())

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.WithField("exit_code", exitErr.ExitCode()).Warn("Analyzer exited abnormally")
			return stdout.Bytes(), nil
		}
		return nil, &InvocationError{Command: commandLine, Err: err}
	}

	return stdout.Bytes(), nil
}

func (a *ProcessAnalyzer) logStderr(logger logrus.FieldLogger, stderr []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(stderr))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.Info(line)
		}
	}
}

// SplitCommand splits a shell-style command line and substitutes the
// workspace root placeholder in every argument
func SplitCommand(command, root string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to split command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty analyzer command")
	}

	for i, arg := range args {
		args[i] = strings.ReplaceAll(arg, RootPlaceholder, root)
	}
	return args, nil
}
