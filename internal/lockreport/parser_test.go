package lockreport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
)

const singleReport = "{FirstLock: (Mutex, \"m1\")}\n" +
	"\tsrc/a.rs:3:1: 3:10\n" +
	"{SecondLock: (Mutex, \"m2\")}\n" +
	"\tsrc/b.rs:5:2: 5:12\n" +
	"Callchains: {f -> g}\n"

func TestParseSingleReport(t *testing.T) {
	findings := Parse(singleReport)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, "src/a.rs", f.FirstLock.File)
	assert.Equal(t, "src/b.rs", f.SecondLock.File)
	assert.Equal(t, "f -> g", f.CallChain)
	assert.True(t, strings.HasSuffix(f.FirstLock.Message, "Call chain: f -> g"))
	assert.Equal(t, "the other lock causing double-lock. Call chain: f -> g", f.FirstLock.Message)
	assert.Equal(t, SecondLockMessage, f.SecondLock.Message)

	assert.Equal(t, "Mutex<m1>", f.FirstLock.Label())
	assert.Equal(t, "Mutex<m2>", f.SecondLock.Label())

	assert.Equal(t, position.Range{
		Start: position.Position{Line: 2, Column: 0},
		End:   position.Position{Line: 2, Column: 9},
	}, f.FirstLock.Range)
	assert.Equal(t, "5:2: 5:12", f.SecondLock.RangeKey())
}

func TestParseIgnoresInterleavedOutput(t *testing.T) {
	output := strings.Join([]string{
		"   Compiling demo v0.1.0 (/tmp/demo)",
		"warning: unused variable: `x`",
		"{FirstLock: (RwLockRead, \"std::sync::RwLock<i32>\")}",
		"some progress line",
		"\tsrc/lib.rs:10:5: 10:20",
		"note: still running",
		"{SecondLock: (RwLockWrite, \"std::sync::RwLock<i32>\")}",
		"\tsrc/lib.rs:14:9: 14:30",
		"Callchains: {main -> helper}",
		"    Finished dev [unoptimized + debuginfo] target(s)",
	}, "\n")

	findings := Parse(output)
	require.Len(t, findings, 1)
	assert.Equal(t, "RwLockRead", findings[0].FirstLock.LockType)
	assert.Equal(t, "std::sync::RwLock<i32>", findings[0].FirstLock.TypeArgument)
	assert.Equal(t, "RwLockWrite", findings[0].SecondLock.LockType)
	assert.Equal(t, "main -> helper", findings[0].CallChain)
}

func TestParseMultipleReportsInOrder(t *testing.T) {
	second := strings.ReplaceAll(singleReport, "f -> g", "h -> i")
	findings := Parse(singleReport + second)

	require.Len(t, findings, 2)
	assert.Equal(t, "f -> g", findings[0].CallChain)
	assert.Equal(t, "h -> i", findings[1].CallChain)
	assert.Equal(t, "the other lock causing double-lock. Call chain: h -> i", findings[1].FirstLock.Message)
}

func TestParseTruncatedReport(t *testing.T) {
	truncated := "{FirstLock: (Mutex, \"m1\")}\n\tsrc/a.rs:3:1: 3:10\n{SecondLock: (Mutex, \"m2\")}\n"

	assert.Empty(t, Parse(truncated))
	assert.Len(t, Parse(singleReport+truncated), 1)

	p := NewParser()
	for _, line := range strings.Split(truncated, "\n") {
		p.Feed(line)
	}
	assert.True(t, p.Pending())
	assert.Equal(t, StateGotSecondType, p.State())
}

func TestParseGarbage(t *testing.T) {
	tests := []string{
		"",
		"error: could not compile `demo`",
		"FirstLock: (Mutex, \"m1\")",
		"Callchains: {a -> b}\n\tsrc/a.rs:1:1: 1:2",
		"\x00\x01binary\xff",
	}

	for _, input := range tests {
		assert.NotPanics(t, func() {
			assert.Empty(t, Parse(input))
		})
	}
}

func TestParserStateTransitions(t *testing.T) {
	p := NewParser()
	assert.Equal(t, StateStart, p.State())

	assert.False(t, p.Feed("\tsrc/a.rs:3:1: 3:10"))
	assert.True(t, p.Feed("{FirstLock: (Mutex, \"m1\")}"))
	assert.Equal(t, StateGotFirstType, p.State())

	assert.False(t, p.Feed("{SecondLock: (Mutex, \"m2\")}"))
	assert.True(t, p.Feed("\tsrc/a.rs:3:1: 3:10"))
	assert.Equal(t, StateGotFirstPos, p.State())

	assert.True(t, p.Feed("{SecondLock: (Mutex, \"m2\")}"))
	assert.Equal(t, StateGotSecondType, p.State())

	assert.False(t, p.Feed("\tsrc/b.rs:0:2: 5:12"), "zero coordinates are not a valid site")
	assert.True(t, p.Feed("\tsrc/b.rs:5:2: 5:12"))
	assert.Equal(t, StateGotSecondPos, p.State())

	assert.True(t, p.Feed("Callchains: {f -> g}"))
	assert.Equal(t, StateStart, p.State())
	assert.False(t, p.Pending())
	assert.Len(t, p.Findings(), 1)
}

func TestParseCRLF(t *testing.T) {
	findings := Parse(strings.ReplaceAll(singleReport, "\n", "\r\n"))
	require.Len(t, findings, 1)
	assert.Equal(t, "f -> g", findings[0].CallChain)
}
