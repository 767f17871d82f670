package lockreport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
)

func site(file string, line int, message string) LockSite {
	return LockSite{
		LockType:     "Mutex",
		TypeArgument: "m",
		File:         file,
		Range: position.Range{
			Start: position.Position{Line: line, Column: 4},
			End:   position.Position{Line: line, Column: 12},
		},
		Message: message,
	}
}

func finding(first, second LockSite, chain string) DoubleLockFinding {
	first.Message = FirstLockMessage + CallChainPrefix + chain
	return DoubleLockFinding{FirstLock: first, SecondLock: second, CallChain: chain}
}

func TestAggregateSharedKey(t *testing.T) {
	offending := site("src/b.rs", 4, SecondLockMessage)
	findings := []DoubleLockFinding{
		finding(site("src/a.rs", 1, ""), offending, "f -> g"),
		finding(site("src/c.rs", 7, ""), offending, "h -> g"),
	}

	idx := Aggregate(findings)

	assert.Equal(t, []string{"src/b.rs"}, idx.Files())
	require.Equal(t, []string{"5:5: 5:13"}, idx.Ranges("src/b.rs"))

	entries := idx.Entries("src/b.rs", "5:5: 5:13")
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, SecondLockMessage, entry.Message)
		assert.Len(t, entry.RelatedSites, 1)
	}
	assert.Equal(t, "src/a.rs", entries[0].RelatedSites[0].File)
	assert.Equal(t, "src/c.rs", entries[1].RelatedSites[0].File)
	assert.Equal(t, 2, idx.Len())
}

func TestAggregateSeparatesFilesAndRanges(t *testing.T) {
	findings := []DoubleLockFinding{
		finding(site("src/a.rs", 1, ""), site("src/b.rs", 4, SecondLockMessage), "x"),
		finding(site("src/a.rs", 1, ""), site("src/b.rs", 9, SecondLockMessage), "y"),
		finding(site("src/b.rs", 2, ""), site("src/a.rs", 3, SecondLockMessage), "z"),
	}

	idx := Aggregate(findings)

	assert.Equal(t, []string{"src/b.rs", "src/a.rs"}, idx.Files())
	assert.Equal(t, []string{"5:5: 5:13", "10:5: 10:13"}, idx.Ranges("src/b.rs"))
	assert.Equal(t, []string{"4:5: 4:13"}, idx.Ranges("src/a.rs"))
	assert.Nil(t, idx.Ranges("src/missing.rs"))
	assert.Nil(t, idx.Entries("src/missing.rs", "1:1: 1:1"))
	assert.Nil(t, idx.Entries("src/a.rs", "1:1: 1:1"))

	var chains []string
	idx.Each(func(d Diagnostic) {
		chains = append(chains, d.RelatedSites[0].Message)
	})
	assert.Equal(t, []string{
		FirstLockMessage + " Call chain: x",
		FirstLockMessage + " Call chain: y",
		FirstLockMessage + " Call chain: z",
	}, chains)

	fileDiags := idx.FileDiagnostics("src/b.rs")
	require.Len(t, fileDiags, 2)
	assert.Equal(t, 9, fileDiags[1].Range.Start.Line)
	assert.Empty(t, idx.FileDiagnostics("src/missing.rs"))
}

func TestAggregateEmpty(t *testing.T) {
	idx := Aggregate(nil)

	assert.Empty(t, idx.Files())
	assert.Equal(t, 0, idx.Len())

	called := false
	idx.Each(func(Diagnostic) { called = true })
	assert.False(t, called)
}

func TestAggregateFromParsedReport(t *testing.T) {
	idx := Aggregate(Parse(singleReport + singleReport))

	entries := idx.Entries("src/b.rs", "5:2: 5:12")
	require.Len(t, entries, 2)
	assert.Equal(t, "src/a.rs", entries[0].RelatedSites[0].File)
	assert.Equal(t, []string{"src/b.rs"}, idx.Files())
	assert.Equal(t, []string{"5:2: 5:12"}, idx.Ranges("src/b.rs"))
}
