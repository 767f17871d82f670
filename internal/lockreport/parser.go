package lockreport

import (
	"regexp"
	"strings"

	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
)

// State is the position of the parser inside a double-lock report block
type State int

const (
	StateStart State = iota
	StateGotFirstType
	StateGotFirstPos
	StateGotSecondType
	StateGotSecondPos
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateGotFirstType:
		return "got-first-type"
	case StateGotFirstPos:
		return "got-first-pos"
	case StateGotSecondType:
		return "got-second-type"
	case StateGotSecondPos:
		return "got-second-pos"
	default:
		return "unknown"
	}
}

var (
	firstLockPattern  = regexp.MustCompile(`FirstLock: \((\w+), "(.+)"\)`)
	secondLockPattern = regexp.MustCompile(`SecondLock: \((\w+), "(.+)"\)`)
	sitePattern       = regexp.MustCompile(`([^\t].*?):(\d+:\d+: \d+:\d+)`)
	callChainPattern  = regexp.MustCompile(`Callchains: \{(.+)\}`)
)

// rule matches one line in a given state. apply returns false when the line
// should be treated as unmatched after all.
type rule struct {
	pattern *regexp.Regexp
	prefix  string
	apply   func(p *Parser, match []string) bool
	next    State
}

var rules = map[State]rule{
	StateStart: {
		pattern: firstLockPattern,
		prefix:  "{",
		apply: func(p *Parser, match []string) bool {
			p.current.FirstLock = LockSite{LockType: match[1], TypeArgument: match[2]}
			return true
		},
		next: StateGotFirstType,
	},
	StateGotFirstType: {
		pattern: sitePattern,
		apply: func(p *Parser, match []string) bool {
			return setSite(&p.current.FirstLock, match, FirstLockMessage)
		},
		next: StateGotFirstPos,
	},
	StateGotFirstPos: {
		pattern: secondLockPattern,
		apply: func(p *Parser, match []string) bool {
			p.current.SecondLock = LockSite{LockType: match[1], TypeArgument: match[2]}
			return true
		},
		next: StateGotSecondType,
	},
	StateGotSecondType: {
		pattern: sitePattern,
		apply: func(p *Parser, match []string) bool {
			return setSite(&p.current.SecondLock, match, SecondLockMessage)
		},
		next: StateGotSecondPos,
	},
	StateGotSecondPos: {
		pattern: callChainPattern,
		apply: func(p *Parser, match []string) bool {
			p.current.CallChain = match[1]
			p.current.FirstLock.Message += CallChainPrefix + match[1]
			p.findings = append(p.findings, p.current)
			p.current = DoubleLockFinding{}
			return true
		},
		next: StateStart,
	},
}

func setSite(site *LockSite, match []string, message string) bool {
	r, err := position.DecodeRange(match[2])
	if err != nil {
		return false
	}
	site.File = match[1]
	site.Range = r
	site.Message = message
	return true
}

// Parser scans detector output line by line. Lines that don't fit the
// current state are skipped, so unrelated tool output can be interleaved.
type Parser struct {
	state    State
	current  DoubleLockFinding
	findings []DoubleLockFinding
}

// NewParser creates a parser in the start state
func NewParser() *Parser {
	return &Parser{state: StateStart}
}

// Feed processes a single line and reports whether it advanced the state
func (p *Parser) Feed(line string) bool {
	r := rules[p.state]
	if r.prefix != "" && !strings.HasPrefix(line, r.prefix) {
		return false
	}

	match := r.pattern.FindStringSubmatch(line)
	if match == nil {
		return false
	}
	if !r.apply(p, match) {
		return false
	}

	p.state = r.next
	return true
}

// State returns the current state
func (p *Parser) State() State {
	return p.state
}

// Pending reports whether a report block was started but never completed
func (p *Parser) Pending() bool {
	return p.state != StateStart
}

// Findings returns all completed findings in the order they appeared
func (p *Parser) Findings() []DoubleLockFinding {
	return p.findings
}

// Parse runs a fresh parser over the full detector output
func Parse(output string) []DoubleLockFinding {
	p := NewParser()
	for _, line := range strings.Split(output, "\n") {
		p.Feed(strings.TrimSuffix(line, "\r"))
	}
	return p.Findings()
}
