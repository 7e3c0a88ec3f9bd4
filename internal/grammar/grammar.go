// Package grammar classifies one line of chat text into a keyword command.
//
// Four matchers overlap syntactically, so they are tried in a fixed order
// and the first full-line match wins:
//
//	??[!]subject: value        Learn
//	??[!]subject[idx]->target  Swap (target >= 0) or Delete (target < 0)
//	??[!]subject++ / --        Increment
//	??subject[idx|*|all]       Query
//
// "??x[1]->2" is also a well-formed query for "x", which is why Move is
// tried before Query.
package grammar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNoMatch is returned for lines that are not keyword commands.
	ErrNoMatch = errors.New("not a command")
	// ErrInvalidIndex is returned for malformed or negative positions.
	ErrInvalidIndex = errors.New("invalid index")
)

// Command is one of Learn, Swap, Delete, Increment or Query.
type Command interface {
	// Keyword returns the subject the command targets.
	Keyword() string
	// Mutates reports whether the command writes to the store.
	Mutates() bool
}

// Learn appends Value to Subject. General targets the cross-channel scope.
type Learn struct {
	Subject string
	Value   string
	General bool
}

// Swap exchanges the entries at From and To.
type Swap struct {
	Subject  string
	General  bool
	From, To int
}

// Delete removes the entry at Position.
type Delete struct {
	Subject  string
	General  bool
	Position int
}

// Increment adds Delta (+1 or -1) to today's counter entry.
type Increment struct {
	Subject string
	General bool
	Delta   int64
}

// Query asks for one entry, or for every entry when All is set. General
// skips the channel scope and reads the cross-channel keyword.
type Query struct {
	Subject  string
	General  bool
	Position int
	All      bool
}

func (c Learn) Keyword() string     { return c.Subject }
func (c Swap) Keyword() string      { return c.Subject }
func (c Delete) Keyword() string    { return c.Subject }
func (c Increment) Keyword() string { return c.Subject }
func (c Query) Keyword() string     { return c.Subject }

func (Learn) Mutates() bool     { return true }
func (Swap) Mutates() bool      { return true }
func (Delete) Mutates() bool    { return true }
func (Increment) Mutates() bool { return true }
func (Query) Mutates() bool     { return false }

// Name returns a short, stable label for a command, used in logs and metrics.
func Name(c Command) string {
	switch c.(type) {
	case Learn:
		return "learn"
	case Swap:
		return "swap"
	case Delete:
		return "delete"
	case Increment:
		return "increment"
	case Query:
		return "query"
	default:
		return "unknown"
	}
}

type matcher struct {
	name  string
	re    *regexp.Regexp
	build func(m []string) (Command, error)
}

// Grammar is an ordered, immutable set of precompiled matchers. It is safe
// for concurrent use.
type Grammar struct {
	matchers []matcher
}

// New compiles the matchers. Call it once at startup and share the result.
func New() *Grammar {
	return &Grammar{matchers: []matcher{
		{
			name:  "learn",
			re:    regexp.MustCompile(`^\?\?(!)?\s*([^\s\[:][^\[:]*?)\s*:\s*(.+)$`),
			build: buildLearn,
		},
		{
			name:  "move",
			re:    regexp.MustCompile(`^\?\?(!)?\s*([^\s\[:][^\[:]*?)\s*\[([^\]]*)\]\s*->\s*(.*?)\s*$`),
			build: buildMove,
		},
		{
			name:  "increment",
			re:    regexp.MustCompile(`^\?\?(!)?\s*([^\s\[:][^\[:]*?)\s*(\+\+|--)\s*$`),
			build: buildIncrement,
		},
		{
			name:  "query",
			re:    regexp.MustCompile(`^\?\?(!)?\s*([^\s\[:][^\[:]*?)\s*(?:\[([^\]]*)\])?\s*$`),
			build: buildQuery,
		},
	}}
}

// Parse classifies line. Lines that are not commands return ErrNoMatch; a
// recognized command with a bad position returns an error wrapping
// ErrInvalidIndex.
func (g *Grammar) Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	for _, m := range g.matchers {
		sub := m.re.FindStringSubmatch(line)
		if sub == nil {
			continue
		}
		return m.build(sub)
	}
	return nil, ErrNoMatch
}

func buildLearn(m []string) (Command, error) {
	value := strings.TrimSpace(m[3])
	if value == "" {
		return nil, ErrNoMatch
	}
	return Learn{General: m[1] != "", Subject: m[2], Value: value}, nil
}

func buildMove(m []string) (Command, error) {
	subject := m[2]
	from, err := parsePosition(m[3])
	if err != nil {
		return nil, err
	}
	to, err := strconv.Atoi(strings.TrimSpace(m[4]))
	if err != nil {
		return nil, fmt.Errorf("%w: target %q is not a number", ErrInvalidIndex, m[4])
	}
	if to < 0 {
		return Delete{Subject: subject, General: m[1] != "", Position: from}, nil
	}
	return Swap{Subject: subject, General: m[1] != "", From: from, To: to}, nil
}

func buildIncrement(m []string) (Command, error) {
	delta := int64(1)
	if m[3] == "--" {
		delta = -1
	}
	return Increment{Subject: m[2], General: m[1] != "", Delta: delta}, nil
}

func buildQuery(m []string) (Command, error) {
	q := Query{Subject: m[2], General: m[1] != "", Position: 1}
	idx := strings.TrimSpace(m[3])
	switch idx {
	case "":
		return q, nil
	case "*", "all":
		q.All = true
		return q, nil
	}
	pos, err := parsePosition(idx)
	if err != nil {
		return nil, err
	}
	if pos == 0 {
		pos = 1
	}
	q.Position = pos
	return q, nil
}

func parsePosition(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidIndex, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrInvalidIndex, n)
	}
	return n, nil
}
