// Package sqlguard enforces that SQL sent to the table engine is always a
// single statement built from string literals the core composed itself.
// Every statement the command executor builds is parsed here before it
// reaches the embedded engine, rejecting anything that isn't exactly one
// statement — in particular, stray semicolons that would let a second
// statement ride along with a composed literal.
package sqlguard

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
)

// Guard wraps a tidb SQL parser. A Guard is not safe for concurrent use
// (the underlying parser is not either); callers hold it behind the same
// engine mutex that serializes mutating calls.
type Guard struct {
	p *parser.Parser
}

// New creates a Guard.
func New() *Guard {
	return &Guard{p: parser.New()}
}

// Validate parses sql and returns an error unless it is exactly one
// statement. It does not evaluate whether the statement is safe to run
// against a particular table — only that it is the single statement the
// core intended to build.
func (g *Guard) Validate(sql string) error {
	stmts, _, err := g.p.Parse(sql, "", "")
	if err != nil {
		return fmt.Errorf("sqlguard: %q does not parse: %w", sql, err)
	}
	if len(stmts) != 1 {
		return fmt.Errorf("sqlguard: %q contains %d statements, want exactly 1", sql, len(stmts))
	}
	return nil
}
