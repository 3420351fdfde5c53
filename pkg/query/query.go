// Package query filters nodes with user supplied boolean expressions such as
//
//	isFolder == false && name contains "plan" && ageDays < 7
//
// Expressions are compiled once with expr-lang and evaluated per node.
package query

import (
	"fmt"
	"strings"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/aretw0/arbor/pkg/core"
)

// Filter is a compiled expression.
type Filter struct {
	source  string
	program *exprvm.Program
	now     func() time.Time
}

// Compile parses expression. Unknown variables evaluate to nil.
func Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("query: expression must not be empty")
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("query: compile %q: %w", expression, err)
	}
	return &Filter{source: expression, program: program, now: time.Now}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.source }

// Env exposes the fields of n to expressions.
func Env(n core.Node, now time.Time) map[string]any {
	env := map[string]any{
		"id":        n.ID,
		"name":      n.Name,
		"content":   n.Content(),
		"isFolder":  n.IsFolder(),
		"trashed":   n.Trashed(),
		"root":      n.IsRoot(),
		"parentId":  n.Parent(),
		"owner":     n.Owner,
		"tags":      n.Tags,
		"createdAt": n.CreatedAt,
		"updatedAt": n.UpdatedAt,
		"ageDays":   int(now.Sub(n.UpdatedAt).Hours() / 24),
	}
	if n.DeletedAt != nil {
		env["deletedAt"] = *n.DeletedAt
	}
	return env
}

// Match evaluates the filter against n.
func (f *Filter) Match(n core.Node) (bool, error) {
	out, err := exprlang.Run(f.program, Env(n, f.now()))
	if err != nil {
		return false, fmt.Errorf("query: evaluate %q on %s: %w", f.source, n.ID, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply returns the nodes matching the filter, in input order.
func (f *Filter) Apply(nodes []core.Node) ([]core.Node, error) {
	var out []core.Node
	for _, n := range nodes {
		ok, err := f.Match(n)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}
