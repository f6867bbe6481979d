package rules

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nathoo/chronicle/engine/state"
	"github.com/nathoo/chronicle/types"
)

// Lookup resolves a state path to a leaf value. A store's Get method is a Lookup.
type Lookup func(path string) (any, error)

// ParseError reports an expression that matches no known form.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("conditional expression %q: %s", e.Expr, e.Reason)
}

// Known operators.
var (
	unaryOps  = map[string]bool{"!": true}
	binaryOps = map[string]bool{"=": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true}
	funcs     = map[string]bool{"largest": true, "secondLargest": true, "smallest": true, "secondSmallest": true}
)

// ParseExpr parses a single whitespace-tokenized expression.
func ParseExpr(expr string) (types.Condition, error) {
	tokens := strings.Fields(expr)
	c := types.Condition{Kind: "expr", Source: expr}

	switch {
	case len(tokens) == 0:
		return c, &ParseError{Expr: expr, Reason: "empty expression"}

	case len(tokens) == 1:
		c.Args = tokens

	case len(tokens) == 2 && unaryOps[tokens[0]]:
		c.Op = tokens[0]
		c.Args = tokens[1:]

	case len(tokens) == 3 && binaryOps[tokens[1]]:
		c.Op = tokens[1]
		c.Args = []string{tokens[0], tokens[2]}

	case funcs[tokens[0]]:
		c.Op = tokens[0]
		c.Args = tokens[1:]
		if strings.HasPrefix(c.Op, "second") && len(c.Args) < 2 {
			return c, &ParseError{Expr: expr, Reason: c.Op + " needs at least two operands"}
		}

	default:
		return c, &ParseError{Expr: expr, Reason: "no recognized operator or function"}
	}
	return c, nil
}

// evalExpr resolves the operands of an expr condition and applies its operator.
func evalExpr(c types.Condition, lookup Lookup) (bool, error) {
	args := make([]any, 0, len(c.Args))
	for _, tok := range c.Args {
		v, err := resolveOperand(tok, lookup)
		if err != nil {
			return false, fmt.Errorf("evaluating %q: %w", c.Source, err)
		}
		args = append(args, v)
	}

	switch {
	case c.Op == "":
		return truthy(args[0]), nil
	case unaryOps[c.Op]:
		return !truthy(args[0]), nil
	case binaryOps[c.Op]:
		return compareOp(c.Op, args[0], args[1]), nil
	case funcs[c.Op]:
		return truthy(applyFunc(c.Op, args)), nil
	}
	return false, &ParseError{Expr: c.Source, Reason: fmt.Sprintf("unknown operator %q", c.Op)}
}

// resolveOperand looks tok up in state. A token that is not a state path
// stands for itself as a literal.
func resolveOperand(tok string, lookup Lookup) (any, error) {
	if lookup != nil {
		v, err := lookup(tok)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			return nil, err
		}
	}
	return literal(tok), nil
}

func literal(tok string) any {
	if n, err := strconv.Atoi(tok); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	switch tok {
	case "true":
		return true
	case "false":
		return false
	}
	return tok
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val != ""
	case []string:
		return len(val) > 0
	default:
		return true
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compare orders a and b: numbers numerically, bools false before true,
// anything else by string form.
func compare(a, b any) int {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareOp(op string, a, b any) bool {
	c := compare(a, b)
	switch op {
	case "=":
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	}
	return false
}

func applyFunc(name string, args []any) any {
	sorted := append([]any{}, args...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compare(sorted[i], sorted[j]) < 0
	})
	n := len(sorted)
	switch name {
	case "largest":
		return sorted[n-1]
	case "secondLargest":
		return sorted[n-2]
	case "smallest":
		return sorted[0]
	case "secondSmallest":
		return sorted[1]
	}
	return nil
}
