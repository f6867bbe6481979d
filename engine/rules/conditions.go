// Package rules parses and evaluates the conditional expressions that gate
// event stream items on player and world state.
package rules

import (
	"fmt"

	"github.com/nathoo/chronicle/types"
)

// StructureError reports a condition schema of an unrecognized shape.
type StructureError struct {
	Schema any
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("conditional schema tree is of an unrecognized type %T", e.Schema)
}

// Parse builds a condition tree from a decoded schema: a string is a single
// expression, a list is an implicit All, and a mapping with an "any" or
// "all" key is an explicit Any or All.
func Parse(schema any) (*types.Condition, error) {
	switch s := schema.(type) {
	case string:
		c, err := ParseExpr(s)
		if err != nil {
			return nil, err
		}
		return &c, nil

	case []any:
		return parseGroup("all", s)

	case []string:
		items := make([]any, len(s))
		for i, v := range s {
			items[i] = v
		}
		return parseGroup("all", items)

	case map[string]any:
		if len(s) != 1 {
			return nil, &StructureError{Schema: schema}
		}
		for key, v := range s {
			if key != "any" && key != "all" {
				return nil, &StructureError{Schema: schema}
			}
			items, ok := v.([]any)
			if !ok {
				if v != nil {
					return nil, &StructureError{Schema: schema}
				}
				items = nil
			}
			return parseGroup(key, items)
		}
	}
	return nil, &StructureError{Schema: schema}
}

func parseGroup(kind string, items []any) (*types.Condition, error) {
	c := &types.Condition{Kind: kind, Elements: make([]types.Condition, 0, len(items))}
	for _, item := range items {
		sub, err := Parse(item)
		if err != nil {
			return nil, err
		}
		c.Elements = append(c.Elements, *sub)
	}
	return c, nil
}

// Eval evaluates c against state resolved through lookup. A nil condition
// always holds. An empty All holds; an empty Any does not.
func Eval(c *types.Condition, lookup Lookup) (bool, error) {
	if c == nil {
		return true, nil
	}
	switch c.Kind {
	case "expr":
		return evalExpr(*c, lookup)

	case "all":
		for i := range c.Elements {
			ok, err := Eval(&c.Elements[i], lookup)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case "any":
		for i := range c.Elements {
			ok, err := Eval(&c.Elements[i], lookup)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown condition kind %q", c.Kind)
}

// Paths returns every operand token of c, in order. The loader uses it to
// warn about operands that are neither state paths nor obvious literals.
func Paths(c *types.Condition) []string {
	if c == nil {
		return nil
	}
	if c.Kind == "expr" {
		return append([]string{}, c.Args...)
	}
	var out []string
	for i := range c.Elements {
		out = append(out, Paths(&c.Elements[i])...)
	}
	return out
}
