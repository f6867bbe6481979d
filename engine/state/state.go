// Package state implements the path-addressed store holding a player's
// mutable game state. The tree has three scopes (pc, world, game) and every
// lookup must land on a leaf: a bool, int, float64, string or []string.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Scopes are the required top-level keys of every state tree.
var Scopes = []string{"pc", "world", "game"}

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("state not found")

// NotFoundError reports a path that does not resolve to a leaf.
type NotFoundError struct {
	Path       string
	Resolved   string // longest ancestor of Path that exists ("" for none)
	Token      string // first token that failed to resolve
	Incomplete bool   // the full path resolved, but to a mapping
}

func (e *NotFoundError) Error() string {
	if e.Incomplete {
		return fmt.Sprintf("state path %q is incomplete: it resolves to a mapping, not a value", e.Path)
	}
	if e.Resolved == "" {
		return fmt.Sprintf("state path %q not found: no scope %q", e.Path, e.Token)
	}
	return fmt.Sprintf("state path %q not found: %q has no key %q", e.Path, e.Resolved, e.Token)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TypeError reports a Set whose value does not fit the existing leaf.
type TypeError struct {
	Path string
	Want string
	Got  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("state path %q holds a %s, cannot store %T", e.Path, e.Want, e.Got)
}

// Store is a player's state tree. It is not safe for concurrent use.
type Store struct {
	root map[string]any
}

// New builds a Store from a decoded tree, which is deep-copied and
// normalized. The tree must contain the pc, world and game scopes.
func New(tree map[string]any) (*Store, error) {
	root, err := normalizeMap(tree, "")
	if err != nil {
		return nil, err
	}
	for _, scope := range Scopes {
		v, ok := root[scope]
		if !ok {
			return nil, fmt.Errorf("state: missing scope %q", scope)
		}
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("state: scope %q must be a mapping, got %T", scope, v)
		}
	}
	for key := range root {
		if !isScope(key) {
			return nil, fmt.Errorf("state: unknown scope %q", key)
		}
	}
	return &Store{root: root}, nil
}

// Join builds a path from tokens.
func Join(tokens ...string) string {
	return strings.Join(tokens, ".")
}

// Get returns the leaf at path. List leaves are returned as copies.
func (s *Store) Get(path string) (any, error) {
	v, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if list, ok := v.([]string); ok {
		return append([]string{}, list...), nil
	}
	return v, nil
}

// Set replaces the leaf at path. The path must already exist and the value
// must match the leaf's type; an int is accepted for a float leaf.
func (s *Store) Set(path string, value any) error {
	old, err := s.resolve(path)
	if err != nil {
		return err
	}
	v, err := coerceLike(path, old, value)
	if err != nil {
		return err
	}
	tokens := strings.Split(path, ".")
	parent := s.root
	for _, tok := range tokens[:len(tokens)-1] {
		parent = parent[tok].(map[string]any)
	}
	parent[tokens[len(tokens)-1]] = v
	return nil
}

// Tree returns a deep copy of the whole state tree.
func (s *Store) Tree() map[string]any {
	return copyMap(s.root)
}

// Paths returns every leaf path in the store, sorted.
func (s *Store) Paths() []string {
	var out []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(p, child)
				continue
			}
			out = append(out, p)
		}
	}
	walk("", s.root)
	sort.Strings(out)
	return out
}

func (s *Store) resolve(path string) (any, error) {
	tokens := strings.Split(path, ".")
	var cur any = s.root
	resolved := ""
	for _, tok := range tokens {
		m, ok := cur.(map[string]any)
		if !ok {
			// An earlier token already landed on a leaf.
			return nil, &NotFoundError{Path: path, Resolved: resolved, Token: tok}
		}
		next, ok := m[tok]
		if !ok || tok == "" {
			return nil, &NotFoundError{Path: path, Resolved: resolved, Token: tok}
		}
		if resolved == "" {
			resolved = tok
		} else {
			resolved += "." + tok
		}
		cur = next
	}
	if _, ok := cur.(map[string]any); ok {
		return nil, &NotFoundError{Path: path, Resolved: resolved, Incomplete: true}
	}
	return cur, nil
}

func coerceLike(path string, old, value any) (any, error) {
	switch old.(type) {
	case bool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, &TypeError{Path: path, Want: "flag", Got: value}
	case int:
		if n, ok := value.(int); ok {
			return n, nil
		}
		return nil, &TypeError{Path: path, Want: "counter", Got: value}
	case float64:
		switch n := value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		}
		return nil, &TypeError{Path: path, Want: "number", Got: value}
	case string:
		if str, ok := value.(string); ok {
			return str, nil
		}
		return nil, &TypeError{Path: path, Want: "string", Got: value}
	case []string:
		if list, ok := value.([]string); ok {
			return append([]string{}, list...), nil
		}
		return nil, &TypeError{Path: path, Want: "list", Got: value}
	}
	return nil, &TypeError{Path: path, Want: fmt.Sprintf("%T", old), Got: value}
}

func isScope(key string) bool {
	for _, s := range Scopes {
		if s == key {
			return true
		}
	}
	return false
}

// normalizeMap converts decoded YAML/Lua values into the store's leaf types.
func normalizeMap(m map[string]any, prefix string) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.Contains(k, ".") {
			return nil, fmt.Errorf("state: key %q under %q contains a path separator", k, prefix)
		}
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		nv, err := normalizeValue(v, p)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v any, path string) (any, error) {
	switch val := v.(type) {
	case bool, string:
		return val, nil
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case uint64:
		return int(val), nil
	case float64:
		return val, nil
	case []string:
		return append([]string{}, val...), nil
	case []any:
		list := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("state: %s[%d] must be a string, got %T", path, i, item)
			}
			list = append(list, s)
		}
		return list, nil
	case nil:
		// An empty YAML mapping decodes to nil inside a parent mapping.
		return map[string]any{}, nil
	case map[string]any:
		return normalizeMap(val, path)
	default:
		return nil, fmt.Errorf("state: unsupported value %T at %s", v, path)
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = copyMap(val)
		case []string:
			out[k] = append([]string{}, val...)
		default:
			out[k] = val
		}
	}
	return out
}
