// Package save implements YAML persistence of players and the save index.
package save

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nathoo/chronicle/engine/player"
)

// Ext is the save file extension.
const Ext = ".csf"

// document is the on-disk shape of a save file.
type document struct {
	Name    string         `yaml:"name"`
	WorldID string         `yaml:"world_id"`
	State   yaml.Node      `yaml:"state"`
	Meta    map[string]any `yaml:"meta"`
}

// Encode serializes a player to YAML.
func Encode(p *player.Player) ([]byte, error) {
	doc := document{
		Name:    p.Name(),
		WorldID: p.WorldID(),
		Meta:    p.Meta(),
	}
	state, err := valueNode(p.State().Tree())
	if err != nil {
		return nil, fmt.Errorf("save: encoding state of %q: %w", p.Name(), err)
	}
	doc.State = *state
	return yaml.Marshal(&doc)
}

// Decode deserializes a player from YAML.
func Decode(data []byte) (*player.Player, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("save: decoding: %w", err)
	}
	if doc.State.Kind == 0 {
		return nil, fmt.Errorf("save: decoding %q: missing state", doc.Name)
	}
	var tree map[string]any
	if err := doc.State.Decode(&tree); err != nil {
		return nil, fmt.Errorf("save: decoding state of %q: %w", doc.Name, err)
	}
	return player.Restore(doc.Name, doc.WorldID, tree, doc.Meta)
}

// WithExt returns path with the save extension appended when it is missing.
func WithExt(path string) string {
	if filepath.Ext(path) == Ext {
		return path
	}
	return path + Ext
}

// Save writes p to path, appending the save extension when missing, and
// returns the path written.
func Save(path string, p *player.Player) (string, error) {
	path = WithExt(path)
	data, err := Encode(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("save: create directory for %q: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save: write %q: %w", path, err)
	}
	return path, nil
}

// Load reads a player from path. A missing file yields an error matching
// fs.ErrNotExist.
func Load(path string) (*player.Player, error) {
	data, err := os.ReadFile(WithExt(path))
	if err != nil {
		return nil, fmt.Errorf("save: open %q: %w", path, err)
	}
	return Decode(data)
}

// valueNode builds the YAML node for a state value. Mapping keys are sorted
// and floats always carry a decimal point, so a number leaf never decodes
// back as a counter.
func valueNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case map[string]any:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child, err := valueNode(x[k])
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, child)
		}
		return n, nil
	case []string:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, s := range x {
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s})
		}
		return n, nil
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(x)}, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(x); err != nil {
			return nil, err
		}
		return n, nil
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".e") {
		return s
	}
	return s + ".0"
}
