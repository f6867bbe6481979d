package save

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// IndexFile is the name of the save index inside a save directory.
const IndexFile = "saves.yaml"

// Errors returned by Index.Add.
var (
	ErrEmptyName     = errors.New("empty names are not allowed")
	ErrDuplicateName = errors.New("a game with that name already exists")
	ErrInvalidName   = errors.New("names may not contain path separators")
)

// IndexError reports a save index that exists but cannot be read.
type IndexError struct {
	Path string
	Err  error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("unable to load your saves: %s is corrupted: %v", e.Path, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Index maps player names to save files within one directory.
type Index struct {
	dir     string
	entries map[string]string // name -> file, relative to dir unless absolute
}

// OpenIndex reads the index in dir, creating the directory and an empty
// index when absent.
func OpenIndex(dir string) (*Index, error) {
	ix := &Index{dir: dir, entries: map[string]string{}}
	path := filepath.Join(dir, IndexFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("save: create save directory %q: %w", dir, err)
		}
		return ix, ix.write()
	}
	if err != nil {
		return nil, fmt.Errorf("save: open %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &ix.entries); err != nil {
		return nil, &IndexError{Path: path, Err: err}
	}
	if ix.entries == nil {
		ix.entries = map[string]string{}
	}
	return ix, nil
}

// Dir is the directory the index lives in.
func (ix *Index) Dir() string { return ix.dir }

// Names returns every indexed player name, sorted.
func (ix *Index) Names() []string {
	names := make([]string, 0, len(ix.entries))
	for n := range ix.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the save file path of name.
func (ix *Index) Lookup(name string) (string, bool) {
	file, ok := ix.entries[name]
	if !ok {
		return "", false
	}
	if filepath.IsAbs(file) {
		return file, true
	}
	return filepath.Join(ix.dir, file), true
}

// Check reports whether name may be used for a new game.
func (ix *Index) Check(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return ErrEmptyName
	case strings.ContainsAny(name, `/\`):
		return ErrInvalidName
	}
	if _, ok := ix.entries[name]; ok {
		return ErrDuplicateName
	}
	return nil
}

// Path returns the file a new game called name is saved to. It does not
// register the name.
func (ix *Index) Path(name string) string {
	return filepath.Join(ix.dir, name+Ext)
}

// Add registers a new game and persists the index. It returns the path the
// game will be saved to.
func (ix *Index) Add(name string) (string, error) {
	if err := ix.Check(name); err != nil {
		return "", err
	}
	ix.entries[name] = name + Ext
	if err := ix.write(); err != nil {
		delete(ix.entries, name)
		return "", err
	}
	return ix.Path(name), nil
}

func (ix *Index) write() error {
	data, err := yaml.Marshal(ix.entries)
	if err != nil {
		return fmt.Errorf("save: encoding index: %w", err)
	}
	path := filepath.Join(ix.dir, IndexFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save: write %q: %w", path, err)
	}
	return nil
}
