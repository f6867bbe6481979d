// Package loader reads world content from YAML and Lua files and compiles it
// into an immutable world.World. Lua runs only while loading; the VM is
// discarded before Load returns.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"

	"github.com/nathoo/chronicle/engine/world"
)

// document is one content object before compilation: the decoded fields of
// a YAML document or a Lua constructor call, and the file it came from.
// err is set when the body could not be converted.
type document struct {
	path   string
	fields map[string]any
	err    error
}

func (d document) kind() string {
	s, _ := d.fields["type"].(string)
	return s
}

func (d document) id() string {
	s, _ := d.fields["id"].(string)
	return s
}

// collector accumulates documents while content files are read.
type collector struct {
	file   string // file currently being executed
	docs   []document
	loaded map[string]bool
}

func (c *collector) emit(fields map[string]any, err error) {
	c.docs = append(c.docs, document{path: c.file, fields: fields, err: err})
}

// Option configures Load.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger load warnings are written to. The default
// discards them.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Load reads every .yaml, .yml and .lua file below dir, follows the world
// document's load_paths, compiles the documents and validates every cross
// reference. On failure no world is returned; the error is a
// *ValidationError listing every problem found, or the first I/O or Lua
// error encountered.
func Load(dir string, opts ...Option) (*world.World, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	files, err := discover(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("loader: no content files found in %s", dir)
	}

	// Create sandboxed VM.
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)
	sandbox(L)

	coll := &collector{loaded: map[string]bool{}}
	registerAPI(L, coll)

	for _, f := range files {
		if err := coll.load(L, f); err != nil {
			return nil, err
		}
	}

	// load_paths may name further files, which may declare further worlds;
	// walking the growing slice picks those up too.
	for i := 0; i < len(coll.docs); i++ {
		d := coll.docs[i]
		if d.kind() != "world" {
			continue
		}
		paths, err := stringList(d.fields, "load_paths")
		if err != nil {
			continue // reported by compile
		}
		for _, p := range paths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(filepath.Dir(d.path), p)
			}
			more, err := discover(p)
			if err != nil {
				return nil, err
			}
			for _, f := range more {
				if err := coll.load(L, f); err != nil {
					return nil, err
				}
			}
		}
	}

	contents, errs := compile(coll.docs)
	if len(errs) == 0 {
		var warnings []string
		errs, warnings = validate(contents)
		for _, w := range warnings {
			o.logger.Warn("content warning", "dir", dir, "warning", w)
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	w, err := world.New(contents)
	if err != nil {
		return nil, fmt.Errorf("loader: building world from %s: %w", dir, err)
	}
	for _, warning := range checkOperands(w) {
		o.logger.Warn("content warning", "dir", dir, "warning", warning)
	}
	return w, nil
}

// discover returns the content files at path: the path itself when it is a
// file, otherwise every content file below it in lexical order.
func discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loader: reading %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isContent(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walking %s: %w", path, err)
	}
	return files, nil
}

func isContent(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".lua":
		return true
	}
	return false
}

// load reads one content file, once.
func (c *collector) load(L *lua.LState, path string) error {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	if c.loaded[key] {
		return nil
	}
	c.loaded[key] = true

	c.file = path
	if strings.ToLower(filepath.Ext(path)) == ".lua" {
		if err := L.DoFile(path); err != nil {
			return fmt.Errorf("loader: executing %s: %w", path, err)
		}
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML decodes every document of a YAML stream.
func (c *collector) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loader: reading %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("loader: parsing %s: %w", path, err)
		}
		if v == nil {
			continue
		}
		fields, _ := v.(map[string]any) // nil fields are reported by compile
		c.emit(fields, nil)
	}
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach outside the content files.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// Content must load the same way every time.
	if mathTbl := L.GetGlobal("math"); mathTbl != lua.LNil {
		if tbl, ok := mathTbl.(*lua.LTable); ok {
			tbl.RawSetString("randomseed", lua.LNil)
		}
	}
}
