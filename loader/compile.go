package loader

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/chronicle/engine/rules"
	"github.com/nathoo/chronicle/engine/world"
	"github.com/nathoo/chronicle/types"
)

// Document type tags.
const (
	docWorld       = "world"
	docPC          = "pc"
	docEventStream = "event_stream"
	docEvent       = "event" // alias of event_stream
)

// Sections in the order their entries and choices are processed.
var sectionNames = []string{"flags", "counters", "numbers", "strings"}

// Scope keys of state-mutating events, in the order they are checked.
var scopeKeys = []string{"npc", "monster", "dungeon", "town"}

// mixedTableError reports a Lua table holding both list entries and named
// fields, which has no document equivalent.
type mixedTableError struct {
	field string   // dotted position of the table within the document
	keys  []string // the named fields, sorted
}

func (e *mixedTableError) Error() string {
	return fmt.Sprintf("table mixes list entries with named fields %s", strings.Join(e.keys, ", "))
}

// toGoValue converts a Lua value to a Go value recursively. field is the
// value's position within the document, used in errors.
func toGoValue(v lua.LValue, field string) (any, error) {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int(f), nil
		}
		return f, nil
	case *lua.LNilType:
		return nil, nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		var named []string
		val.ForEach(func(k, _ lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				named = append(named, string(ks))
			}
		})
		sort.Strings(named)

		// Sequential integer keys starting at 1 make an array.
		maxN := val.MaxN()
		if maxN > 0 {
			if len(named) > 0 {
				return nil, &mixedTableError{field: field, keys: named}
			}
			arr := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				item, err := toGoValue(val.RawGetInt(i), fmt.Sprintf("%s[%d]", field, i-1))
				if err != nil {
					return nil, err
				}
				arr = append(arr, item)
			}
			return arr, nil
		}
		m := make(map[string]any, len(named))
		for _, k := range named {
			sub := k
			if field != "" {
				sub = field + "." + k
			}
			item, err := toGoValue(val.RawGetString(k), sub)
			if err != nil {
				return nil, err
			}
			m[k] = item
		}
		return m, nil
	default:
		return nil, nil
	}
}

// docRef names the object a schema error is reported against.
type docRef struct {
	path string
	kind string
	id   string
}

func (r docRef) errorf(field, format string, args ...any) *SchemaError {
	return &SchemaError{Path: r.path, Kind: r.kind, ID: r.id, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// compiler is pass 1: it builds every object from its document and collects
// every problem rather than stopping at the first.
type compiler struct {
	contents world.Contents
	errs     []error

	seen      map[string]map[string]string // registry -> id -> defining file
	haveWorld bool
	havePC    bool
}

// compile converts documents into world contents. References between
// objects are not checked here; see validate.
func compile(docs []document) (world.Contents, []error) {
	c := &compiler{seen: map[string]map[string]string{}}
	for _, d := range docs {
		c.document(d)
	}
	if !c.haveWorld {
		c.errs = append(c.errs, &SchemaError{Kind: docWorld, Msg: "no world document found"})
	}
	return c.contents, c.errs
}

func (c *compiler) fail(err error) {
	c.errs = append(c.errs, err)
}

func (c *compiler) document(d document) {
	ref := docRef{path: d.path, kind: d.kind(), id: d.id()}
	var mixed *mixedTableError
	if errors.As(d.err, &mixed) {
		c.fail(ref.errorf(mixed.field, "%v", mixed))
		return
	}
	if d.fields == nil {
		c.fail(ref.errorf("", "document is not a mapping"))
		return
	}
	switch ref.kind {
	case string(types.KindTown), string(types.KindDungeon):
		c.locale(ref, d.fields)
	case string(types.KindNPC), string(types.KindMonster):
		c.entity(ref, d.fields)
	case docEventStream, docEvent:
		ref.kind = docEventStream
		c.stream(ref, d.fields)
	case docWorld:
		c.world(ref, d.fields)
	case docPC:
		c.pc(ref, d.fields)
	case "":
		c.fail(ref.errorf("type", "document has no type tag"))
	default:
		c.fail(ref.errorf("type", "unknown document type %q", ref.kind))
	}
}

// claim records id in a registry and reports a duplicate.
func (c *compiler) claim(registry string, ref docRef) bool {
	ids := c.seen[registry]
	if ids == nil {
		ids = map[string]string{}
		c.seen[registry] = ids
	}
	if first, dup := ids[ref.id]; dup {
		c.fail(&DuplicateIDError{Kind: ref.kind, ID: ref.id, Path: ref.path, First: first})
		return false
	}
	ids[ref.id] = ref.path
	return true
}

// header checks the fields every registry object carries.
func (c *compiler) header(ref docRef, m map[string]any) (name string, ok bool) {
	ok = true
	if ref.id == "" {
		c.fail(ref.errorf("id", "missing required field"))
		ok = false
	}
	name, err := stringField(m, "name")
	switch {
	case err != nil:
		c.fail(ref.errorf("name", "%v", err))
		ok = false
	case name == "":
		c.fail(ref.errorf("name", "missing required field"))
		ok = false
	}
	return name, ok
}

func (c *compiler) locale(ref docRef, m map[string]any) {
	name, ok := c.header(ref, m)
	desc, err := stringField(m, "description")
	if err != nil {
		c.fail(ref.errorf("description", "%v", err))
		ok = false
	}
	sections, errs := parseState(ref, "state", m["state"])
	events, err := stringList(m, "events")
	if err != nil {
		errs = append(errs, ref.errorf("events", "%v", err))
	}
	c.errs = append(c.errs, errs...)
	if !ok || len(errs) > 0 || !c.claim(world.RegistryLocale, ref) {
		return
	}
	c.contents.Locales = append(c.contents.Locales, types.LocaleDef{
		ID:          ref.id,
		Name:        name,
		Kind:        types.LocaleKind(ref.kind),
		Description: desc,
		State:       sections,
		Events:      events,
	})
}

func (c *compiler) entity(ref docRef, m map[string]any) {
	name, ok := c.header(ref, m)
	sections, errs := parseState(ref, "state", m["state"])
	events, err := stringList(m, "events")
	if err != nil {
		errs = append(errs, ref.errorf("events", "%v", err))
	}

	required := []string{"encounter_event"}
	if ref.kind == string(types.KindMonster) {
		required = append(required, "victory_event", "defeat_event")
	}
	refs := map[string]string{}
	for _, field := range required {
		v, err := stringField(m, field)
		switch {
		case err != nil:
			errs = append(errs, ref.errorf(field, "%v", err))
		case v == "":
			errs = append(errs, ref.errorf(field, "missing required field"))
		}
		refs[field] = v
	}

	c.errs = append(c.errs, errs...)
	if !ok || len(errs) > 0 || !c.claim(world.RegistryEntity, ref) {
		return
	}
	c.contents.Entities = append(c.contents.Entities, types.EntityDef{
		ID:             ref.id,
		Name:           name,
		Kind:           types.EntityKind(ref.kind),
		State:          sections,
		Events:         events,
		EncounterEvent: refs["encounter_event"],
		VictoryEvent:   refs["victory_event"],
		DefeatEvent:    refs["defeat_event"],
	})
}

func (c *compiler) stream(ref docRef, m map[string]any) {
	if ref.id == "" {
		c.fail(ref.errorf("id", "missing required field"))
		return
	}
	items, err := listField(m, "events")
	if err != nil {
		c.fail(ref.errorf("events", "%v", err))
		return
	}
	s := types.EventStreamDef{ID: ref.id, Events: make([]types.EventDef, 0, len(items))}
	failed := false
	for i, item := range items {
		ev, err := compileEvent(ref, i, item)
		if err != nil {
			c.fail(err)
			failed = true
			continue
		}
		s.Events = append(s.Events, ev)
	}
	if failed || !c.claim(world.RegistryEventStream, ref) {
		return
	}
	c.contents.Streams = append(c.contents.Streams, s)
}

func (c *compiler) world(ref docRef, m map[string]any) {
	ref.id = "world"
	if c.haveWorld {
		c.claim(docWorld, ref)
		return
	}
	c.haveWorld = true
	c.claim(docWorld, ref)

	var def types.WorldDef
	var err error
	for field, dst := range map[string]*string{"name": &def.Name, "start": &def.Start, "intro": &def.Intro} {
		if *dst, err = stringField(m, field); err != nil {
			c.fail(ref.errorf(field, "%v", err))
		}
	}
	if def.Start == "" {
		c.fail(ref.errorf("start", "missing required field"))
	}
	game, errs := parseState(ref, "game", m["game"])
	c.errs = append(c.errs, errs...)
	def.Game = game
	if def.LoadPaths, err = stringList(m, "load_paths"); err != nil {
		c.fail(ref.errorf("load_paths", "%v", err))
	}
	c.contents.Meta = def
}

// pc compiles the player-character template. Keys given through defaults,
// statics or choices are added to the template so choices can be stored.
func (c *compiler) pc(ref docRef, m map[string]any) {
	ref.id = "pc"
	if c.havePC {
		c.claim(docPC, ref)
		return
	}
	c.havePC = true
	c.claim(docPC, ref)

	sections, errs := parseState(ref, "state", m["state"])
	c.errs = append(c.errs, errs...)

	defaults, err := mapField(m, "defaults")
	if err != nil {
		c.fail(ref.errorf("defaults", "%v", err))
	}
	for _, section := range sectionNames {
		names, err := stringList(defaults, section)
		if err != nil {
			c.fail(ref.errorf("defaults."+section, "%v", err))
			continue
		}
		for _, name := range names {
			if !sectionHas(sections, section, name) {
				setEntry(&sections, section, name, zero(section))
			}
		}
	}

	statics, err := mapField(m, "statics")
	if err != nil {
		c.fail(ref.errorf("statics", "%v", err))
	}
	for _, section := range sectionNames {
		values, err := mapField(statics, section)
		if err != nil {
			c.fail(ref.errorf("statics."+section, "%v", err))
			continue
		}
		for _, name := range sortedKeys(values) {
			v, ok := coerce(section, values[name])
			if !ok {
				c.fail(ref.errorf("statics."+section+"."+name, "value %v is not valid for %s", values[name], section))
				continue
			}
			setEntry(&sections, section, name, v)
		}
	}

	choices, err := mapField(m, "choices")
	if err != nil {
		c.fail(ref.errorf("choices", "%v", err))
	}
	var defs []types.ChoiceDef
	for _, section := range sectionNames {
		specs, err := mapField(choices, section)
		if err != nil {
			c.fail(ref.errorf("choices."+section, "%v", err))
			continue
		}
		for _, key := range sortedKeys(specs) {
			def, err := compileChoice(ref, section, key, specs[key])
			if err != nil {
				c.fail(err)
				continue
			}
			if !sectionHas(sections, section, key) {
				setEntry(&sections, section, key, zero(section))
			}
			defs = append(defs, def)
		}
	}

	c.contents.PC = types.PCTemplate{State: sections, Choices: defs}
}

func compileChoice(ref docRef, section, key string, raw any) (types.ChoiceDef, error) {
	field := "choices." + section + "." + key
	entry, ok := raw.(map[string]any)
	if !ok {
		return types.ChoiceDef{}, ref.errorf(field, "choice must be a mapping")
	}
	def := types.ChoiceDef{Section: section, Key: key}
	var err error
	if def.Prompt, err = stringField(entry, "prompt"); err != nil || def.Prompt == "" {
		return def, ref.errorf(field+".prompt", "missing required field")
	}
	switch section {
	case "counters", "numbers":
		if def.Max, ok = number(entry["max"]); !ok {
			return def, ref.errorf(field+".max", "must be a number")
		}
		// min is optional for counters.
		if _, has := entry["min"]; has || section == "numbers" {
			if def.Min, ok = number(entry["min"]); !ok {
				return def, ref.errorf(field+".min", "must be a number")
			}
		}
		if def.Min > def.Max {
			return def, ref.errorf(field, "min %v is greater than max %v", def.Min, def.Max)
		}
	case "strings":
		if def.Options, err = stringList(entry, "choices"); err != nil || len(def.Options) == 0 {
			return def, ref.errorf(field+".choices", "must be a non-empty list of strings")
		}
	}
	return def, nil
}

// compileEvent builds one stream item. A bare string is a text event.
func compileEvent(ref docRef, index int, raw any) (types.EventDef, error) {
	ev := types.EventDef{Stream: ref.id, Index: index}
	at := func(field string) string { return fmt.Sprintf("events[%d].%s", index, field) }

	if text, ok := raw.(string); ok {
		ev.Type = "text"
		ev.Text = text
		return ev, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return ev, ref.errorf(fmt.Sprintf("events[%d]", index), "event must be a string or a mapping")
	}

	var err error
	if ev.Type, err = stringField(m, "type"); err != nil || ev.Type == "" {
		return ev, ref.errorf(at("type"), "missing required field")
	}
	if schema, present := m["condition"]; present {
		if ev.Condition, err = rules.Parse(conditionSchema(schema)); err != nil {
			return ev, ref.errorf(at("condition"), "%v", err)
		}
	}

	// need reads a required string field.
	need := func(field string) (string, error) {
		s, err := stringField(m, field)
		if err != nil {
			return "", ref.errorf(at(field), "%v", err)
		}
		if s == "" {
			return "", ref.errorf(at(field), "missing required field for %s event", ev.Type)
		}
		return s, nil
	}

	switch ev.Type {
	case "text":
		ev.Text, err = need("text")

	case "branch":
		ev.Target, ev.TargetLocale, err = exactlyOne(ref, m, at, "event_id", "locale_id")

	case "prompt":
		if ev.Title, err = stringField(m, "title"); err != nil {
			return ev, ref.errorf(at("title"), "%v", err)
		}
		ev.Choices, err = compileChoices(ref, m, at)

	case "npc":
		ev.NPC, err = need("npc_id")

	case "encounter":
		var npc, monster string
		npc, monster, err = exactlyOne(ref, m, at, "npc", "monster")
		if npc != "" {
			ev.Entity = types.Scope{Kind: string(types.KindNPC), ID: npc}
		} else {
			ev.Entity = types.Scope{Kind: string(types.KindMonster), ID: monster}
		}

	case "set_flag", "clear_flag":
		ev.Key, err = need("flag_id")

	case "set_counter":
		if ev.Key, err = need("counter_id"); err == nil {
			ev.Value, err = valueField(ref, m, at, "counters")
		}

	case "add_counter":
		if ev.Key, err = need("counter_id"); err == nil {
			var v any
			if v, err = valueField(ref, m, at, "counters", "amount"); err == nil {
				ev.Amount = v.(int)
			}
		}

	case "set_number":
		if ev.Key, err = need("number_id"); err == nil {
			ev.Value, err = valueField(ref, m, at, "numbers")
		}

	case "set_string":
		if ev.Key, err = need("string_id"); err == nil {
			ev.Value, err = valueField(ref, m, at, "strings")
		}

	case "set_encounter_event":
		if ev.NPC, err = need("npc"); err == nil {
			ev.Target, err = need("event_id")
		}

	case "implode", "retire":

	default:
		return ev, ref.errorf(at("type"), "unknown event type %q", ev.Type)
	}
	if err != nil {
		return ev, err
	}

	switch ev.Type {
	case "set_flag", "clear_flag", "set_counter", "add_counter", "set_number", "set_string":
		if ev.Scope, err = parseScope(m); err != nil {
			return ev, ref.errorf(fmt.Sprintf("events[%d]", index), "%v", err)
		}
	}
	return ev, nil
}

// exactlyOne reads two alternative string fields of which exactly one must
// be set.
func exactlyOne(ref docRef, m map[string]any, at func(string) string, a, b string) (string, string, error) {
	va, err := stringField(m, a)
	if err != nil {
		return "", "", ref.errorf(at(a), "%v", err)
	}
	vb, err := stringField(m, b)
	if err != nil {
		return "", "", ref.errorf(at(b), "%v", err)
	}
	if (va == "") == (vb == "") {
		return "", "", ref.errorf(at(a), "exactly one of %s or %s is required", a, b)
	}
	return va, vb, nil
}

func compileChoices(ref docRef, m map[string]any, at func(string) string) ([]types.Choice, error) {
	items, err := listField(m, "choices")
	if err != nil {
		return nil, ref.errorf(at("choices"), "%v", err)
	}
	if len(items) == 0 {
		return nil, ref.errorf(at("choices"), "prompt needs at least one choice")
	}
	out := make([]types.Choice, 0, len(items))
	for i, item := range items {
		field := at(fmt.Sprintf("choices[%d]", i))
		cm, ok := item.(map[string]any)
		if !ok {
			return nil, ref.errorf(field, "choice must be a mapping")
		}
		label, err := stringField(cm, "label")
		if err != nil || label == "" {
			return nil, ref.errorf(field+".label", "missing required field")
		}
		branch, locale, err := exactlyOne(ref, cm, func(f string) string { return field + "." + f }, "branch", "locale")
		if err != nil {
			return nil, err
		}
		out = append(out, types.Choice{Label: label, Branch: branch, Locale: locale})
	}
	return out, nil
}

// valueField reads a mutation's value, coerced to the section's type. The
// field defaults to "value".
func valueField(ref docRef, m map[string]any, at func(string) string, section string, field ...string) (any, error) {
	name := "value"
	if len(field) > 0 {
		name = field[0]
	}
	raw, present := m[name]
	if !present {
		return nil, ref.errorf(at(name), "missing required field")
	}
	v, ok := coerce(section, raw)
	if !ok {
		return nil, ref.errorf(at(name), "value %v is not valid for %s", raw, section)
	}
	return v, nil
}

func parseScope(m map[string]any) (types.Scope, error) {
	var sc types.Scope
	for _, key := range scopeKeys {
		raw, present := m[key]
		if !present {
			continue
		}
		if sc.Kind != "" {
			return types.Scope{}, fmt.Errorf("at most one scope key of %v may be given, found %s and %s", scopeKeys, sc.Kind, key)
		}
		id, ok := raw.(string)
		if !ok || id == "" {
			return types.Scope{}, fmt.Errorf("scope %s must name an object id", key)
		}
		sc = types.Scope{Kind: key, ID: id}
	}
	return sc, nil
}

// conditionSchema rewrites empty mappings as empty lists: an empty Lua table
// converts to a mapping, but in a condition it can only mean an empty group.
func conditionSchema(v any) any {
	switch s := v.(type) {
	case map[string]any:
		if len(s) == 0 {
			return []any{}
		}
		out := make(map[string]any, len(s))
		for k, item := range s {
			out[k] = conditionSchema(item)
		}
		return out
	case []any:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = conditionSchema(item)
		}
		return out
	}
	return v
}

// parseState builds state sections. Each section is a list whose entries
// are a bare name, taking the section's zero value, or a single-key mapping
// of name to value. A mapping of names to values is accepted as well.
func parseState(ref docRef, prefix string, raw any) (types.StateSections, []error) {
	s := types.StateSections{
		Flags:    map[string]bool{},
		Counters: map[string]int{},
		Numbers:  map[string]float64{},
		Strings:  map[string]string{},
	}
	m, err := asMap(raw)
	if err != nil {
		return s, []error{ref.errorf(prefix, "%v", err)}
	}
	var errs []error
	for _, key := range sortedKeys(m) {
		if !isSection(key) {
			errs = append(errs, ref.errorf(prefix+"."+key, "unknown state section"))
		}
	}
	for _, section := range sectionNames {
		field := prefix + "." + section
		switch entries := m[section].(type) {
		case nil:
		case []any:
			for _, entry := range entries {
				name, v, err := stateEntry(section, entry)
				if err != nil {
					errs = append(errs, ref.errorf(field, "%v", err))
					continue
				}
				setEntry(&s, section, name, v)
			}
		case map[string]any:
			for _, name := range sortedKeys(entries) {
				v, ok := coerce(section, entries[name])
				if !ok {
					errs = append(errs, ref.errorf(field+"."+name, "value %v is not valid for %s", entries[name], section))
					continue
				}
				setEntry(&s, section, name, v)
			}
		default:
			errs = append(errs, ref.errorf(field, "section must be a list or a mapping"))
		}
	}
	return s, errs
}

func stateEntry(section string, entry any) (string, any, error) {
	switch e := entry.(type) {
	case string:
		return e, zero(section), nil
	case map[string]any:
		if len(e) != 1 {
			return "", nil, fmt.Errorf("entry %v must have exactly one key", e)
		}
		for name, raw := range e {
			v, ok := coerce(section, raw)
			if !ok {
				return "", nil, fmt.Errorf("entry %q: value %v is not valid for %s", name, raw, section)
			}
			return name, v, nil
		}
	}
	return "", nil, fmt.Errorf("entry %v must be a name or a single-key mapping", entry)
}

func isSection(key string) bool {
	for _, s := range sectionNames {
		if s == key {
			return true
		}
	}
	return false
}

func zero(section string) any {
	switch section {
	case "flags":
		return false
	case "counters":
		return 0
	case "numbers":
		return 0.0
	}
	return ""
}

// coerce converts a decoded scalar to the section's leaf type.
func coerce(section string, v any) (any, bool) {
	switch section {
	case "flags":
		b, ok := v.(bool)
		return b, ok
	case "counters":
		switch n := v.(type) {
		case int:
			return n, true
		case float64:
			if n == math.Trunc(n) {
				return int(n), true
			}
		}
		return nil, false
	case "numbers":
		f, ok := number(v)
		return f, ok
	case "strings":
		switch s := v.(type) {
		case string:
			return s, true
		case bool, int, float64:
			return fmt.Sprint(s), true
		}
	}
	return nil, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func setEntry(s *types.StateSections, section, name string, v any) {
	switch section {
	case "flags":
		s.Flags[name] = v.(bool)
	case "counters":
		s.Counters[name] = v.(int)
	case "numbers":
		s.Numbers[name] = v.(float64)
	case "strings":
		s.Strings[name] = v.(string)
	}
}

func sectionHas(s types.StateSections, section, name string) bool {
	var ok bool
	switch section {
	case "flags":
		_, ok = s.Flags[name]
	case "counters":
		_, ok = s.Counters[name]
	case "numbers":
		_, ok = s.Numbers[name]
	case "strings":
		_, ok = s.Strings[name]
	}
	return ok
}

// stringField returns a string field, or "" if missing.
func stringField(m map[string]any, key string) (string, error) {
	switch v := m[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("expected a string, got %T", v)
	}
}

// listField returns a list field, or nil if missing. An empty mapping counts
// as an empty list.
func listField(m map[string]any, key string) ([]any, error) {
	switch v := m[key].(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected a list, got %T", m[key])
}

// stringList returns a list-of-strings field, or nil if missing.
func stringList(m map[string]any, key string) ([]string, error) {
	items, err := listField(m, key)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a list of strings, found %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// mapField returns a mapping field, or nil if missing.
func mapField(m map[string]any, key string) (map[string]any, error) {
	return asMap(m[key])
}

// asMap accepts a mapping, nothing, or an empty list.
func asMap(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return x, nil
	case []any:
		if len(x) == 0 {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected a mapping, got %T", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
