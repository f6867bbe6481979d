package loader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nathoo/chronicle/engine/rules"
	"github.com/nathoo/chronicle/engine/state"
	"github.com/nathoo/chronicle/engine/world"
	"github.com/nathoo/chronicle/types"
)

// ValidationError collects every problem found while loading content. It
// unwraps to the individual errors, so errors.As finds each of them.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(msgs, "\n  "))
}

func (e *ValidationError) Unwrap() []error { return e.Errors }

// SchemaError reports a document that does not have the expected shape.
type SchemaError struct {
	Path  string // file the document came from
	Kind  string
	ID    string
	Field string
	Msg   string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	if e.Kind != "" {
		b.WriteString(e.Kind)
		if e.ID != "" {
			fmt.Fprintf(&b, " %q", e.ID)
		}
		b.WriteString(": ")
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "field %q: ", e.Field)
	}
	b.WriteString(e.Msg)
	return b.String()
}

// DuplicateIDError reports an id defined twice in one registry.
type DuplicateIDError struct {
	Kind  string
	ID    string
	Path  string // file of the second definition
	First string // file of the first definition
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: duplicate %s id %q (first defined in %s)", e.Path, e.Kind, e.ID, e.First)
}

// UnresolvedRefError reports a field naming an object that does not exist.
type UnresolvedRefError struct {
	Kind  string // kind of the referring object
	ID    string
	Field string
	Ref   string
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("%s %q: field %q refers to unknown %q", e.Kind, e.ID, e.Field, e.Ref)
}

// validator is pass 2: every reference between compiled objects must
// resolve.
type validator struct {
	locales  map[string]types.LocaleDef
	entities map[string]types.EntityDef
	streams  map[string]bool
	pc       types.StateSections

	used     map[string]bool // streams something refers to
	errs     []error
	warnings []string
}

func validate(c world.Contents) ([]error, []string) {
	v := &validator{
		locales:  map[string]types.LocaleDef{},
		entities: map[string]types.EntityDef{},
		streams:  map[string]bool{},
		pc:       c.PC.State,
		used:     map[string]bool{},
	}
	for _, l := range c.Locales {
		v.locales[l.ID] = l
	}
	for _, e := range c.Entities {
		v.entities[e.ID] = e
	}
	for _, s := range c.Streams {
		v.streams[s.ID] = true
	}

	if _, ok := v.locales[c.Meta.Start]; !ok {
		v.unresolved("world", c.Meta.Name, "start", c.Meta.Start)
	}
	if id := c.PC.State.Strings["initial_locale"]; id != "" {
		if _, ok := v.locales[id]; !ok {
			v.unresolved("pc", "pc", "state.strings.initial_locale", id)
		}
	}

	for _, l := range c.Locales {
		for _, id := range l.Events {
			v.stream(string(l.Kind), l.ID, "events", id)
		}
	}
	for _, e := range c.Entities {
		kind := string(e.Kind)
		for _, id := range e.Events {
			v.stream(kind, e.ID, "events", id)
		}
		v.stream(kind, e.ID, "encounter_event", e.EncounterEvent)
		if e.Kind == types.KindMonster {
			v.stream(kind, e.ID, "victory_event", e.VictoryEvent)
			v.stream(kind, e.ID, "defeat_event", e.DefeatEvent)
		}
	}
	for _, s := range c.Streams {
		for _, ev := range s.Events {
			v.event(ev)
		}
	}

	for _, s := range c.Streams {
		if !v.used[s.ID] {
			v.warnings = append(v.warnings, fmt.Sprintf("event stream %q is never referenced", s.ID))
		}
	}
	sort.Strings(v.warnings)
	return v.errs, v.warnings
}

func (v *validator) unresolved(kind, id, field, ref string) {
	v.errs = append(v.errs, &UnresolvedRefError{Kind: kind, ID: id, Field: field, Ref: ref})
}

func (v *validator) stream(kind, id, field, ref string) {
	v.used[ref] = true
	if !v.streams[ref] {
		v.unresolved(kind, id, field, ref)
	}
}

func (v *validator) locale(kind, id, field, ref string) {
	if _, ok := v.locales[ref]; !ok {
		v.unresolved(kind, id, field, ref)
	}
}

// entity checks that ref is an entity of the wanted kind.
func (v *validator) entity(kind, id, field, ref string, want types.EntityKind) (types.EntityDef, bool) {
	e, ok := v.entities[ref]
	if !ok || e.Kind != want {
		v.unresolved(kind, id, field, ref)
		return types.EntityDef{}, false
	}
	return e, true
}

func (v *validator) event(ev types.EventDef) {
	const kind = docEventStream
	at := func(field string) string { return fmt.Sprintf("events[%d].%s", ev.Index, field) }

	switch ev.Type {
	case "branch":
		if ev.Target != "" {
			v.stream(kind, ev.Stream, at("event_id"), ev.Target)
		} else {
			v.locale(kind, ev.Stream, at("locale_id"), ev.TargetLocale)
		}

	case "prompt":
		for i, c := range ev.Choices {
			if c.Branch != "" {
				v.stream(kind, ev.Stream, at(fmt.Sprintf("choices[%d].branch", i)), c.Branch)
			} else {
				v.locale(kind, ev.Stream, at(fmt.Sprintf("choices[%d].locale", i)), c.Locale)
			}
		}

	case "npc":
		v.entity(kind, ev.Stream, at("npc_id"), ev.NPC, types.KindNPC)

	case "encounter":
		v.entity(kind, ev.Stream, at(ev.Entity.Kind), ev.Entity.ID, types.EntityKind(ev.Entity.Kind))

	case "set_encounter_event":
		v.entity(kind, ev.Stream, at("npc"), ev.NPC, types.KindNPC)
		v.stream(kind, ev.Stream, at("event_id"), ev.Target)

	case "set_flag", "clear_flag":
		v.key(ev, "flags", at("flag_id"))
	case "set_counter", "add_counter":
		v.key(ev, "counters", at("counter_id"))
	case "set_number":
		v.key(ev, "numbers", at("number_id"))
	case "set_string":
		v.key(ev, "strings", at("string_id"))
	}
}

// key checks that a mutation's scope exists and declares the key it sets.
func (v *validator) key(ev types.EventDef, section, field string) {
	const kind = docEventStream
	sections := v.pc
	switch ev.Scope.Kind {
	case "":
	case string(types.KindNPC), string(types.KindMonster):
		e, ok := v.entity(kind, ev.Stream, fmt.Sprintf("events[%d].%s", ev.Index, ev.Scope.Kind), ev.Scope.ID, types.EntityKind(ev.Scope.Kind))
		if !ok {
			return
		}
		sections = e.State
	default:
		l, ok := v.locales[ev.Scope.ID]
		if !ok || string(l.Kind) != ev.Scope.Kind {
			v.unresolved(kind, ev.Stream, fmt.Sprintf("events[%d].%s", ev.Index, ev.Scope.Kind), ev.Scope.ID)
			return
		}
		sections = l.State
	}
	if !sectionHas(sections, section, ev.Key) {
		v.unresolved(kind, ev.Stream, field, ev.Key)
	}
}

// IsContentError reports whether err came from invalid content rather than
// from reading it.
func IsContentError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// checkOperands warns about condition operands that look like state paths
// but name nothing in w's template. Such operands fall back to literals at
// run time, which is almost never what the author meant.
func checkOperands(w *world.World) []string {
	s, err := state.New(w.StateTemplate())
	if err != nil {
		return []string{fmt.Sprintf("state template: %v", err)}
	}
	var warnings []string
	for _, id := range w.EventStreamIDs() {
		stream, err := w.EventStream(id)
		if err != nil {
			continue
		}
		for i, ev := range stream.Events {
			for _, tok := range rules.Paths(ev.Condition) {
				if !looksLikePath(tok) {
					continue
				}
				if _, err := s.Get(tok); err != nil {
					warnings = append(warnings, fmt.Sprintf("event stream %q: events[%d] condition operand %q is not a state value", id, i, tok))
				}
			}
		}
	}
	return warnings
}

func looksLikePath(tok string) bool {
	for _, root := range []string{"pc.", "world.", "game."} {
		if strings.HasPrefix(tok, root) {
			return true
		}
	}
	return false
}
