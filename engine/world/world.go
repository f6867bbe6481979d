// Package world holds the immutable catalog of loaded content: locales,
// entities and event streams, resolved by id, plus the state template a new
// player's store is cloned from.
package world

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nathoo/chronicle/types"
)

// Registry kinds, as reported by ObjectNotFoundError.
const (
	RegistryLocale      = "locale"
	RegistryEntity      = "entity"
	RegistryEventStream = "event_stream"
)

// ObjectNotFoundError reports a registry miss.
type ObjectNotFoundError struct {
	Kind string
	ID   string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s %q was not found in the %s registry", e.Kind, e.ID, e.Kind)
}

// Contents is everything a World is built from.
type Contents struct {
	Meta     types.WorldDef
	PC       types.PCTemplate
	Locales  []types.LocaleDef
	Entities []types.EntityDef
	Streams  []types.EventStreamDef
}

// World is the frozen content registry. New keeps deep copies of its input
// and every accessor returns a deep copy, so nothing reachable from a World
// can be mutated after New returns.
type World struct {
	meta     types.WorldDef
	pc       types.PCTemplate
	locales  map[string]types.LocaleDef
	entities map[string]types.EntityDef
	streams  map[string]types.EventStreamDef

	template map[string]any // cached, never handed out directly
	id       string
}

// New builds a World from fully resolved contents. Ids must be unique per
// registry; reference checking is the loader's job.
func New(c Contents) (*World, error) {
	w := &World{
		meta:     copyMeta(c.Meta),
		pc:       copyPC(c.PC),
		locales:  make(map[string]types.LocaleDef, len(c.Locales)),
		entities: make(map[string]types.EntityDef, len(c.Entities)),
		streams:  make(map[string]types.EventStreamDef, len(c.Streams)),
	}
	for _, l := range c.Locales {
		if _, dup := w.locales[l.ID]; dup {
			return nil, fmt.Errorf("world: duplicate locale id %q", l.ID)
		}
		w.locales[l.ID] = copyLocale(l)
	}
	for _, e := range c.Entities {
		if _, dup := w.entities[e.ID]; dup {
			return nil, fmt.Errorf("world: duplicate entity id %q", e.ID)
		}
		w.entities[e.ID] = copyEntity(e)
	}
	for _, s := range c.Streams {
		if _, dup := w.streams[s.ID]; dup {
			return nil, fmt.Errorf("world: duplicate event stream id %q", s.ID)
		}
		w.streams[s.ID] = copyStream(s)
	}

	w.template = map[string]any{
		"pc":    sectionsTree(c.PC.State),
		"world": w.worldScope(),
		"game":  sectionsTree(c.Meta.Game),
	}
	canonical, err := yaml.Marshal(w.template)
	if err != nil {
		return nil, fmt.Errorf("world: encoding state template: %w", err)
	}
	sum := sha256.Sum256(canonical)
	w.id = hex.EncodeToString(sum[:])
	return w, nil
}

// ID is the hash of the state template's canonical encoding. Saves record
// it so a save can be matched against the world it was made in.
func (w *World) ID() string { return w.id }

// Meta returns the world document's metadata.
func (w *World) Meta() types.WorldDef { return copyMeta(w.meta) }

// PC returns the player-character template.
func (w *World) PC() types.PCTemplate { return copyPC(w.pc) }

// InitialLocale is the locale a new game starts in: the pc template's
// initial_locale string when set, otherwise the world's start locale.
func (w *World) InitialLocale() string {
	if id := w.pc.State.Strings["initial_locale"]; id != "" {
		return id
	}
	return w.meta.Start
}

// Locale returns the locale with the given id.
func (w *World) Locale(id string) (types.LocaleDef, error) {
	l, ok := w.locales[id]
	if !ok {
		return types.LocaleDef{}, &ObjectNotFoundError{Kind: RegistryLocale, ID: id}
	}
	return copyLocale(l), nil
}

// Entity returns the NPC or monster with the given id.
func (w *World) Entity(id string) (types.EntityDef, error) {
	e, ok := w.entities[id]
	if !ok {
		return types.EntityDef{}, &ObjectNotFoundError{Kind: RegistryEntity, ID: id}
	}
	return copyEntity(e), nil
}

// EventStream returns the event stream with the given id.
func (w *World) EventStream(id string) (types.EventStreamDef, error) {
	s, ok := w.streams[id]
	if !ok {
		return types.EventStreamDef{}, &ObjectNotFoundError{Kind: RegistryEventStream, ID: id}
	}
	return copyStream(s), nil
}

// LocaleIDs returns every locale id, sorted.
func (w *World) LocaleIDs() []string { return sortedKeys(w.locales) }

// EntityIDs returns every entity id, sorted.
func (w *World) EntityIDs() []string { return sortedKeys(w.entities) }

// EventStreamIDs returns every event stream id, sorted.
func (w *World) EventStreamIDs() []string { return sortedKeys(w.streams) }

// StateTemplate returns a fresh deep copy of the full initial state tree.
func (w *World) StateTemplate() map[string]any {
	return copyTree(w.template)
}

// LocalePath is the state path prefix of a locale: world.<kind>.<id>.
func LocalePath(l types.LocaleDef) string {
	return "world." + string(l.Kind) + "." + l.ID
}

// EntityPath is the state path prefix of an entity: world.<kind>.<id>.
func EntityPath(e types.EntityDef) string {
	return "world." + string(e.Kind) + "." + e.ID
}

func (w *World) worldScope() map[string]any {
	scope := map[string]any{
		string(types.KindTown):    map[string]any{},
		string(types.KindDungeon): map[string]any{},
		string(types.KindNPC):     map[string]any{},
		string(types.KindMonster): map[string]any{},
	}
	for id, l := range w.locales {
		node := sectionsTree(l.State)
		node["events"] = append([]string{}, l.Events...)
		scope[string(l.Kind)].(map[string]any)[id] = node
	}
	for id, e := range w.entities {
		node := sectionsTree(e.State)
		node["events"] = append([]string{}, e.Events...)
		node["encounter_event"] = e.EncounterEvent
		if e.Kind == types.KindMonster {
			node["victory_event"] = e.VictoryEvent
			node["defeat_event"] = e.DefeatEvent
		}
		scope[string(e.Kind)].(map[string]any)[id] = node
	}
	return scope
}

func sectionsTree(s types.StateSections) map[string]any {
	flags := map[string]any{}
	for k, v := range s.Flags {
		flags[k] = v
	}
	counters := map[string]any{}
	for k, v := range s.Counters {
		counters[k] = v
	}
	numbers := map[string]any{}
	for k, v := range s.Numbers {
		numbers[k] = v
	}
	strs := map[string]any{}
	for k, v := range s.Strings {
		strs[k] = v
	}
	return map[string]any{
		"flags":    flags,
		"counters": counters,
		"numbers":  numbers,
		"strings":  strs,
	}
}

func copyMeta(m types.WorldDef) types.WorldDef {
	m.Game = copySections(m.Game)
	m.LoadPaths = slices.Clone(m.LoadPaths)
	return m
}

func copyPC(pc types.PCTemplate) types.PCTemplate {
	out := types.PCTemplate{State: copySections(pc.State)}
	if pc.Choices != nil {
		out.Choices = make([]types.ChoiceDef, len(pc.Choices))
		for i, c := range pc.Choices {
			c.Options = slices.Clone(c.Options)
			out.Choices[i] = c
		}
	}
	return out
}

func copyLocale(l types.LocaleDef) types.LocaleDef {
	l.State = copySections(l.State)
	l.Events = slices.Clone(l.Events)
	return l
}

func copyEntity(e types.EntityDef) types.EntityDef {
	e.State = copySections(e.State)
	e.Events = slices.Clone(e.Events)
	return e
}

func copyStream(s types.EventStreamDef) types.EventStreamDef {
	if s.Events == nil {
		return s
	}
	events := make([]types.EventDef, len(s.Events))
	for i, ev := range s.Events {
		ev.Condition = copyCondition(ev.Condition)
		ev.Choices = slices.Clone(ev.Choices)
		events[i] = ev
	}
	s.Events = events
	return s
}

func copyCondition(c *types.Condition) *types.Condition {
	if c == nil {
		return nil
	}
	out := *c
	out.Args = slices.Clone(c.Args)
	if c.Elements != nil {
		out.Elements = make([]types.Condition, len(c.Elements))
		for i := range c.Elements {
			out.Elements[i] = *copyCondition(&c.Elements[i])
		}
	}
	return &out
}

func copySections(s types.StateSections) types.StateSections {
	out := types.StateSections{
		Flags:    make(map[string]bool, len(s.Flags)),
		Counters: make(map[string]int, len(s.Counters)),
		Numbers:  make(map[string]float64, len(s.Numbers)),
		Strings:  make(map[string]string, len(s.Strings)),
	}
	for k, v := range s.Flags {
		out.Flags[k] = v
	}
	for k, v := range s.Counters {
		out.Counters[k] = v
	}
	for k, v := range s.Numbers {
		out.Numbers[k] = v
	}
	for k, v := range s.Strings {
		out.Strings[k] = v
	}
	return out
}

func copyTree(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = copyTree(val)
		case []string:
			out[k] = append([]string{}, val...)
		default:
			out[k] = val
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
