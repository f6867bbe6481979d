// Package player holds an in-progress game: the player's identity, the id of
// the world it belongs to, and the state store it mutates.
package player

import (
	"fmt"
	"maps"

	"github.com/nathoo/chronicle/engine/state"
	"github.com/nathoo/chronicle/engine/ui"
	"github.com/nathoo/chronicle/engine/world"
	"github.com/nathoo/chronicle/types"
)

// MetaCurrentLocale is the meta key the current locale is saved under.
const MetaCurrentLocale = "current_locale"

// Player is one game in progress. Its name, world id and state store are
// fixed at construction; the current locale is the only field that changes.
type Player struct {
	name    string
	worldID string
	state   *state.Store
	meta    map[string]any

	currentLocale string
}

// New starts a fresh game in w. Choices declared by the pc template are
// asked through p and written into the new state.
func New(name string, w *world.World, p ui.Presenter) (*Player, error) {
	store, err := state.New(w.StateTemplate())
	if err != nil {
		return nil, fmt.Errorf("player: building state: %w", err)
	}
	pl := &Player{
		name:    name,
		worldID: w.ID(),
		state:   store,
		meta:    map[string]any{},
	}
	pl.SetCurrentLocale(w.InitialLocale())
	for _, c := range w.PC().Choices {
		v, err := ask(p, c)
		if err != nil {
			return nil, err
		}
		if err := store.Set(state.Join("pc", c.Section, c.Key), v); err != nil {
			return nil, fmt.Errorf("player: applying choice %s.%s: %w", c.Section, c.Key, err)
		}
	}
	return pl, nil
}

// Restore rebuilds a player from saved data.
func Restore(name, worldID string, tree, meta map[string]any) (*Player, error) {
	store, err := state.New(tree)
	if err != nil {
		return nil, fmt.Errorf("player: restoring %q: %w", name, err)
	}
	meta = maps.Clone(meta)
	if meta == nil {
		meta = map[string]any{}
	}
	pl := &Player{name: name, worldID: worldID, state: store, meta: meta}
	if loc, ok := meta[MetaCurrentLocale].(string); ok {
		pl.currentLocale = loc
	}
	return pl, nil
}

// Name returns the player's name, which is also its save name.
func (p *Player) Name() string { return p.name }

// WorldID returns the id of the world the game belongs to.
func (p *Player) WorldID() string { return p.worldID }

// State returns the game's state store. The store itself is mutable; the
// player always holds the same one.
func (p *Player) State() *state.Store { return p.state }

// Meta returns a copy of the bookkeeping values saved alongside the state.
func (p *Player) Meta() map[string]any { return maps.Clone(p.meta) }

// CurrentLocale returns the id of the locale most recently visited.
func (p *Player) CurrentLocale() string { return p.currentLocale }

// SetCurrentLocale records a locale visit.
func (p *Player) SetCurrentLocale(id string) {
	p.currentLocale = id
	p.meta[MetaCurrentLocale] = id
}

func ask(p ui.Presenter, c types.ChoiceDef) (any, error) {
	switch c.Section {
	case "flags":
		return p.BooleanChoice(c.Prompt)
	case "counters":
		v, err := p.GetQuantity(ui.QuantityRequest{Min: c.Min, Max: c.Max, Prompt: c.Prompt})
		return int(v), err
	case "numbers":
		return p.GetQuantity(ui.QuantityRequest{Min: c.Min, Max: c.Max, IsFloat: true, Prompt: c.Prompt})
	case "strings":
		return p.MenuChoice(c.Options, c.Prompt)
	}
	return nil, fmt.Errorf("player: choice %q has unknown section %q", c.Key, c.Section)
}
