// Package effects applies a single event stream item to the player's state.
// Every event type is one atomic operation. Control flow is never followed
// here; it is returned as directives for the play loop to schedule.
package effects

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/nathoo/chronicle/engine/player"
	"github.com/nathoo/chronicle/engine/state"
	"github.com/nathoo/chronicle/engine/ui"
	"github.com/nathoo/chronicle/engine/world"
	"github.com/nathoo/chronicle/types"
)

// Context carries what an effect may read or mutate.
type Context struct {
	World  *world.World
	Player *player.Player
	UI     ui.Presenter
}

// UnknownEventError reports an event type Apply has no effect for.
type UnknownEventError struct {
	Stream string
	Type   string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("event stream %q: unknown event type %q", e.Stream, e.Type)
}

// Apply runs ev's effect and returns the directives it produces, if any.
func Apply(ctx Context, ev types.EventDef) ([]types.Directive, error) {
	s := ctx.Player.State()

	switch ev.Type {
	case "text":
		return nil, ctx.UI.Print(interpolate(ev.Text, ctx.Player))

	case "branch":
		if ev.Target != "" {
			return []types.Directive{{Type: types.DirectiveEventStream, ID: ev.Target}}, nil
		}
		return []types.Directive{{Type: types.DirectiveLocale, ID: ev.TargetLocale}}, nil

	case "prompt":
		labels := make([]string, len(ev.Choices))
		for i, c := range ev.Choices {
			labels[i] = c.Label
		}
		picked, err := ctx.UI.MenuChoice(labels, ev.Title)
		if err != nil {
			return nil, err
		}
		for _, c := range ev.Choices {
			if c.Label != picked {
				continue
			}
			if c.Branch != "" {
				return []types.Directive{{Type: types.DirectiveEventStream, ID: c.Branch}}, nil
			}
			return []types.Directive{{Type: types.DirectiveLocale, ID: c.Locale}}, nil
		}
		return nil, fmt.Errorf("effects: menu returned %q, which is not one of %v", picked, labels)

	case "npc":
		ids, err := getStrings(s, state.Join("world", string(types.KindNPC), ev.NPC, "events"))
		if err != nil {
			return nil, err
		}
		out := make([]types.Directive, 0, len(ids))
		for _, id := range ids {
			out = append(out, types.Directive{Type: types.DirectiveEventStream, ID: id})
		}
		return out, nil

	case "encounter":
		v, err := s.Get(state.Join("world", ev.Entity.Kind, ev.Entity.ID, "encounter_event"))
		if err != nil {
			return nil, err
		}
		if id, _ := v.(string); id != "" {
			return []types.Directive{{Type: types.DirectiveEventStream, ID: id}}, nil
		}
		return nil, nil

	case "set_flag":
		return nil, s.Set(scopedPath(ev.Scope, "flags", ev.Key), true)

	case "clear_flag":
		return nil, s.Set(scopedPath(ev.Scope, "flags", ev.Key), false)

	case "set_counter":
		return nil, s.Set(scopedPath(ev.Scope, "counters", ev.Key), ev.Value)

	case "add_counter":
		path := scopedPath(ev.Scope, "counters", ev.Key)
		v, err := s.Get(path)
		if err != nil {
			return nil, err
		}
		n, ok := v.(int)
		if !ok {
			return nil, &state.TypeError{Path: path, Want: "counter", Got: v}
		}
		return nil, s.Set(path, n+ev.Amount)

	case "set_number":
		return nil, s.Set(scopedPath(ev.Scope, "numbers", ev.Key), ev.Value)

	case "set_string":
		return nil, s.Set(scopedPath(ev.Scope, "strings", ev.Key), ev.Value)

	case "implode":
		loc, err := ctx.World.Locale(ctx.Player.CurrentLocale())
		if err != nil {
			return nil, err
		}
		return nil, deregister(s, world.LocalePath(loc)+".events", ev.Stream)

	case "retire":
		for _, id := range ctx.World.LocaleIDs() {
			loc, err := ctx.World.Locale(id)
			if err != nil {
				return nil, err
			}
			if err := deregister(s, world.LocalePath(loc)+".events", ev.Stream); err != nil {
				return nil, err
			}
		}
		for _, id := range ctx.World.EntityIDs() {
			e, err := ctx.World.Entity(id)
			if err != nil {
				return nil, err
			}
			if err := deregister(s, world.EntityPath(e)+".events", ev.Stream); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case "set_encounter_event":
		return nil, s.Set(state.Join("world", string(types.KindNPC), ev.NPC, "encounter_event"), ev.Target)
	}

	return nil, &UnknownEventError{Stream: ev.Stream, Type: ev.Type}
}

// scopedPath builds the state path of a section key: pc.<section>.<key>
// for the zero scope, world.<kind>.<id>.<section>.<key> otherwise.
func scopedPath(sc types.Scope, section, key string) string {
	if sc.Kind == "" {
		return state.Join("pc", section, key)
	}
	return state.Join("world", sc.Kind, sc.ID, section, key)
}

func getStrings(s *state.Store, path string) ([]string, error) {
	v, err := s.Get(path)
	if err != nil {
		return nil, err
	}
	ids, ok := v.([]string)
	if !ok {
		return nil, &state.TypeError{Path: path, Want: "list", Got: v}
	}
	return ids, nil
}

// deregister removes every occurrence of id from the list at path.
func deregister(s *state.Store, path, id string) error {
	ids, err := getStrings(s, path)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, id) {
		return nil
	}
	return s.Set(path, slices.DeleteFunc(ids, func(v string) bool { return v == id }))
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// interpolate replaces {player} with the player's name and {<path>} with the
// value at that state path. Placeholders that do not resolve are left as is.
func interpolate(text string, p *player.Player) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := m[1 : len(m)-1]
		if key == "player" {
			return p.Name()
		}
		v, err := p.State().Get(key)
		if err != nil {
			return m
		}
		return format(v)
	})
}

func format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
