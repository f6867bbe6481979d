// Package engine provides the play loop that drives a player through the
// world: it visits locales, runs their event streams and schedules the
// directives the streams return.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/nathoo/chronicle/engine/effects"
	"github.com/nathoo/chronicle/engine/events"
	"github.com/nathoo/chronicle/engine/player"
	"github.com/nathoo/chronicle/engine/state"
	"github.com/nathoo/chronicle/engine/ui"
	"github.com/nathoo/chronicle/engine/world"
	"github.com/nathoo/chronicle/types"
)

// Locale menu entries shown when a visit registers no event streams.
const (
	MenuWait = "Wait"
	MenuSave = "Save game"
)

// IncorrectObjectTypeError reports a directive the loop cannot schedule.
// It means the content is broken and is never recovered from.
type IncorrectObjectTypeError struct {
	Stream string
	Value  any
}

func (e *IncorrectObjectTypeError) Error() string {
	return fmt.Sprintf("event stream %q returned a directive of unknown type %v", e.Stream, e.Value)
}

// Saver persists a player. It backs the "Save game" menu entry.
type Saver func(p *player.Player) error

// Option configures an Engine.
type Option func(*Engine)

// WithSaver enables saving from the locale menu.
func WithSaver(fn Saver) Option {
	return func(e *Engine) { e.save = fn }
}

// WithLogger sets the logger used for debug tracing. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is one running session. It is not safe for concurrent use.
type Engine struct {
	world  *world.World
	player *player.Player
	ui     ui.Presenter
	save   Saver
	log    *slog.Logger

	locales []string // stack, top is last
	streams []string // stack, top is last

	// idle is set on every visit and cleared when a stream yields an item.
	idle bool
}

// New creates an engine positioned at the player's current locale.
func New(w *world.World, p *player.Player, u ui.Presenter, opts ...Option) *Engine {
	e := &Engine{
		world:  w,
		player: p,
		ui:     u,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if p.CurrentLocale() == "" {
		p.SetCurrentLocale(w.InitialLocale())
	}
	e.locales = []string{p.CurrentLocale()}
	return e
}

// Run steps until the presenter requests an exit, which returns nil, or
// until a fatal error.
func (e *Engine) Run() error {
	for {
		if err := e.Step(); err != nil {
			if errors.Is(err, ui.ErrExit) {
				e.log.Debug("exit requested", "player", e.player.Name())
				return nil
			}
			return err
		}
	}
}

// Step performs one unit of work: a locale visit when no event stream is
// pending, otherwise one pass over the top event stream.
func (e *Engine) Step() error {
	if len(e.streams) == 0 {
		return e.visit()
	}
	id := e.streams[len(e.streams)-1]
	e.streams = e.streams[:len(e.streams)-1]
	return e.runStream(id)
}

// Pending returns copies of the locale and event stream stacks, top last.
func (e *Engine) Pending() (locales, streams []string) {
	return slices.Clone(e.locales), slices.Clone(e.streams)
}

func (e *Engine) visit() error {
	// 1. Recover from a drained locale stack by revisiting where we are.
	recovering := len(e.locales) == 0
	if recovering {
		e.locales = append(e.locales, e.player.CurrentLocale())
	}
	id := e.locales[len(e.locales)-1]
	e.locales = e.locales[:len(e.locales)-1]

	// 2. Enter the locale.
	loc, err := e.world.Locale(id)
	if err != nil {
		return e.report(err)
	}
	e.player.SetCurrentLocale(id)
	e.log.Debug("visit locale", "locale", id)
	if l, ok := e.ui.(ui.Locator); ok {
		name := loc.Name
		if name == "" {
			name = loc.ID
		}
		l.EnterLocale(name)
	}

	// 3. Queue its registered streams so the first declared runs first.
	v, err := e.player.State().Get(world.LocalePath(loc) + ".events")
	if err != nil {
		return e.report(err)
	}
	ids, _ := v.([]string)
	// Revisiting after a visit in which nothing was eligible would repeat
	// forever without asking the player anything.
	if len(ids) == 0 || (recovering && e.idle) {
		e.idle = false
		return e.localeMenu(loc)
	}
	e.idle = true
	for _, s := range slices.Backward(ids) {
		e.streams = append(e.streams, s)
	}
	return nil
}

// localeMenu gives the player something to do in a locale with nothing
// registered, so the loop waits on input instead of spinning.
func (e *Engine) localeMenu(loc types.LocaleDef) error {
	options := []string{MenuWait}
	if e.save != nil {
		options = append(options, MenuSave)
	}
	title := loc.Name
	if title == "" {
		title = loc.ID
	}
	choice, err := e.ui.MenuChoice(options, title)
	if err != nil {
		return err
	}
	if choice == MenuSave {
		if err := e.save(e.player); err != nil {
			return e.report(fmt.Errorf("saving game: %w", err))
		}
		return e.ui.Print("Game saved.")
	}
	return nil
}

func (e *Engine) runStream(id string) error {
	stream, err := e.world.EventStream(id)
	if err != nil {
		return e.report(err)
	}
	e.log.Debug("run event stream", "stream", id, "locale", e.player.CurrentLocale())

	ctx := effects.Context{World: e.world, Player: e.player, UI: e.ui}
	for ev, err := range events.Run(stream, e.player.State().Get) {
		if err != nil {
			return e.report(err)
		}
		e.idle = false
		dirs, err := effects.Apply(ctx, ev)
		if err != nil {
			if recoverable(err) {
				return e.report(err)
			}
			return err
		}
		if len(dirs) > 0 {
			// A directive ends this pass over the stream.
			return e.schedule(stream.ID, dirs)
		}
	}
	return nil
}

// schedule pushes dirs so that the first directive is processed first.
func (e *Engine) schedule(stream string, dirs []types.Directive) error {
	for _, d := range slices.Backward(dirs) {
		switch d.Type {
		case types.DirectiveLocale:
			e.locales = append(e.locales, d.ID)
		case types.DirectiveEventStream:
			e.streams = append(e.streams, d.ID)
		default:
			return &IncorrectObjectTypeError{Stream: stream, Value: d.Type}
		}
		e.log.Debug("directive", "stream", stream, "type", d.Type, "id", d.ID)
	}
	return nil
}

// report shows a recoverable error to the player. Only a presenter failure
// escapes.
func (e *Engine) report(err error) error {
	e.log.Warn("recoverable play error", "err", err)
	return e.ui.Print("Error: " + err.Error())
}

func recoverable(err error) bool {
	var (
		typeErr *state.TypeError
		objErr  *world.ObjectNotFoundError
		condErr *events.ConditionError
	)
	return errors.Is(err, state.ErrNotFound) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &objErr) ||
		errors.As(err, &condErr)
}
