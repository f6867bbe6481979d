package engine

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/nathoo/chronicle/engine/player"
	"github.com/nathoo/chronicle/engine/rules"
	"github.com/nathoo/chronicle/engine/ui/mock"
	"github.com/nathoo/chronicle/engine/world"
	"github.com/nathoo/chronicle/types"
)

func cond(t *testing.T, expr string) *types.Condition {
	t.Helper()
	c, err := rules.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", expr, err)
	}
	return c
}

// loopWorld is a town whose only stream prints, then branches to a stream
// that sends the player back to the town.
func loopWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Name: "Loop", Start: "start"},
		Locales: []types.LocaleDef{
			{ID: "start", Name: "Start", Kind: types.KindTown, Events: []string{"main"}},
		},
		Streams: []types.EventStreamDef{
			{ID: "main", Events: []types.EventDef{
				{Type: "text", Stream: "main", Text: "You stand at the start."},
				{Type: "branch", Stream: "main", Index: 1, Target: "loop"},
			}},
			{ID: "loop", Events: []types.EventDef{
				{Type: "branch", Stream: "loop", TargetLocale: "start"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	return w
}

func newEngine(t *testing.T, w *world.World, p *mock.Presenter, opts ...Option) (*Engine, *player.Player) {
	t.Helper()
	pl, err := player.New("ayla", w, p)
	if err != nil {
		t.Fatalf("player.New failed: %v", err)
	}
	return New(w, pl, p, opts...), pl
}

func TestStep_LoopReentersStart(t *testing.T) {
	p := &mock.Presenter{}
	e, pl := newEngine(t, loopWorld(t), p)

	// visit start, run main, run loop: one full iteration.
	for iter := 0; iter < 3; iter++ {
		for i := 0; i < 3; i++ {
			if err := e.Step(); err != nil {
				t.Fatalf("iteration %d step %d: %v", iter, i, err)
			}
			if pl.CurrentLocale() != "start" {
				t.Fatalf("current locale = %q, want start", pl.CurrentLocale())
			}
		}
		locales, streams := e.Pending()
		if !reflect.DeepEqual(locales, []string{"start"}) || len(streams) != 0 {
			t.Fatalf("iteration %d pending = %v / %v", iter, locales, streams)
		}
	}
	if len(p.Printed) != 3 {
		t.Errorf("printed %d texts, want 3: %q", len(p.Printed), p.Printed)
	}
	if !reflect.DeepEqual(p.Located, []string{"Start", "Start", "Start"}) {
		t.Errorf("located = %q, want one entry per visit", p.Located)
	}
}

func TestStep_StreamOrder(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{
			{ID: "town", Kind: types.KindTown, Events: []string{"first", "second"}},
		},
		Streams: []types.EventStreamDef{
			{ID: "first", Events: []types.EventDef{{Type: "text", Text: "one"}}},
			{ID: "second", Events: []types.EventDef{{Type: "text", Text: "two"}}},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{}
	e, _ := newEngine(t, w, p)

	for i := 0; i < 3; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !reflect.DeepEqual(p.Printed, []string{"one", "two"}) {
		t.Errorf("printed %q, want declared order", p.Printed)
	}
}

func TestStep_DirectiveEndsPass(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{
			{ID: "town", Kind: types.KindTown, Events: []string{"door"}},
		},
		Streams: []types.EventStreamDef{
			{ID: "door", Events: []types.EventDef{
				{Type: "branch", Target: "inside"},
				{Type: "text", Text: "never shown"},
			}},
			{ID: "inside", Events: []types.EventDef{{Type: "text", Text: "inside"}}},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{}
	e, _ := newEngine(t, w, p)
	for i := 0; i < 3; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !reflect.DeepEqual(p.Printed, []string{"inside"}) {
		t.Errorf("printed %q", p.Printed)
	}
}

func TestStep_ConditionsSeeEarlierEffects(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Start: "town"},
		PC:   types.PCTemplate{State: types.StateSections{Flags: map[string]bool{"lamp": false}}},
		Locales: []types.LocaleDef{
			{ID: "town", Kind: types.KindTown, Events: []string{"s"}},
		},
		Streams: []types.EventStreamDef{
			{ID: "s", Events: []types.EventDef{
				{Type: "text", Text: "dark", Condition: cond(t, "! pc.flags.lamp")},
				{Type: "set_flag", Key: "lamp"},
				{Type: "text", Text: "light", Condition: cond(t, "pc.flags.lamp")},
			}},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{}
	e, _ := newEngine(t, w, p)
	_ = e.Step()
	if err := e.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if !reflect.DeepEqual(p.Printed, []string{"dark", "light"}) {
		t.Errorf("printed %q", p.Printed)
	}
}

func TestStep_ImplodeRunsOnce(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{
			{ID: "town", Name: "Town", Kind: types.KindTown, Events: []string{"welcome"}},
		},
		Streams: []types.EventStreamDef{
			{ID: "welcome", Events: []types.EventDef{
				{Type: "text", Stream: "welcome", Text: "Welcome!"},
				{Type: "implode", Stream: "welcome", Index: 1},
			}},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{Menu: []string{MenuWait}}
	e, _ := newEngine(t, w, p)

	// visit, run welcome, visit again: nothing registered, so the menu shows.
	for i := 0; i < 3; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !reflect.DeepEqual(p.Printed, []string{"Welcome!"}) {
		t.Errorf("printed %q", p.Printed)
	}
	if len(p.MenuCalls) != 1 || p.MenuCalls[0].Title != "Town" {
		t.Errorf("menu calls = %+v", p.MenuCalls)
	}
	if !reflect.DeepEqual(p.MenuCalls[0].Options, []string{MenuWait}) {
		t.Errorf("options without a saver = %v", p.MenuCalls[0].Options)
	}
}

func TestRun_ExitReturnsNil(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta:    types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{{ID: "town", Kind: types.KindTown}},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{Menu: []string{MenuWait, MenuWait}}
	e, _ := newEngine(t, w, p)
	if err := e.Run(); err != nil {
		t.Errorf("Run = %v, want nil on exit", err)
	}
	if len(p.MenuCalls) != 3 {
		t.Errorf("menu shown %d times, want 3", len(p.MenuCalls))
	}
}

func TestRun_NothingEligibleWaitsOnInput(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta:    types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{{ID: "town", Name: "Town", Kind: types.KindTown, Events: []string{"gated"}}},
		Streams: []types.EventStreamDef{
			{ID: "gated", Events: []types.EventDef{
				{Type: "text", Stream: "gated", Text: "Never shown.", Condition: cond(t, "pc.flags.never")},
			}},
		},
		PC: types.PCTemplate{State: types.StateSections{Flags: map[string]bool{"never": false}}},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{Menu: []string{MenuWait}}
	e, _ := newEngine(t, w, p)

	// The menu answers once, then backs out; Run must reach it both times.
	if err := e.Run(); err != nil {
		t.Fatalf("Run = %v, want nil on exit", err)
	}
	if len(p.MenuCalls) != 2 || p.MenuCalls[0].Title != "Town" {
		t.Errorf("menu calls = %+v, want two for Town", p.MenuCalls)
	}
	if len(p.Printed) != 0 {
		t.Errorf("printed %q", p.Printed)
	}
}

func TestStep_IdleMenuOnlyOnRevisit(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{
			{ID: "town", Kind: types.KindTown, Events: []string{"gated"}},
			{ID: "crypt", Kind: types.KindDungeon, Events: []string{"crypt_intro"}},
		},
		Streams: []types.EventStreamDef{
			{ID: "gated", Events: []types.EventDef{
				{Type: "text", Stream: "gated", Text: "Never shown.", Condition: cond(t, "pc.flags.never")},
			}},
			{ID: "crypt_intro", Events: []types.EventDef{{Type: "text", Stream: "crypt_intro", Text: "Cold."}}},
		},
		PC: types.PCTemplate{State: types.StateSections{Flags: map[string]bool{"never": false}}},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{}
	e, _ := newEngine(t, w, p)
	// A pending locale is visited normally even after an idle visit.
	e.locales = []string{"crypt", "town"}

	for i := 0; i < 4; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !reflect.DeepEqual(p.Printed, []string{"Cold."}) || len(p.MenuCalls) != 0 {
		t.Errorf("printed %q, menus %d", p.Printed, len(p.MenuCalls))
	}
}

func TestRun_SaveFromMenu(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta:    types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{{ID: "town", Kind: types.KindTown}},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	var saved []string
	saver := func(p *player.Player) error {
		saved = append(saved, p.Name())
		return nil
	}
	p := &mock.Presenter{Menu: []string{MenuSave}}
	e, _ := newEngine(t, w, p, WithSaver(saver))
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !reflect.DeepEqual(saved, []string{"ayla"}) {
		t.Errorf("saved = %v", saved)
	}
	if len(p.Printed) != 1 || p.Printed[0] != "Game saved." {
		t.Errorf("printed %q", p.Printed)
	}
}

func TestRun_SaveFailureIsReported(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta:    types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{{ID: "town", Kind: types.KindTown}},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	saver := func(*player.Player) error { return errors.New("disk full") }
	p := &mock.Presenter{Menu: []string{MenuSave}}
	e, _ := newEngine(t, w, p, WithSaver(saver))
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(p.Printed) != 1 || !strings.Contains(p.Printed[0], "disk full") {
		t.Errorf("printed %q", p.Printed)
	}
}

func TestStep_StateErrorIsReported(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta:    types.WorldDef{Start: "town"},
		Locales: []types.LocaleDef{{ID: "town", Kind: types.KindTown, Events: []string{"bad"}}},
		Streams: []types.EventStreamDef{
			{ID: "bad", Events: []types.EventDef{
				{Type: "set_flag", Key: "missing"},
				{Type: "text", Text: "unreached"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p := &mock.Presenter{}
	e, _ := newEngine(t, w, p)
	_ = e.Step()
	if err := e.Step(); err != nil {
		t.Fatalf("Step = %v, want the error reported", err)
	}
	if len(p.Printed) != 1 || !strings.HasPrefix(p.Printed[0], "Error: ") || !strings.Contains(p.Printed[0], "pc.flags.missing") {
		t.Errorf("printed %q", p.Printed)
	}
}

func TestStep_UnknownStreamIsReported(t *testing.T) {
	w := loopWorld(t)
	p := &mock.Presenter{}
	e, _ := newEngine(t, w, p)
	e.streams = append(e.streams, "ghost")
	if err := e.Step(); err != nil {
		t.Fatalf("Step = %v", err)
	}
	if len(p.Printed) != 1 || !strings.Contains(p.Printed[0], "ghost") {
		t.Errorf("printed %q", p.Printed)
	}
}

func TestSchedule_IncorrectDirective(t *testing.T) {
	e, _ := newEngine(t, loopWorld(t), &mock.Presenter{})
	err := e.schedule("main", []types.Directive{{Type: "fight", ID: "rat"}})
	var ie *IncorrectObjectTypeError
	if !errors.As(err, &ie) || ie.Stream != "main" || ie.Value != "fight" {
		t.Errorf("error = %v, want IncorrectObjectTypeError", err)
	}
}

func TestSchedule_FirstDirectiveOnTop(t *testing.T) {
	e, _ := newEngine(t, loopWorld(t), &mock.Presenter{})
	e.locales = nil
	err := e.schedule("npc", []types.Directive{
		{Type: types.DirectiveEventStream, ID: "a"},
		{Type: types.DirectiveEventStream, ID: "b"},
		{Type: types.DirectiveLocale, ID: "start"},
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	locales, streams := e.Pending()
	if !reflect.DeepEqual(streams, []string{"b", "a"}) {
		t.Errorf("streams = %v, want a on top", streams)
	}
	if !reflect.DeepEqual(locales, []string{"start"}) {
		t.Errorf("locales = %v", locales)
	}
}

func TestNew_ResumesSavedLocale(t *testing.T) {
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Start: "a"},
		Locales: []types.LocaleDef{
			{ID: "a", Kind: types.KindTown},
			{ID: "b", Kind: types.KindDungeon},
		},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	pl, err := player.Restore("ayla", w.ID(), w.StateTemplate(), map[string]any{player.MetaCurrentLocale: "b"})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	e := New(w, pl, &mock.Presenter{})
	locales, _ := e.Pending()
	if !reflect.DeepEqual(locales, []string{"b"}) {
		t.Errorf("locales = %v, want [b]", locales)
	}

	fresh, _ := player.Restore("bo", w.ID(), w.StateTemplate(), nil)
	New(w, fresh, &mock.Presenter{})
	if fresh.CurrentLocale() != "a" {
		t.Errorf("fresh current locale = %q, want a", fresh.CurrentLocale())
	}
}
