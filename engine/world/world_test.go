package world

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nathoo/chronicle/types"
)

func testContents() Contents {
	return Contents{
		Meta: types.WorldDef{Name: "Test World", Start: "harbor"},
		PC: types.PCTemplate{
			State: types.StateSections{
				Flags:    map[string]bool{"brave": false},
				Counters: map[string]int{"gold": 5},
			},
		},
		Locales: []types.LocaleDef{
			{
				ID: "harbor", Name: "Harbor", Kind: types.KindTown,
				State:  types.StateSections{Flags: map[string]bool{"foggy": true}},
				Events: []string{"harbor_intro"},
			},
			{ID: "crypt", Name: "Crypt", Kind: types.KindDungeon},
		},
		Entities: []types.EntityDef{
			{
				ID: "mayor", Name: "Mayor", Kind: types.KindNPC,
				Events: []string{"mayor_talk"}, EncounterEvent: "mayor_talk",
			},
			{
				ID: "ghoul", Name: "Ghoul", Kind: types.KindMonster,
				EncounterEvent: "ghoul_fight", VictoryEvent: "ghoul_win", DefeatEvent: "ghoul_lose",
			},
		},
		Streams: []types.EventStreamDef{
			{ID: "harbor_intro", Events: []types.EventDef{{Type: "text", Text: "Gulls cry."}}},
			{ID: "mayor_talk"},
			{ID: "ghoul_fight"},
			{ID: "ghoul_win"},
			{ID: "ghoul_lose"},
		},
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(testContents())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return w
}

func dig(t *testing.T, tree map[string]any, path ...string) any {
	t.Helper()
	var cur any = tree
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("path %v: %q is not under a mapping", path, p)
		}
		cur, ok = m[p]
		if !ok {
			t.Fatalf("path %v: missing %q", path, p)
		}
	}
	return cur
}

func TestStateTemplate_Shape(t *testing.T) {
	w := newTestWorld(t)
	tmpl := w.StateTemplate()

	if got := dig(t, tmpl, "pc", "flags", "brave"); got != false {
		t.Errorf("pc.flags.brave = %v", got)
	}
	if got := dig(t, tmpl, "pc", "counters", "gold"); got != 5 {
		t.Errorf("pc.counters.gold = %v", got)
	}
	if got := dig(t, tmpl, "world", "town", "harbor", "flags", "foggy"); got != true {
		t.Errorf("harbor foggy = %v", got)
	}
	if got := dig(t, tmpl, "world", "town", "harbor", "events"); !reflect.DeepEqual(got, []string{"harbor_intro"}) {
		t.Errorf("harbor events = %v", got)
	}
	if got := dig(t, tmpl, "world", "dungeon", "crypt", "events"); !reflect.DeepEqual(got, []string{}) {
		t.Errorf("crypt events = %#v, want empty list", got)
	}
	if got := dig(t, tmpl, "world", "npc", "mayor", "encounter_event"); got != "mayor_talk" {
		t.Errorf("mayor encounter_event = %v", got)
	}
	if got := dig(t, tmpl, "world", "monster", "ghoul", "victory_event"); got != "ghoul_win" {
		t.Errorf("ghoul victory_event = %v", got)
	}
	if got := dig(t, tmpl, "game"); len(got.(map[string]any)) != 4 {
		t.Errorf("game scope = %v, want four empty sections", got)
	}
}

func TestStateTemplate_FreshCopy(t *testing.T) {
	w := newTestWorld(t)
	a := w.StateTemplate()
	dig(t, a, "pc", "flags").(map[string]any)["brave"] = true
	dig(t, a, "world", "town", "harbor").(map[string]any)["events"].([]string)[0] = "tampered"

	b := w.StateTemplate()
	if dig(t, b, "pc", "flags", "brave") != false {
		t.Error("template mutated through a previous copy")
	}
	if dig(t, b, "world", "town", "harbor", "events").([]string)[0] != "harbor_intro" {
		t.Error("template events mutated through a previous copy")
	}
}

func TestID_StableAndContentSensitive(t *testing.T) {
	a := newTestWorld(t)
	b := newTestWorld(t)
	if a.ID() != b.ID() {
		t.Errorf("same contents produced different ids: %s vs %s", a.ID(), b.ID())
	}
	if len(a.ID()) != 64 {
		t.Errorf("id %q is not a sha256 hex digest", a.ID())
	}

	c := testContents()
	c.PC.State.Counters["gold"] = 6
	w, err := New(c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if w.ID() == a.ID() {
		t.Error("different template produced the same id")
	}
}

func TestLookups(t *testing.T) {
	w := newTestWorld(t)

	if l, err := w.Locale("harbor"); err != nil || l.Name != "Harbor" {
		t.Errorf("Locale(harbor) = %+v, %v", l, err)
	}
	if e, err := w.Entity("ghoul"); err != nil || e.Kind != types.KindMonster {
		t.Errorf("Entity(ghoul) = %+v, %v", e, err)
	}
	if s, err := w.EventStream("harbor_intro"); err != nil || len(s.Events) != 1 {
		t.Errorf("EventStream(harbor_intro) = %+v, %v", s, err)
	}

	tests := []struct {
		kind string
		call func() error
	}{
		{RegistryLocale, func() error { _, err := w.Locale("nowhere"); return err }},
		{RegistryEntity, func() error { _, err := w.Entity("nobody"); return err }},
		{RegistryEventStream, func() error { _, err := w.EventStream("nothing"); return err }},
	}
	for _, tt := range tests {
		var nf *ObjectNotFoundError
		if err := tt.call(); !errors.As(err, &nf) {
			t.Errorf("%s miss: error = %v, want *ObjectNotFoundError", tt.kind, err)
		} else if nf.Kind != tt.kind {
			t.Errorf("Kind = %q, want %q", nf.Kind, tt.kind)
		}
	}
}

func TestLocale_ReturnsCopy(t *testing.T) {
	w := newTestWorld(t)
	l, _ := w.Locale("harbor")
	l.Events[0] = "tampered"
	l.State.Flags["foggy"] = false

	again, _ := w.Locale("harbor")
	if again.Events[0] != "harbor_intro" || !again.State.Flags["foggy"] {
		t.Error("world locale mutated through a returned copy")
	}
}

func TestEventStream_ReturnsDeepCopy(t *testing.T) {
	c := testContents()
	c.Streams[0].Events = append(c.Streams[0].Events, types.EventDef{
		Type: "prompt",
		Condition: &types.Condition{Kind: "all", Elements: []types.Condition{
			{Kind: "expr", Args: []string{"pc.flags.brave"}},
		}},
		Choices: []types.Choice{{Label: "Go", Branch: "mayor_talk"}},
	})
	w, err := New(c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Streams[0].Events[1].Choices[0].Branch = "from_contents"

	s, _ := w.EventStream("harbor_intro")
	s.Events[1].Choices[0].Branch = "hijacked"
	s.Events[1].Condition.Kind = "any"
	s.Events[1].Condition.Elements[0].Args[0] = "mutated"

	again, _ := w.EventStream("harbor_intro")
	ev := again.Events[1]
	if ev.Choices[0].Branch != "mayor_talk" {
		t.Errorf("choice branch = %q, want mayor_talk", ev.Choices[0].Branch)
	}
	if ev.Condition.Kind != "all" || ev.Condition.Elements[0].Args[0] != "pc.flags.brave" {
		t.Errorf("condition mutated through a returned copy: %+v", ev.Condition)
	}
}

func TestPC_ReturnsDeepCopy(t *testing.T) {
	c := testContents()
	c.PC.Choices = []types.ChoiceDef{{Section: "strings", Key: "origin", Prompt: "From?", Options: []string{"inland", "islands"}}}
	w, err := New(c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pc := w.PC()
	pc.Choices[0].Options[0] = "tampered"
	pc.State.Counters["gold"] = 99

	again := w.PC()
	if again.Choices[0].Options[0] != "inland" || again.State.Counters["gold"] != 5 {
		t.Errorf("pc template mutated through a returned copy: %+v", again)
	}
}

func TestNew_DuplicateID(t *testing.T) {
	c := testContents()
	c.Entities = append(c.Entities, types.EntityDef{ID: "mayor", Kind: types.KindNPC})
	if _, err := New(c); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestInitialLocale(t *testing.T) {
	w := newTestWorld(t)
	if got := w.InitialLocale(); got != "harbor" {
		t.Errorf("InitialLocale = %q, want harbor", got)
	}

	c := testContents()
	c.PC.State.Strings = map[string]string{"initial_locale": "crypt"}
	w2, _ := New(c)
	if got := w2.InitialLocale(); got != "crypt" {
		t.Errorf("InitialLocale = %q, want crypt", got)
	}
}

func TestPaths(t *testing.T) {
	w := newTestWorld(t)
	l, _ := w.Locale("crypt")
	if got := LocalePath(l); got != "world.dungeon.crypt" {
		t.Errorf("LocalePath = %q", got)
	}
	e, _ := w.Entity("mayor")
	if got := EntityPath(e); got != "world.npc.mayor" {
		t.Errorf("EntityPath = %q", got)
	}
	if ids := w.LocaleIDs(); !reflect.DeepEqual(ids, []string{"crypt", "harbor"}) {
		t.Errorf("LocaleIDs = %v", ids)
	}
}
