package save

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nathoo/chronicle/engine/player"
	"github.com/nathoo/chronicle/engine/ui/mock"
	"github.com/nathoo/chronicle/engine/world"
	"github.com/nathoo/chronicle/types"
)

func testPlayer(t *testing.T) *player.Player {
	t.Helper()
	w, err := world.New(world.Contents{
		Meta: types.WorldDef{Name: "Harbour", Start: "square"},
		PC: types.PCTemplate{State: types.StateSections{
			Flags:    map[string]bool{"noble": false},
			Counters: map[string]int{"gold": 5},
			Numbers:  map[string]float64{"height": 2, "weight": 71.25},
			Strings:  map[string]string{"title": "", "motto": "42"},
		}},
		Locales: []types.LocaleDef{
			{ID: "square", Kind: types.KindTown, Events: []string{"intro"}},
			{ID: "cellar", Kind: types.KindDungeon},
		},
		Entities: []types.EntityDef{
			{ID: "rat", Kind: types.KindMonster, EncounterEvent: "intro"},
		},
		Streams: []types.EventStreamDef{{ID: "intro"}},
	})
	if err != nil {
		t.Fatalf("world.New failed: %v", err)
	}
	p, err := player.New("ayla", w, &mock.Presenter{})
	if err != nil {
		t.Fatalf("player.New failed: %v", err)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	p := testPlayer(t)
	for path, v := range map[string]any{
		"pc.flags.noble":           true,
		"pc.counters.gold":         12,
		"pc.strings.title":         "true",
		"world.town.square.events": []string{},
	} {
		if err := p.State().Set(path, v); err != nil {
			t.Fatalf("Set(%q) failed: %v", path, err)
		}
	}
	p.SetCurrentLocale("cellar")

	path, err := Save(filepath.Join(t.TempDir(), "ayla"), p)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Ext(path) != Ext {
		t.Errorf("saved to %q, want %s extension", path, Ext)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Name() != p.Name() || got.WorldID() != p.WorldID() {
		t.Errorf("identity = %q/%q, want %q/%q", got.Name(), got.WorldID(), p.Name(), p.WorldID())
	}
	if !reflect.DeepEqual(got.State().Tree(), p.State().Tree()) {
		t.Errorf("state tree differs after round trip:\ngot  %v\nwant %v", got.State().Tree(), p.State().Tree())
	}
	if got.CurrentLocale() != "cellar" {
		t.Errorf("current locale = %q, want cellar", got.CurrentLocale())
	}
}

func TestRoundTrip_WholeFloatStaysNumber(t *testing.T) {
	p := testPlayer(t)
	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v, err := got.State().Get("pc.numbers.height")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := v.(float64); !ok {
		t.Errorf("height decoded as %T, want float64", v)
	}
	if err := got.State().Set("pc.numbers.height", 1.5); err != nil {
		t.Errorf("Set after decode failed: %v", err)
	}
}

func TestSave_KeepsExtension(t *testing.T) {
	p := testPlayer(t)
	dir := t.TempDir()
	path, err := Save(filepath.Join(dir, "ayla"+Ext), p)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if path != filepath.Join(dir, "ayla.csf") {
		t.Errorf("path = %q", path)
	}
}

func TestWithExt(t *testing.T) {
	tests := map[string]string{
		"ayla":          "ayla.csf",
		"ayla.csf":      "ayla.csf",
		"saves/bo.yaml": "saves/bo.yaml.csf",
	}
	for in, want := range tests {
		if got := WithExt(in); got != want {
			t.Errorf("WithExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nobody"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want fs.ErrNotExist", err)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":      "name: [unterminated",
		"missing state": "name: ayla\nworld_id: abc\n",
		"bad scopes":    "name: ayla\nstate:\n  pc: {}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOpenIndex_CreatesEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "saves")
	ix, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	if len(ix.Names()) != 0 {
		t.Errorf("names = %v, want none", ix.Names())
	}
	if _, err := os.Stat(filepath.Join(dir, IndexFile)); err != nil {
		t.Errorf("index file not created: %v", err)
	}
}

func TestIndex_AddAndReopen(t *testing.T) {
	dir := t.TempDir()
	ix, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	path, err := ix.Add("ayla")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if path != filepath.Join(dir, "ayla.csf") {
		t.Errorf("path = %q", path)
	}

	reopened, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if !reflect.DeepEqual(reopened.Names(), []string{"ayla"}) {
		t.Errorf("names = %v", reopened.Names())
	}
	if got, ok := reopened.Lookup("ayla"); !ok || got != path {
		t.Errorf("Lookup = %q, %v", got, ok)
	}
	if _, ok := reopened.Lookup("bo"); ok {
		t.Error("Lookup found an unknown name")
	}
}

func TestIndex_PathDoesNotRegister(t *testing.T) {
	dir := t.TempDir()
	ix, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	if got := ix.Path("bo"); got != filepath.Join(dir, "bo.csf") {
		t.Errorf("Path = %q", got)
	}
	if _, ok := ix.Lookup("bo"); ok {
		t.Error("Path registered the name")
	}
	if err := ix.Check("bo"); err != nil {
		t.Errorf("Check after Path = %v", err)
	}
}

func TestIndex_RejectsNames(t *testing.T) {
	ix, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	if _, err := ix.Add("ayla"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	tests := []struct {
		name string
		want error
	}{
		{"", ErrEmptyName},
		{"   ", ErrEmptyName},
		{"ayla", ErrDuplicateName},
		{"../escape", ErrInvalidName},
	}
	for _, tt := range tests {
		if _, err := ix.Add(tt.name); !errors.Is(err, tt.want) {
			t.Errorf("Add(%q) = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestOpenIndex_Corrupted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexFile), []byte("- not\n- a mapping\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenIndex(dir)
	var ie *IndexError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want *IndexError", err)
	}
	if ie.Path != filepath.Join(dir, IndexFile) {
		t.Errorf("IndexError.Path = %q", ie.Path)
	}
}

func TestOpenIndex_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ix, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	if _, err := ix.Add("bo"); err != nil {
		t.Errorf("Add on an empty index failed: %v", err)
	}
}
