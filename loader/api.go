package loader

import (
	lua "github.com/yuin/gopher-lua"
)

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerEventHelpers(L)
	registerConditionHelpers(L)
}

func registerConstructors(L *lua.LState, coll *collector) {
	// World { name = "...", start = "...", ... }
	L.SetGlobal("World", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.emit(documentFields("world", "", tbl))
		return 0
	}))

	// PC { state = {...}, choices = {...} }
	L.SetGlobal("PC", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.emit(documentFields("pc", "", tbl))
		return 0
	}))

	// Town "id" { ... } and the rest are curried: Town("id") returns a
	// function that takes the body table.
	for name, kind := range map[string]string{
		"Town":        "town",
		"Dungeon":     "dungeon",
		"NPC":         "npc",
		"Monster":     "monster",
		"EventStream": "event_stream",
	} {
		L.SetGlobal(name, L.NewFunction(func(L *lua.LState) int {
			id := L.CheckString(1)
			L.Push(L.NewFunction(func(L *lua.LState) int {
				tbl := L.CheckTable(1)
				coll.emit(documentFields(kind, id, tbl))
				return 0
			}))
			return 1
		}))
	}
}

// documentFields converts a constructor body into document fields. A body
// that is a plain list is an event stream's events. A body that cannot be
// converted is returned with its error, keeping the type and id.
func documentFields(kind, id string, tbl *lua.LTable) (map[string]any, error) {
	root := "events"
	if tbl.MaxN() == 0 {
		root = ""
	}
	tbl.ForEach(func(k, _ lua.LValue) {
		if k.Type() == lua.LTString {
			root = ""
		}
	})
	var fields map[string]any
	v, err := toGoValue(tbl, root)
	switch v := v.(type) {
	case map[string]any:
		fields = v
	case []any:
		fields = map[string]any{"events": v}
	default:
		fields = map[string]any{}
	}
	fields["type"] = kind
	if id != "" {
		fields["id"] = id
	}
	return fields, err
}

// eventHelper describes a Lua event constructor: the event type it builds
// and the fields its leading positional arguments fill.
type eventHelper struct {
	typ    string
	fields []string
}

var eventHelpers = map[string]eventHelper{
	"Text":              {"text", []string{"text"}},
	"Branch":            {"branch", []string{"event_id"}},
	"GoTo":              {"branch", []string{"locale_id"}},
	"Prompt":            {"prompt", []string{"title"}},
	"Npc":               {"npc", []string{"npc_id"}},
	"Encounter":         {"encounter", nil},
	"SetFlag":           {"set_flag", []string{"flag_id"}},
	"ClearFlag":         {"clear_flag", []string{"flag_id"}},
	"SetCounter":        {"set_counter", []string{"counter_id", "value"}},
	"AddCounter":        {"add_counter", []string{"counter_id", "amount"}},
	"SetNumber":         {"set_number", []string{"number_id", "value"}},
	"SetString":         {"set_string", []string{"string_id", "value"}},
	"SetEncounterEvent": {"set_encounter_event", []string{"npc", "event_id"}},
	"Implode":           {"implode", nil},
	"Retire":            {"retire", nil},
}

// registerEventHelpers registers one constructor per event type. Positional
// scalar arguments fill the helper's fields in order; a trailing table is
// merged in as extra fields, so SetFlag("met", { npc = "ada" }) scopes the
// flag to an NPC.
func registerEventHelpers(L *lua.LState) {
	for name, h := range eventHelpers {
		L.SetGlobal(name, L.NewFunction(func(L *lua.LState) int {
			tbl := L.NewTable()
			tbl.RawSetString("type", lua.LString(h.typ))
			arg := 1
			for _, field := range h.fields {
				v := L.Get(arg)
				if _, isTable := v.(*lua.LTable); isTable || v == lua.LNil {
					break
				}
				tbl.RawSetString(field, v)
				arg++
			}
			if extra, ok := L.Get(arg).(*lua.LTable); ok {
				extra.ForEach(func(k, v lua.LValue) {
					if k.Type() == lua.LTString {
						tbl.RawSet(k, v)
					}
				})
			}
			L.Push(tbl)
			return 1
		}))
	}
}

func registerConditionHelpers(L *lua.LState) {
	// When(condition, event) attaches a condition to an event.
	L.SetGlobal("When", L.NewFunction(func(L *lua.LState) int {
		cond := L.CheckAny(1)
		ev := L.Get(2)
		var tbl *lua.LTable
		switch e := ev.(type) {
		case *lua.LTable:
			tbl = e
		case lua.LString:
			tbl = L.NewTable()
			tbl.RawSetString("type", lua.LString("text"))
			tbl.RawSetString("text", e)
		default:
			L.ArgError(2, "event expected")
		}
		tbl.RawSetString("condition", cond)
		L.Push(tbl)
		return 1
	}))

	// All { "expr", ... } and Any { "expr", ... }
	for name, key := range map[string]string{"All": "all", "Any": "any"} {
		L.SetGlobal(name, L.NewFunction(func(L *lua.LState) int {
			items := L.CheckTable(1)
			tbl := L.NewTable()
			tbl.RawSetString(key, items)
			L.Push(tbl)
			return 1
		}))
	}
}
