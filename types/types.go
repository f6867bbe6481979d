// Package types defines the shared data structures for the chronicle engine.
// This package contains only type definitions and no logic.
package types

// LocaleKind tags the variant of a visitable location.
type LocaleKind string

const (
	KindTown    LocaleKind = "town"
	KindDungeon LocaleKind = "dungeon"
)

// EntityKind tags the variant of an interactable actor.
type EntityKind string

const (
	KindNPC     EntityKind = "npc"
	KindMonster EntityKind = "monster"
)

// StateSections holds the four scalar sections every stateful object carries.
type StateSections struct {
	Flags    map[string]bool
	Counters map[string]int
	Numbers  map[string]float64
	Strings  map[string]string
}

// LocaleDef is the immutable definition of a town or dungeon.
type LocaleDef struct {
	ID          string
	Name        string
	Kind        LocaleKind
	Description string
	State       StateSections
	Events      []string // event stream ids registered at new-game time
}

// EntityDef is the immutable definition of an NPC or monster.
type EntityDef struct {
	ID             string
	Name           string
	Kind           EntityKind
	State          StateSections
	Events         []string
	EncounterEvent string
	VictoryEvent   string // monsters only
	DefeatEvent    string // monsters only
}

// Condition is a parsed boolean expression tree.
type Condition struct {
	Kind     string      // "expr", "all", "any"
	Source   string      // original expression text (expr only)
	Op       string      // operator or function name; "" for a bare truthiness test
	Args     []string    // operand tokens (expr only)
	Elements []Condition // sub-conditions (all/any only)
}

// Scope names the state context a mutation targets. A zero Scope is the pc scope.
type Scope struct {
	Kind string // "", "npc", "monster", "dungeon", "town"
	ID   string
}

// Choice is one labeled option of a prompt event.
type Choice struct {
	Label  string
	Branch string // event stream id
	Locale string // locale id, used when Branch is empty
}

// EventDef is a single step in an event stream. Type selects which of the
// remaining fields are meaningful.
type EventDef struct {
	Type      string
	Stream    string // id of the owning event stream
	Index     int    // position within the owning stream
	Condition *Condition

	Text         string   // text
	Title        string   // prompt
	Target       string   // branch, set_encounter_event: event stream id
	TargetLocale string   // branch: locale id
	Choices      []Choice // prompt
	NPC          string   // npc, set_encounter_event
	Entity       Scope    // encounter: npc or monster
	Key          string   // set_*/clear_flag/add_counter: state key within the section
	Value        any      // set_counter, set_number, set_string
	Amount       int      // add_counter
	Scope        Scope    // set_*/clear_flag/add_counter
}

// EventStreamDef is an ordered, conditionally filtered sequence of events.
type EventStreamDef struct {
	ID     string
	Events []EventDef
}

// Directive is a control-flow instruction returned by an event effect.
type Directive struct {
	Type string // "locale" or "eventstream"
	ID   string
}

// Directive types.
const (
	DirectiveLocale      = "locale"
	DirectiveEventStream = "eventstream"
)

// ChoiceDef is a pc state value chosen by the player when a new game starts.
type ChoiceDef struct {
	Section string // "flags", "counters", "numbers", "strings"
	Key     string
	Prompt  string
	Min     float64
	Max     float64
	Options []string // strings only
}

// PCTemplate is the player-character state template and its new-game choices.
type PCTemplate struct {
	State   StateSections
	Choices []ChoiceDef
}

// WorldDef holds world metadata from the world document.
type WorldDef struct {
	Name      string
	Start     string // starting locale id
	Intro     string
	Game      StateSections
	LoadPaths []string
}
