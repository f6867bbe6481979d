// Package session bootstraps a game: it lets the player pick a save from the
// index or name a new game, then loads the save or creates a fresh player.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/nathoo/chronicle/engine/player"
	"github.com/nathoo/chronicle/engine/save"
	"github.com/nathoo/chronicle/engine/ui"
	"github.com/nathoo/chronicle/engine/world"
)

// NewGame is the menu entry that starts a new game.
const NewGame = "< new game >"

// ErrWorldMismatch is returned when a save was made in a different world.
var ErrWorldMismatch = errors.New("save file does not belong to the loaded world")

// Selection is the outcome of the save menu.
type Selection struct {
	Name string
	Path string
	New  bool
}

// Select shows the save menu until the player picks an existing save or
// names a new game. Invalid names are reported and the menu shown again. A
// new name is checked against the index but not added to it.
func Select(ix *save.Index, u ui.Presenter) (Selection, error) {
	menu := append([]string{NewGame}, ix.Names()...)
	for {
		choice, err := u.MenuChoice(menu, "Select a save!")
		if err != nil {
			return Selection{}, err
		}
		if choice != NewGame {
			path, ok := ix.Lookup(choice)
			if !ok {
				return Selection{}, fmt.Errorf("session: %q is not in the save index", choice)
			}
			return Selection{Name: choice, Path: path}, nil
		}

		name, err := u.GetLine("Beginning a new game! What will we call you?")
		if err != nil {
			return Selection{}, err
		}
		if err := ix.Check(name); err != nil {
			if err := u.Print(capitalize(err.Error()) + "!"); err != nil {
				return Selection{}, err
			}
			continue
		}
		if err := u.Print(fmt.Sprintf("Welcome, %s!", name)); err != nil {
			return Selection{}, err
		}
		return Selection{Name: name, Path: ix.Path(name), New: true}, nil
	}
}

// Open loads the selected save. A save file that does not exist yet starts a
// fresh player in w, asking its new-game choices and showing the intro.
func Open(sel Selection, w *world.World, u ui.Presenter) (*player.Player, error) {
	p, err := save.Load(sel.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return create(sel.Name, w, u)
	}
	if err != nil {
		return nil, err
	}
	if p.WorldID() != w.ID() {
		return nil, fmt.Errorf("session: loading %q: %w", sel.Name, ErrWorldMismatch)
	}
	return p, nil
}

// Start runs Select then Open. A new game is added to the index only once
// its player has been created.
func Start(ix *save.Index, w *world.World, u ui.Presenter) (*player.Player, Selection, error) {
	sel, err := Select(ix, u)
	if err != nil {
		return nil, Selection{}, err
	}
	p, err := Open(sel, w, u)
	if err != nil {
		return nil, sel, err
	}
	if sel.New {
		if _, err := ix.Add(sel.Name); err != nil {
			return nil, sel, err
		}
	}
	return p, sel, nil
}

func create(name string, w *world.World, u ui.Presenter) (*player.Player, error) {
	p, err := player.New(name, w, u)
	if err != nil {
		return nil, err
	}
	if intro := w.Meta().Intro; intro != "" {
		if err := u.Print(intro); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
