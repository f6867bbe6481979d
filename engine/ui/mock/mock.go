// Package mock provides a scripted implementation of [ui.Presenter] for use
// in unit tests.
//
// Answers are consumed in order from the per-method queues. When a queue is
// empty the call returns [ui.ErrExit], which makes a play loop under test
// terminate the way a player backing out would.
//
// Example:
//
//	p := &mock.Presenter{Menu: []string{"Open the door"}}
//	choice, err := p.MenuChoice([]string{"Open the door", "Leave"}, "")
package mock

import (
	"fmt"
	"slices"

	"github.com/nathoo/chronicle/engine/ui"
)

// MenuCall records the arguments of a single [Presenter.MenuChoice] invocation.
type MenuCall struct {
	Options []string
	Title   string
}

// Presenter is a scripted [ui.Presenter].
type Presenter struct {
	// Menu answers MenuChoice calls. An answer that is not one of the offered
	// options is an error.
	Menu []string

	// Booleans answers BooleanChoice calls.
	Booleans []bool

	// Quantities answers GetQuantity calls.
	Quantities []float64

	// Lines answers GetLine calls.
	Lines []string

	// PrintError is returned by every Print call when set.
	PrintError error

	// Printed records every Print argument.
	Printed []string

	// MenuCalls records all MenuChoice invocations.
	MenuCalls []MenuCall

	// QuantityCalls records all GetQuantity invocations.
	QuantityCalls []ui.QuantityRequest

	// Prompts records the prompts of BooleanChoice and GetLine calls.
	Prompts []string

	// Located records every EnterLocale argument.
	Located []string
}

var (
	_ ui.Presenter = (*Presenter)(nil)
	_ ui.Locator   = (*Presenter)(nil)
)

// EnterLocale implements [ui.Locator].
func (p *Presenter) EnterLocale(name string) {
	p.Located = append(p.Located, name)
}

// Print implements [ui.Presenter].
func (p *Presenter) Print(text string) error {
	p.Printed = append(p.Printed, text)
	return p.PrintError
}

// MenuChoice implements [ui.Presenter].
func (p *Presenter) MenuChoice(options []string, title string) (string, error) {
	p.MenuCalls = append(p.MenuCalls, MenuCall{Options: slices.Clone(options), Title: title})
	if len(p.Menu) == 0 {
		return "", ui.ErrExit
	}
	answer := p.Menu[0]
	p.Menu = p.Menu[1:]
	if !slices.Contains(options, answer) {
		return "", fmt.Errorf("mock: scripted answer %q is not among options %v", answer, options)
	}
	return answer, nil
}

// BooleanChoice implements [ui.Presenter].
func (p *Presenter) BooleanChoice(prompt string) (bool, error) {
	p.Prompts = append(p.Prompts, prompt)
	if len(p.Booleans) == 0 {
		return false, ui.ErrExit
	}
	answer := p.Booleans[0]
	p.Booleans = p.Booleans[1:]
	return answer, nil
}

// GetQuantity implements [ui.Presenter].
func (p *Presenter) GetQuantity(req ui.QuantityRequest) (float64, error) {
	p.QuantityCalls = append(p.QuantityCalls, req)
	if len(p.Quantities) == 0 {
		return 0, ui.ErrExit
	}
	answer := p.Quantities[0]
	p.Quantities = p.Quantities[1:]
	return answer, nil
}

// GetLine implements [ui.Presenter].
func (p *Presenter) GetLine(prompt string) (string, error) {
	p.Prompts = append(p.Prompts, prompt)
	if len(p.Lines) == 0 {
		return "", ui.ErrExit
	}
	answer := p.Lines[0]
	p.Lines = p.Lines[1:]
	return answer, nil
}
