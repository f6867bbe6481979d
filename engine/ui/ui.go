// Package ui defines the presentation interface the engine drives. The
// engine never reads a terminal itself; cli and tui provide implementations.
package ui

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrExit is returned by a Presenter when the player backs out of the game.
// It is a cooperative termination request, not a failure.
var ErrExit = errors.New("exit requested")

// Presenter is the synchronous request/response surface of the player's
// terminal. Every call blocks until the player answers.
type Presenter interface {
	Print(text string) error
	MenuChoice(options []string, title string) (string, error)
	BooleanChoice(prompt string) (bool, error)
	GetQuantity(req QuantityRequest) (float64, error)
	GetLine(prompt string) (string, error)
}

// Locator is implemented by presenters that show where the player is. The
// engine calls EnterLocale on every locale visit.
type Locator interface {
	EnterLocale(name string)
}

// QuantityRequest describes a bounded numeric prompt.
type QuantityRequest struct {
	Min       float64
	Max       float64
	IsFloat   bool
	AutoRound bool // clamp out-of-range answers instead of re-prompting
	Prompt    string
}

// ParseQuantity validates one line of input against req. When the answer is
// acceptable it returns the value; otherwise it returns a message to show
// before prompting again.
func ParseQuantity(input string, req QuantityRequest) (float64, string) {
	v, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Sprintf("%q is not a number!", strings.TrimSpace(input))
	}
	if !req.IsFloat {
		v = math.Round(v)
	}
	if v < req.Min || v > req.Max {
		if req.AutoRound {
			return Clamp(v, req.Min, req.Max), ""
		}
		return 0, fmt.Sprintf("Please enter a value between %s and %s.",
			FormatBound(req.Min, req.IsFloat), FormatBound(req.Max, req.IsFloat))
	}
	return v, ""
}

// Clamp limits v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// FormatBound renders a quantity bound, as an integer unless isFloat.
func FormatBound(v float64, isFloat bool) string {
	if isFloat {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.Itoa(int(v))
}
