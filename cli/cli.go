// Package cli is a line-oriented Presenter for plain terminals, pipes and
// script playback.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nathoo/chronicle/engine/ui"
)

// CLI reads answers from In and writes everything else to Out.
type CLI struct {
	In        io.Reader
	Out       io.Writer
	EchoInput bool // echo each input line after the prompt (for script playback)

	scanner *bufio.Scanner
}

var _ ui.Presenter = (*CLI)(nil)

// New creates a CLI on stdin and stdout.
func New() *CLI {
	return &CLI{In: os.Stdin, Out: os.Stdout}
}

// Print writes one block of narrative followed by a blank line.
func (c *CLI) Print(text string) error {
	_, err := fmt.Fprintf(c.Out, "%s\n\n", text)
	return err
}

// MenuChoice lists options numbered from 1 and accepts either a number or
// the option text.
func (c *CLI) MenuChoice(options []string, title string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("cli: menu has no options")
	}
	for {
		if title != "" {
			if err := c.printLine(title); err != nil {
				return "", err
			}
		}
		for i, opt := range options {
			if _, err := fmt.Fprintf(c.Out, "  %d) %s\n", i+1, opt); err != nil {
				return "", err
			}
		}
		input, err := c.readLine("> ", true)
		if err != nil {
			return "", err
		}
		if input == "" {
			continue
		}
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		for _, opt := range options {
			if strings.EqualFold(opt, input) {
				return opt, nil
			}
		}
		if err := c.printSystem(fmt.Sprintf("Please choose a number between 1 and %d.", len(options))); err != nil {
			return "", err
		}
	}
}

// BooleanChoice asks a yes/no question.
func (c *CLI) BooleanChoice(prompt string) (bool, error) {
	for {
		input, err := c.readLine(prompt+" (y/n) ", true)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if err := c.printSystem("Please answer yes or no."); err != nil {
			return false, err
		}
	}
}

// GetQuantity asks for a number until the answer satisfies req.
func (c *CLI) GetQuantity(req ui.QuantityRequest) (float64, error) {
	for {
		input, err := c.readLine(fmt.Sprintf("%s [%s-%s] ", req.Prompt, ui.FormatBound(req.Min, req.IsFloat), ui.FormatBound(req.Max, req.IsFloat)), true)
		if err != nil {
			return 0, err
		}
		v, msg := ui.ParseQuantity(input, req)
		if msg == "" {
			return v, nil
		}
		if err := c.printSystem(msg); err != nil {
			return 0, err
		}
	}
}

// GetLine reads one line of free text. Unlike the menus, "q" is an answer
// here; only /quit exits.
func (c *CLI) GetLine(prompt string) (string, error) {
	return c.readLine(prompt+" ", false)
}

// readLine prompts and reads the next input line. Comment lines are skipped.
// End of input and /quit request an exit; so does "q" when quitKey is set.
func (c *CLI) readLine(prompt string, quitKey bool) (string, error) {
	if c.scanner == nil {
		c.scanner = bufio.NewScanner(c.In)
	}
	for {
		if _, err := fmt.Fprint(c.Out, prompt); err != nil {
			return "", err
		}
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return "", fmt.Errorf("cli: reading input: %w", err)
			}
			return "", ui.ErrExit
		}
		input := strings.TrimSpace(c.scanner.Text())
		// Skip comment lines (for script files).
		if strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			if err := c.printLine(input); err != nil {
				return "", err
			}
		}

		switch {
		case input == "/quit" || input == "/exit" || (quitKey && strings.EqualFold(input, "q")):
			if err := c.printSystem("Goodbye."); err != nil {
				return "", err
			}
			return "", ui.ErrExit
		case input == "/help":
			if err := c.help(); err != nil {
				return "", err
			}
			continue
		}
		return input, nil
	}
}

func (c *CLI) help() error {
	help := []string{
		"  <number>  Pick a menu entry (or type its text)",
		"  q, /quit  Leave the game",
		"  /help     Show this help",
	}
	for _, line := range help {
		if err := c.printLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLI) printLine(text string) error {
	_, err := fmt.Fprintln(c.Out, text)
	return err
}

func (c *CLI) printSystem(text string) error {
	_, err := fmt.Fprintf(c.Out, "[%s]\n", text)
	return err
}
