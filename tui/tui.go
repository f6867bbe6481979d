package tui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/chronicle/engine/ui"
)

const defaultWidth = 80

// keyMap holds the bindings shared by the question models.
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Quit   key.Binding
	Cancel key.Binding
	Older  key.Binding
	Newer  key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k")),
	Down:   key.NewBinding(key.WithKeys("down", "j")),
	Choose: key.NewBinding(key.WithKeys("enter")),
	Quit:   key.NewBinding(key.WithKeys("q")),
	Cancel: key.NewBinding(key.WithKeys("ctrl+c", "esc")),
	Older:  key.NewBinding(key.WithKeys("up")),
	Newer:  key.NewBinding(key.WithKeys("down")),
}

// TUI is a Presenter drawing with Bubble Tea and Lip Gloss.
type TUI struct {
	In     io.Reader
	Out    io.Writer
	World  string // shown in the status bar
	Player string // shown in the status bar

	locale  string
	width   int
	history *History

	// run executes one question; tests replace it to drive models directly.
	run func(tea.Model) (tea.Model, error)
}

var (
	_ ui.Presenter = (*TUI)(nil)
	_ ui.Locator   = (*TUI)(nil)
)

// New creates a TUI on stdin and stdout.
func New(worldName string) *TUI {
	t := &TUI{In: os.Stdin, Out: os.Stdout, World: worldName, width: defaultWidth, history: NewHistory(100)}
	t.run = t.runProgram
	return t
}

func (t *TUI) runProgram(m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithInput(t.In), tea.WithOutput(t.Out))
	return p.Run()
}

// EnterLocale implements [ui.Locator].
func (t *TUI) EnterLocale(name string) { t.locale = name }

func (t *TUI) status() status {
	return status{world: t.World, locale: t.locale, player: t.Player}
}

// Print writes styled, wrapped narrative to the scrollback.
func (t *TUI) Print(text string) error {
	var b strings.Builder
	for _, line := range strings.Split(wordWrap(text, t.width), "\n") {
		b.WriteString(renderLine(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(t.Out, b.String())
	return err
}

// MenuChoice shows a cursor menu. Digits pick an entry directly.
func (t *TUI) MenuChoice(options []string, title string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("tui: menu has no options")
	}
	final, err := t.ask(newMenuModel(title, options, t.status(), t.width))
	if err != nil {
		return "", err
	}
	m := final.(menuModel)
	t.width = m.width
	if m.quit {
		return "", ui.ErrExit
	}
	choice := options[m.cursor]
	return choice, t.echo(choice)
}

// BooleanChoice is a Yes/No menu.
func (t *TUI) BooleanChoice(prompt string) (bool, error) {
	choice, err := t.MenuChoice([]string{"Yes", "No"}, prompt)
	return choice == "Yes", err
}

// GetQuantity reads a number, re-asking with ui.ParseQuantity's message
// until it is acceptable.
func (t *TUI) GetQuantity(req ui.QuantityRequest) (float64, error) {
	prompt := fmt.Sprintf("%s [%s-%s]", req.Prompt, ui.FormatBound(req.Min, req.IsFloat), ui.FormatBound(req.Max, req.IsFloat))
	check := func(s string) string {
		_, msg := ui.ParseQuantity(s, req)
		return msg
	}
	answer, err := t.line(prompt, check, nil)
	if err != nil {
		return 0, err
	}
	v, _ := ui.ParseQuantity(answer, req)
	return v, nil
}

// GetLine reads free text. Earlier answers are available with up and down.
func (t *TUI) GetLine(prompt string) (string, error) {
	return t.line(prompt, nil, t.history)
}

func (t *TUI) line(prompt string, check func(string) string, h *History) (string, error) {
	final, err := t.ask(newInputModel(prompt, check, h, t.status(), t.width))
	if err != nil {
		return "", err
	}
	m := final.(inputModel)
	t.width = m.width
	if m.quit {
		return "", ui.ErrExit
	}
	return m.value, t.echo(m.value)
}

func (t *TUI) ask(m tea.Model) (tea.Model, error) {
	final, err := t.run(m)
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}
	return final, nil
}

func (t *TUI) echo(answer string) error {
	_, err := fmt.Fprintln(t.Out, styledPlayerInput(answer))
	return err
}

// menuModel is a single menu question.
type menuModel struct {
	title   string
	options []string
	cursor  int
	quit    bool
	status  status
	width   int
}

func newMenuModel(title string, options []string, st status, width int) menuModel {
	return menuModel{title: title, options: options, status: st, width: width}
}

func (m menuModel) Init() tea.Cmd { return nil }

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Cancel), key.Matches(msg, keys.Quit):
			m.quit = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Choose):
			return m, tea.Quit
		default:
			if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(m.options) {
				m.cursor = n - 1
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m menuModel) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(styleTitle.Render(wordWrap(m.title, m.width)))
		b.WriteString("\n")
	}
	for i, opt := range m.options {
		if i == m.cursor {
			b.WriteString(styleCursor.Render(fmt.Sprintf("> %d) %s", i+1, opt)))
		} else {
			b.WriteString(fmt.Sprintf("  %d) %s", i+1, opt))
		}
		b.WriteString("\n")
	}
	b.WriteString(styleHelp.Render("↑/↓ move • enter choose • q quit"))
	b.WriteString("\n")
	b.WriteString(m.status.render(m.width))
	return b.String()
}

// inputModel is a single free-text question. check, when set, returns a
// message for an unacceptable answer.
type inputModel struct {
	prompt  string
	input   textinput.Model
	check   func(string) string
	history *History
	message string
	value   string
	quit    bool
	status  status
	width   int
}

func newInputModel(prompt string, check func(string) string, h *History, st status, width int) inputModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.CharLimit = 256
	ti.Focus()
	return inputModel{prompt: prompt, input: ti, check: check, history: h, status: st, width: width}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Cancel):
			m.quit = true
			return m, tea.Quit

		case key.Matches(msg, keys.Choose):
			answer := strings.TrimSpace(m.input.Value())
			if m.check != nil {
				if problem := m.check(answer); problem != "" {
					m.message = problem
					m.input.SetValue("")
					return m, nil
				}
			}
			m.value = answer
			if m.history != nil {
				m.history.Push(answer)
			}
			return m, tea.Quit

		case m.history != nil && key.Matches(msg, keys.Older):
			if prev, ok := m.history.Prev(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case m.history != nil && key.Matches(msg, keys.Newer):
			if next, ok := m.history.Next(); ok {
				m.input.SetValue(next)
				m.input.CursorEnd()
			} else {
				m.input.SetValue("")
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(wordWrap(m.prompt, m.width)))
	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(styleError.Render(m.message))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.status.render(m.width))
	return b.String()
}
