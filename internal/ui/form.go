package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bscott/ts-tunnel/internal/config"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Focusable form elements, in tab order
const (
	fieldName = iota
	fieldPassword
	fieldMaxClients
	fieldRegister
	buttonStart
	buttonCancel
	fieldCount
)

// maxTypedDigits bounds the max clients edit buffer; anything longer clamps to MaxClients anyway
const maxTypedDigits = 4

// Form is the startup configuration form
type Form struct {
	name       textinput.Model
	password   textinput.Model
	maxClients int
	typed      string // digits typed since the max clients field gained focus
	register   bool
	focus      int

	confirmed bool
	cancelled bool
}

// NewForm creates a form prefilled with initial. After Start the form quits
// and its values stop changing; the caller reads them with Input.
func NewForm(initial config.RawInput) *Form {
	name := textinput.New()
	name.Placeholder = "Unnamed tunnel"
	name.Prompt = ""
	name.SetValue(initial.Name)

	password := textinput.New()
	password.Placeholder = "none"
	password.Prompt = ""
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'
	password.SetValue(initial.Password)

	f := &Form{
		name:       name,
		password:   password,
		maxClients: config.NormalizeMaxClients(initial.MaxClients),
		register:   initial.Register,
	}
	f.setFocus(fieldName)
	return f
}

// Init implements tea.Model
func (f *Form) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (f *Form) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if f.confirmed || f.cancelled {
		return f, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return f, f.updateInputs(msg)
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return f, f.cancel()
	case tea.KeyTab:
		f.setFocus(f.focus + 1)
		return f, nil
	case tea.KeyShiftTab:
		f.setFocus(f.focus - 1)
		return f, nil
	case tea.KeyEnter:
		if f.focus == buttonCancel {
			return f, f.cancel()
		}
		return f, f.submit()
	}

	switch f.focus {
	case fieldMaxClients:
		f.updateMaxClients(key)
		return f, nil
	case fieldRegister:
		switch key.String() {
		case " ", "x":
			f.register = !f.register
		case "up":
			f.setFocus(f.focus - 1)
		case "down":
			f.setFocus(f.focus + 1)
		}
		return f, nil
	case buttonStart, buttonCancel:
		switch key.String() {
		case "left", "up", "h":
			f.setFocus(f.focus - 1)
		case "right", "down", "l":
			f.setFocus(f.focus + 1)
		case " ":
			if f.focus == buttonCancel {
				return f, f.cancel()
			}
			return f, f.submit()
		}
		return f, nil
	}

	switch key.Type {
	case tea.KeyUp:
		f.setFocus(f.focus - 1)
		return f, nil
	case tea.KeyDown:
		f.setFocus(f.focus + 1)
		return f, nil
	}
	return f, f.updateInputs(msg)
}

// updateInputs forwards msg to the focused text input
func (f *Form) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch f.focus {
	case fieldName:
		f.name, cmd = f.name.Update(msg)
	case fieldPassword:
		f.password, cmd = f.password.Update(msg)
	}
	return cmd
}

// updateMaxClients edits the spinner; every change goes through NormalizeMaxClients
func (f *Form) updateMaxClients(key tea.KeyMsg) {
	switch key.String() {
	case "up", "+", "k":
		f.setMaxClients(f.maxClients + 1)
	case "down", "-", "j":
		f.setMaxClients(f.maxClients - 1)
	case "pgup":
		f.setMaxClients(f.maxClients + 10)
	case "pgdown":
		f.setMaxClients(f.maxClients - 10)
	case "home":
		f.setMaxClients(config.MinClients)
	case "end":
		f.setMaxClients(config.MaxClients)
	case "backspace":
		if f.typed != "" {
			f.typed = f.typed[:len(f.typed)-1]
		}
		f.applyTyped()
	default:
		if key.Type != tea.KeyRunes {
			return
		}
		for _, r := range key.Runes {
			if r < '0' || r > '9' {
				return
			}
			if len(f.typed) < maxTypedDigits {
				f.typed += string(r)
			}
		}
		f.applyTyped()
	}
}

func (f *Form) applyTyped() {
	n, _ := strconv.Atoi(f.typed)
	f.maxClients = config.NormalizeMaxClients(n)
}

func (f *Form) setMaxClients(n int) {
	f.typed = ""
	f.maxClients = config.NormalizeMaxClients(n)
}

// setFocus moves focus to i, wrapping around the form
func (f *Form) setFocus(i int) {
	f.focus = (i%fieldCount + fieldCount) % fieldCount
	f.typed = ""

	f.name.Blur()
	f.password.Blur()
	switch f.focus {
	case fieldName:
		f.name.Focus()
	case fieldPassword:
		f.password.Focus()
	}
}

func (f *Form) submit() tea.Cmd {
	f.confirmed = true
	return tea.Quit
}

func (f *Form) cancel() tea.Cmd {
	f.cancelled = true
	return tea.Quit
}

// Input returns the values currently on screen
func (f *Form) Input() config.RawInput {
	return config.RawInput{
		Name:       f.name.Value(),
		Password:   f.password.Value(),
		MaxClients: f.maxClients,
		Register:   f.register,
	}
}

// Confirmed reports whether the operator pressed Start
func (f *Form) Confirmed() bool { return f.confirmed }

// Cancelled reports whether the operator backed out
func (f *Form) Cancelled() bool { return f.cancelled }

// View implements tea.Model
func (f *Form) View() string {
	if f.confirmed || f.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(f.row("Name", f.name.View(), fieldName))
	b.WriteString(f.row("Password", f.password.View(), fieldPassword))
	b.WriteString(f.row("Max clients", f.maxClientsView(), fieldMaxClients))
	b.WriteString("\n")
	b.WriteString(FormatCheckbox("Register to master server", f.register, f.focus == fieldRegister))
	b.WriteString("\n\n")
	b.WriteString(FormatButton("Start", f.focus == buttonStart, ActiveButtonStyle))
	b.WriteString(" ")
	b.WriteString(FormatButton("Cancel", f.focus == buttonCancel, CancelButtonStyle))
	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render("tab: next • enter: start • esc: cancel"))

	return CreateColoredBox("Tunnel Configuration", b.String(), 48) + "\n"
}

func (f *Form) row(label, value string, field int) string {
	l := LabelStyle.Render(label)
	if f.focus == field {
		l = FocusedStyle.Inherit(LabelStyle).Render(label)
	}
	return l + " " + value + "\n"
}

func (f *Form) maxClientsView() string {
	v := fmt.Sprintf("%3d", f.maxClients)
	if f.focus == fieldMaxClients {
		return FocusedStyle.Render("‹ "+v+" ›") + BlurredStyle.Render(fmt.Sprintf("  %d-%d", config.MinClients, config.MaxClients))
	}
	return "  " + v
}
