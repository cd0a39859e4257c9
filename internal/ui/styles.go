package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color definitions
var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#2B5F3A"}
	accent    = lipgloss.AdaptiveColor{Light: "#1D9BF0", Dark: "#1D9BF0"}
	warning   = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"}
	dim       = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
)

// Style definitions
var (
	// Headers
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			Padding(0, 1)

	// Text styles
	SystemStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Width(12)

	FocusedStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	BlurredStyle = lipgloss.NewStyle().
			Foreground(dim)

	HelpStyle = lipgloss.NewStyle().
			Foreground(dim).
			Italic(true)

	// UI components
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1)

	ButtonStyle = lipgloss.NewStyle().
			Foreground(dim).
			Padding(0, 2)

	ActiveButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(highlight).
				Padding(0, 2)

	CancelButtonStyle = ActiveButtonStyle.Copy().
				Background(warning)
)

// FormatSystemMessage formats a system message
func FormatSystemMessage(message string) string {
	return SystemStyle.Render("[System] " + message)
}

// CreateColoredBox creates a colored box with a title and content
func CreateColoredBox(title, content string, width int) string {
	box := BoxStyle.Copy().Width(width)
	return box.Render(
		HeaderStyle.Render(title) + "\n\n" +
			content,
	)
}

// FormatButton renders a button label, highlighted when focused
func FormatButton(label string, focused bool, style lipgloss.Style) string {
	if focused {
		return style.Render(label)
	}
	return ButtonStyle.Render(label)
}

// FormatCheckbox renders a labelled checkbox
func FormatCheckbox(label string, checked, focused bool) string {
	box := "[ ] "
	if checked {
		box = "[x] "
	}
	if focused {
		return FocusedStyle.Render(box + label)
	}
	return box + label
}
