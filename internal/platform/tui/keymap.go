package tui

import "github.com/charmbracelet/bubbles/key"

// ConsoleKeyMap defines the key bindings for the operator console.
type ConsoleKeyMap struct {
	Pause    key.Binding
	Resume   key.Binding
	Reset    key.Binding
	Stop     key.Binding
	Snapshot key.Binding
	Frame    key.Binding
	Up       key.Binding
	Down     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k ConsoleKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Resume, k.Reset, k.Stop, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k ConsoleKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Resume, k.Reset, k.Stop},
		{k.Snapshot, k.Frame, k.Up, k.Down},
		{k.Help, k.Quit},
	}
}

// DefaultConsoleKeyMap returns default key bindings.
func DefaultConsoleKeyMap() ConsoleKeyMap {
	return ConsoleKeyMap{
		Pause: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p", "pause"),
		),
		Resume: key.NewBinding(
			key.WithKeys("r", "enter"),
			key.WithHelp("r", "resume"),
		),
		Reset: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "reset episode"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop agent"),
		),
		Snapshot: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "save frame"),
		),
		Frame: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "toggle frame"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
