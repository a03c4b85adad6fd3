// Package tui provides the operator console for a running agent.
// The same Bubble Tea model is served on the local terminal and over SSH.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RefreshMsg is sent to pull a fresh status snapshot from the agent.
type RefreshMsg time.Time

// refreshCmd returns a Bubble Tea command that sends refresh messages at the specified rate.
func refreshCmd(rate int) tea.Cmd {
	if rate <= 0 {
		rate = defaultRefreshRate
	}
	interval := time.Second / time.Duration(rate)
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return RefreshMsg(t)
	})
}
