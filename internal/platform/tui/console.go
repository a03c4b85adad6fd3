package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/pixelpilot/internal/buffer"
	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/scheduler"
)

// Console layout constants
const (
	defaultRefreshRate = 4   // status pulls per second
	minWidthForFrame   = 100 // minimum width to show the frame preview
	panelWidth         = 34  // width of the status and counters panels
	maxEpisodeRows     = 100 // episodes shown in the table
)

// Agent is the control surface of a running scheduler.
type Agent interface {
	Status() scheduler.Status
	Pause() error
	Resume() error
	ResetEpisode() error
	Stop()
}

// EpisodeSource exposes finished and open episodes.
type EpisodeSource interface {
	History() []core.Episode
	Current() (core.Episode, bool)
}

// FrameTap keeps the most recent captured frame for the preview.
// Register OnTick as a scheduler tick observer.
type FrameTap struct {
	slot buffer.Slot[core.Frame]
}

// OnTick stores the tick's frame.
func (t *FrameTap) OnTick(res core.TickResult) {
	if !res.Frame.IsZero() {
		t.slot.Store(res.Frame)
	}
}

// Latest returns the last stored frame.
func (t *FrameTap) Latest() (core.Frame, bool) {
	return t.slot.Load()
}

// ConsoleOptions configures a console model.
type ConsoleOptions struct {
	// Title is shown in the header, usually the session id.
	Title string

	// Policy is the running policy id.
	Policy string

	// RefreshRate is the number of status pulls per second.
	RefreshRate int

	// Frames enables the frame preview and snapshots. May be nil.
	Frames *FrameTap

	// Episodes fills the episode table. May be nil.
	Episodes EpisodeSource

	// SnapshotDir is where ctrl+s writes frames.
	// If empty, ~/.pilot/snapshots is used.
	SnapshotDir string

	// QuitStops makes the quit key stop the agent as well as the console.
	// Remote consoles leave it false so disconnecting does not stop the agent.
	QuitStops bool
}

// ConsoleModel is the Bubble Tea model for the operator console.
type ConsoleModel struct {
	agent     Agent
	opts      ConsoleOptions
	status    scheduler.Status
	current   core.Episode
	hasOpen   bool
	episodes  []core.Episode
	table     table.Model
	help      help.Model
	keys      ConsoleKeyMap
	width     int
	height    int
	message   string
	showFrame bool
	quitting  bool
}

// NewConsoleModel creates a console for agent.
func NewConsoleModel(agent Agent, opts ConsoleOptions, width, height int) ConsoleModel {
	h := help.New()
	h.ShowAll = false
	h.Width = width

	m := ConsoleModel{
		agent:     agent,
		opts:      opts,
		keys:      DefaultConsoleKeyMap(),
		help:      h,
		width:     width,
		height:    height,
		showFrame: opts.Frames != nil,
	}
	m.table = m.createTable()
	m.refresh()
	return m
}

// createTable creates the episode table sized to the window.
func (m *ConsoleModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "Episode", Width: 10},
		{Title: "Outcome", Width: 11},
		{Title: "Return", Width: 9},
		{Title: "Steps", Width: 7},
		{Title: "Length", Width: 9},
	}

	height := m.height - 16 // Header, panels, help
	if height < 3 {
		height = 3
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

// refresh pulls status and episodes from the agent.
func (m *ConsoleModel) refresh() {
	m.status = m.agent.Status()
	if m.opts.Episodes == nil {
		return
	}
	m.current, m.hasOpen = m.opts.Episodes.Current()

	history := m.opts.Episodes.History()
	if len(history) > maxEpisodeRows {
		history = history[len(history)-maxEpisodeRows:]
	}
	changed := len(history) != len(m.episodes)
	m.episodes = history
	if changed {
		m.updateTableRows()
	}
}

// updateTableRows fills the table, newest episode first.
func (m *ConsoleModel) updateTableRows() {
	rows := make([]table.Row, 0, len(m.episodes))
	for i := len(m.episodes) - 1; i >= 0; i-- {
		e := m.episodes[i]
		rows = append(rows, table.Row{
			shortID(e.ID),
			e.Outcome,
			fmt.Sprintf("%.2f", e.Return),
			fmt.Sprintf("%d", e.Steps),
			e.Duration(time.Now()).Round(100 * time.Millisecond).String(),
		})
	}
	m.table.SetRows(rows)
}

// Init starts the refresh loop.
func (m ConsoleModel) Init() tea.Cmd {
	return refreshCmd(m.opts.RefreshRate)
}

// Update handles messages for the console.
func (m ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case RefreshMsg:
		m.refresh()
		if m.status.State == scheduler.StateStopped {
			m.quitting = true
			return m, tea.Quit
		}
		return m, refreshCmd(m.opts.RefreshRate)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table = m.createTable()
		m.updateTableRows()
		m.help.Width = msg.Width
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// handleKey processes operator keys.
func (m ConsoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.opts.QuitStops {
			m.agent.Stop()
		}
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Pause):
		m.message = commandMessage("pause requested", m.agent.Pause())

	case key.Matches(msg, m.keys.Resume):
		m.message = commandMessage("resume requested", m.agent.Resume())

	case key.Matches(msg, m.keys.Reset):
		m.message = commandMessage("episode reset requested", m.agent.ResetEpisode())

	case key.Matches(msg, m.keys.Stop):
		m.agent.Stop()
		m.message = "stopping agent..."

	case key.Matches(msg, m.keys.Snapshot):
		path, err := m.saveSnapshot()
		m.message = commandMessage("saved "+path, err)

	case key.Matches(msg, m.keys.Frame):
		if m.opts.Frames != nil {
			m.showFrame = !m.showFrame
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}

	m.refresh()
	return m, nil
}

func commandMessage(ok string, err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return ok
}

// saveSnapshot writes the latest frame as a PNG.
func (m *ConsoleModel) saveSnapshot() (string, error) {
	if m.opts.Frames == nil {
		return "", errors.New("no frame preview attached")
	}
	frame, ok := m.opts.Frames.Latest()
	if !ok {
		return "", errors.New("no frame captured yet")
	}
	img := frame.Image()
	if img == nil {
		return "", fmt.Errorf("frame %d is not RGBA", frame.Seq)
	}

	dir := m.opts.SnapshotDir
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".pilot", "snapshots")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create snapshot directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("frame_%06d_%s.png", frame.Seq, timestamp))
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return "", err
	}
	return path, nil
}

// View renders the console.
func (m ConsoleModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229"))

	title := "PIXELPILOT"
	if m.opts.Title != "" {
		title = fmt.Sprintf("PIXELPILOT - %s", m.opts.Title)
	}
	b.WriteString(titleStyle.Render(centerText(title, m.width)))
	b.WriteString("\n\n")

	panels := []string{m.renderStatusPanel(), m.renderCountersPanel()}
	if m.showFrame && m.width >= minWidthForFrame {
		if preview := m.renderFramePanel(); preview != "" {
			panels = append(panels, preview)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, joinWithGap(panels)...))
	b.WriteString("\n")

	b.WriteString(m.renderEpisodes())
	b.WriteString("\n")

	if m.message != "" {
		msgStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
		b.WriteString(msgStyle.Render(m.message))
		b.WriteString("\n")
	}

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func joinWithGap(panels []string) []string {
	out := make([]string, 0, len(panels)*2)
	for i, p := range panels {
		if i > 0 {
			out = append(out, "  ")
		}
		out = append(out, p)
	}
	return out
}

// stateStyles colours the state name.
var stateStyles = map[scheduler.State]lipgloss.Style{
	scheduler.StateIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	scheduler.StateRunning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	scheduler.StatePaused:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
	scheduler.StateStopped: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
}

func panelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(panelWidth).
		Padding(0, 1)
}

// renderStatusPanel shows state, action and the open episode.
func (m ConsoleModel) renderStatusPanel() string {
	st := m.status
	var b strings.Builder

	state := stateStyles[st.State].Render(st.State.String())
	if st.Reason != core.ReasonNone {
		reasonStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
		if st.Reason.Fatal() {
			reasonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		}
		state += " " + reasonStyle.Render("("+st.Reason.String()+")")
	}
	fmt.Fprintf(&b, "State    %s\n", state)
	if m.opts.Policy != "" {
		fmt.Fprintf(&b, "Policy   %s\n", m.opts.Policy)
	}
	fmt.Fprintf(&b, "Tick     %d\n", st.Tick.Index)
	fmt.Fprintf(&b, "Frame    #%d\n", st.FrameSeq)
	fmt.Fprintf(&b, "Action   %s\n", st.LastAction.String())
	fmt.Fprintf(&b, "Decide   %s\n", st.Latency.Round(time.Microsecond))

	if m.hasOpen {
		fmt.Fprintf(&b, "Episode  %s\n", shortID(m.current.ID))
		fmt.Fprintf(&b, "Return   %.2f over %d steps", m.current.Return, m.current.Steps)
	} else {
		b.WriteString("Episode  -")
	}

	return panelStyle().Render(b.String())
}

// renderCountersPanel shows the session counters.
func (m ConsoleModel) renderCountersPanel() string {
	c := m.status.Counters
	var b strings.Builder
	fmt.Fprintf(&b, "Ticks        %d\n", c.Ticks)
	fmt.Fprintf(&b, "Overruns     %d (%d skipped)\n", c.Overruns, c.SkippedTicks)
	fmt.Fprintf(&b, "Late decide  %d (soft %d)\n", c.DecideOverruns, c.SoftMisses)
	fmt.Fprintf(&b, "Busy / err   %d / %d\n", c.DecideBusy, c.DecideErrors)
	fmt.Fprintf(&b, "Stale        %d (%d failed)\n", c.StaleTicks, c.CaptureFailures)
	fmt.Fprintf(&b, "Dispatch     %d (%d failed)\n", c.Dispatched, c.DispatchFailures)
	fmt.Fprintf(&b, "Release all  %d\n", c.ReleaseAlls)
	fmt.Fprintf(&b, "Rewards      %d", c.Rewards)
	return panelStyle().Render(b.String())
}

// renderFramePanel shows the latest frame.
func (m ConsoleModel) renderFramePanel() string {
	frame, ok := m.opts.Frames.Latest()
	if !ok {
		return ""
	}
	maxW := m.width - 2*(panelWidth+4) - 6
	art := RenderFrame(frame, maxW, 10)
	if art == "" {
		return ""
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(art)
}

// renderEpisodes renders the table or empty message.
func (m ConsoleModel) renderEpisodes() string {
	tableStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	if len(m.episodes) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true).
			Padding(1, 4)
		return tableStyle.Render(emptyStyle.Render("No episodes finished yet."))
	}
	return tableStyle.Render(m.table.View())
}

// IsQuitting returns true once the console has exited.
func (m ConsoleModel) IsQuitting() bool {
	return m.quitting
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// centerText centers text within the given width.
func centerText(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}

// RunConsole runs the console on the local terminal until the operator quits
// or the agent stops.
func RunConsole(agent Agent, opts ConsoleOptions) error {
	model := NewConsoleModel(agent, opts, 80, 24)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
