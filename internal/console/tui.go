package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cxd309/railsim/internal/simulation"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	pausedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFF00"))

	logStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginLeft(2)
)

type keyMap struct {
	Enter key.Binding
	Pause key.Binding
	Quit  key.Binding
}

var keys = keyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run command"),
	),
	Pause: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("ctrl+p", "pause/resume"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Pause, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Enter, k.Pause, k.Quit}}
}

// EventSource delivers simulation events to the TUI log.
type EventSource interface {
	Events() <-chan simulation.Event
}

const maxLogLines = 12

// Model is the bubbletea model of the interactive console.
type Model struct {
	console *Console
	session Session
	events  <-chan simulation.Event

	input   textinput.Model
	objects table.Model
	help    help.Model
	keys    keyMap

	log    []string
	output string
	err    error
	width  int
}

type refreshMsg time.Time

type eventMsg struct{ event simulation.Event }

type resultMsg struct {
	out string
	err error
}

// NewModel builds the TUI over a session. If the session also implements
// EventSource, its events are shown in the log.
func NewModel(s Session) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command, e.g. target 1 3"
	ti.CharLimit = 120
	ti.Width = 60
	ti.Focus()

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 6},
			{Title: "Kind", Width: 8},
			{Title: "Node", Width: 8},
			{Title: "Edge", Width: 8},
			{Title: "Offset", Width: 9},
			{Title: "Speed", Width: 8},
			{Title: "Targets", Width: 24},
		}),
		table.WithHeight(8),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(st)

	m := Model{
		console: New(s),
		session: s,
		input:   ti,
		objects: t,
		help:    help.New(),
		keys:    keys,
	}
	if src, ok := s.(EventSource); ok {
		m.events = src.Events()
	}
	m.refresh()
	return m
}

func refreshCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m Model) waitEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: e}
	}
}

func (m Model) execute(line string) tea.Cmd {
	c := m.console
	return func() tea.Msg {
		out, err := c.Execute(context.Background(), line)
		return resultMsg{out: out, err: err}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, refreshCmd(), m.waitEvent())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case refreshMsg:
		m.refresh()
		return m, refreshCmd()

	case eventMsg:
		m.appendLog(simulation.Describe(msg.event))
		return m, m.waitEvent()

	case resultMsg:
		m.output, m.err = msg.out, msg.err
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			return m, m.execute("toggle")
		case key.Matches(msg, m.keys.Enter):
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}
			if line != "" {
				m.appendLog("> " + line)
				return m, m.execute(line)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// refresh rebuilds the object table from the latest frame.
func (m *Model) refresh() {
	frame := m.session.Frame()
	if frame == nil {
		return
	}
	objects := frame.Observation.Objects()
	rows := make([]table.Row, len(objects))
	for i, st := range objects {
		edge, offset := "-", "-"
		if st.Position.OnEdge() {
			edge = strconv.FormatInt(int64(st.Position.Edge), 10)
			offset = fmt.Sprintf("%.1f", st.Position.Offset)
		}
		rows[i] = table.Row{
			strconv.FormatInt(int64(st.ID), 10),
			st.Kind,
			strconv.FormatInt(int64(st.Position.Node), 10),
			edge,
			offset,
			fmt.Sprintf("%.2f", st.Speed),
			fmt.Sprint(st.Targets),
		}
	}
	m.objects.SetRows(rows)
}

func (m Model) status() string {
	frame := m.session.Frame()
	if frame == nil {
		return "no simulation"
	}
	state := frame.State.String()
	if frame.State == simulation.Paused {
		state = pausedStyle.Render(state)
	}
	obs := frame.Observation
	return fmt.Sprintf("%s  tick %d  t=%s  speedup x%g",
		state, obs.Tick(), obs.Elapsed().Round(time.Millisecond), frame.Speedup)
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("railsim console"))
	s.WriteString("\n\n")
	s.WriteString(statusStyle.Render(m.status()))
	s.WriteString("\n\n")
	s.WriteString(m.objects.View())
	s.WriteString("\n\n")

	if len(m.log) > 0 {
		s.WriteString(logStyle.Render(strings.Join(m.log, "\n")))
		s.WriteString("\n")
	}
	if m.err != nil {
		s.WriteString(errorStyle.Render("error: " + m.err.Error()))
		s.WriteString("\n")
	} else if m.output != "" {
		s.WriteString(m.output)
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return s.String()
}

// Run starts the TUI and blocks until the user quits.
func Run(s Session) error {
	_, err := tea.NewProgram(NewModel(s), tea.WithAltScreen()).Run()
	return err
}
