// Package tui provides the interactive session picker used by undo and the
// hashing progress bar.
package tui

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luinbytes/media-deduplicator/journal"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2)

	itemStyle = lipgloss.NewStyle().PaddingLeft(4)

	selectedItemStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Foreground(lipgloss.Color("#7D56F4")).
				Bold(true)

	undoableStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	spentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(1)
)

// previewLimit caps the entries listed in the preview pane.
const previewLimit = 10

// keyMap defines keybindings for the TUI
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Confirm key.Binding
	Quit    key.Binding
	Help    key.Binding
	Preview key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "move up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "move down"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "undo session"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q/esc", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
	Preview: key.NewBinding(
		key.WithKeys("p", "tab"),
		key.WithHelp("p/tab", "toggle preview"),
	),
}

// ShortHelp returns keybindings to be shown in the mini help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Preview},
		{k.Confirm, k.Help, k.Quit},
	}
}

// Model is the picker state
type Model struct {
	sessions    []*journal.Session
	cursor      int
	showHelp    bool
	showPreview bool
	chosen      string
	quitting    bool
	width       int
	keys        keyMap
	help        help.Model
}

// New creates a picker over sessions, listed in the given order.
func New(sessions []*journal.Session) Model {
	return Model{
		sessions:    sessions,
		showPreview: true,
		keys:        keys,
		help:        help.New(),
	}
}

// Init initializes the TUI
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and user input
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp

		case key.Matches(msg, m.keys.Preview):
			m.showPreview = !m.showPreview

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.sessions)-1 {
				m.cursor++
			}

		case key.Matches(msg, m.keys.Confirm):
			if m.cursor < len(m.sessions) {
				m.chosen = m.sessions[m.cursor].ID
				return m, tea.Quit
			}
		}
	}

	return m, nil
}

// Chosen returns the picked session id, empty if the user quit.
func (m Model) Chosen() string {
	return m.chosen
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "No session selected.\n"
	}
	if m.chosen != "" {
		return fmt.Sprintf("Undoing session %s...\n", m.chosen)
	}
	if len(m.sessions) == 0 {
		return "No sessions recorded.\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(" Undo a session "))
	s.WriteString("\n\n")

	for i, sess := range m.sessions {
		s.WriteString(m.renderSession(i, sess))
		s.WriteString("\n")
	}

	if m.showPreview && m.cursor < len(m.sessions) {
		s.WriteString("\n")
		s.WriteString(previewStyle.Render(renderPreview(m.sessions[m.cursor])))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if m.showHelp {
		s.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		s.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return s.String()
}

func (m Model) renderSession(i int, sess *journal.Session) string {
	var line strings.Builder

	done := len(sess.Done())
	if done > 0 {
		line.WriteString(undoableStyle.Render("[●] "))
	} else {
		line.WriteString(spentStyle.Render("[ ] "))
	}

	name := sess.ID
	if i == m.cursor {
		line.WriteString(selectedItemStyle.Render("> " + name))
	} else {
		line.WriteString(itemStyle.Render(name))
	}

	info := fmt.Sprintf(" %s, %s, %d to undo", sess.Label, sess.Status, done)
	if !sess.Started.IsZero() {
		info += ", " + sess.Started.Local().Format("2006-01-02 15:04")
	}
	line.WriteString(infoStyle.Render(info))
	return line.String()
}

// renderPreview lists what undo would reverse, most recent first.
func renderPreview(sess *journal.Session) string {
	done := sess.Done()
	if len(done) == 0 {
		return "Nothing left to undo."
	}
	slices.Reverse(done)

	var s strings.Builder
	for i, e := range done {
		if i >= previewLimit {
			s.WriteString(fmt.Sprintf("... and %d more", len(done)-previewLimit))
			break
		}
		switch e.Op {
		case journal.OpDelete:
			s.WriteString(fmt.Sprintf("%-6s %s (permanent)", e.Op, filepath.Base(e.Src)))
		default:
			s.WriteString(fmt.Sprintf("%-6s %s <- %s", e.Op, filepath.Base(e.Src), e.Dst))
		}
		if i < len(done)-1 {
			s.WriteString("\n")
		}
	}
	return s.String()
}

// PickSession shows the picker and returns the chosen id, or "" if the user
// quit without choosing.
func PickSession(sessions []*journal.Session) (string, error) {
	p := tea.NewProgram(New(sessions), tea.WithAltScreen())
	m, err := p.Run()
	if err != nil {
		return "", err
	}
	return m.(Model).Chosen(), nil
}
