// Package tui renders a written trace log in a scrollable terminal viewer.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	stepHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	changeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// Model is the trace log viewer: a viewport over styled record text with a
// title bar and scroll position footer.
type Model struct {
	title    string
	content  string
	ready    bool
	viewport viewport.Model
}

// New builds a viewer over the given log contents.
func New(title, content string) Model {
	return Model{title: title, content: colorize(content)}
}

// colorize styles step headers and change markers without altering layout.
func colorize(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "---------------------"):
			lines[i] = stepHeaderStyle.Render(line)
		case strings.HasPrefix(trimmed, "[NEW]"),
			strings.HasPrefix(trimmed, "[CHANGED]"),
			strings.HasPrefix(trimmed, "[DELETED]"):
			lines[i] = changeStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		verticalMargin := headerHeight + footerHeight
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMargin)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMargin
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "loading trace log..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m Model) headerView() string {
	return titleStyle.Render(m.title)
}

func (m Model) footerView() string {
	return infoStyle.Render(fmt.Sprintf("%3.f%% • g/G top/bottom • q quit", m.viewport.ScrollPercent()*100))
}
