package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/cccckit/cccc/internal/homedir"
	"github.com/cccckit/cccc/internal/ledger"
)

var (
	tuiHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	tuiDimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	tuiRunningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	tuiSelectedStyle = lipgloss.NewStyle().Reverse(true)
	tuiSepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

const maxTUILogLines = 500

type tickMsg time.Time

type groupsMsg struct {
	groups []groupRow
	err    error
}

type ledgerMsg struct {
	groupID string
	lines   []string
	err     error
}

type groupRow struct {
	groupID string
	title   string
	running bool
}

type sendResultMsg struct {
	err error
}

// tuiModel is a live monitor over ccccd's groups and their ledgers: pick a
// group in the left pane, watch its ledger tail stream in the right pane.
// Pressing "i" focuses a compose line that sends a chat message into the
// selected group's active scope.
type tuiModel struct {
	width, height int
	ready         bool
	quitting      bool

	layout    homedir.Layout
	groups    []groupRow
	selected  int
	lastErr   string
	logLines  []string
	seenLines int

	composing bool
	input     textinput.Model
}

func newTUIModel(layout homedir.Layout) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "message to active scope..."
	ti.CharLimit = 4000
	ti.Prompt = "› "
	return tuiModel{layout: layout, input: ti}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(refreshGroupsCmd(), tickCmd())
}

func sendMessageCmd(gid, text string) tea.Cmd {
	return func() tea.Msg {
		_, err := call("send", "cli", map[string]any{"group_id": gid, "text": text})
		return sendResultMsg{err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func refreshGroupsCmd() tea.Cmd {
	return func() tea.Msg {
		resp, err := call("groups", "cli", nil)
		if err != nil {
			return groupsMsg{err: err}
		}
		if !resp.OK {
			return groupsMsg{err: respError(resp)}
		}
		items, _ := resp.Result["groups"].([]any)
		rows := make([]groupRow, 0, len(items))
		for _, raw := range items {
			mp, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			rows = append(rows, groupRow{
				groupID: asString(mp["group_id"]),
				title:   asString(mp["title"]),
				running: asBool(mp["running"]),
			})
		}
		return groupsMsg{groups: rows}
	}
}

func tailLedgerCmd(layout homedir.Layout, gid string, seen int) tea.Cmd {
	return func() tea.Msg {
		if gid == "" {
			return ledgerMsg{groupID: gid}
		}
		events, err := ledger.ReadAll(layout.LedgerPath(gid))
		if err != nil {
			return ledgerMsg{groupID: gid, err: err}
		}
		if len(events) <= seen {
			return ledgerMsg{groupID: gid, lines: nil}
		}
		lines := make([]string, 0, len(events)-seen)
		for _, ev := range events[seen:] {
			lines = append(lines, formatLedgerLine(ev.TS, ev.By, string(ev.Kind)))
		}
		return ledgerMsg{groupID: gid, lines: lines}
	}
}

func formatLedgerLine(ts, by, kind string) string {
	return ts + "  " + by + "  " + kind
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		if m.composing {
			switch msg.String() {
			case "esc":
				m.composing = false
				m.input.Blur()
				m.input.SetValue("")
				return m, nil
			case "enter":
				text := strings.TrimSpace(m.input.Value())
				m.composing = false
				m.input.Blur()
				m.input.SetValue("")
				if text == "" || m.currentGroupID() == "" {
					return m, nil
				}
				return m, sendMessageCmd(m.currentGroupID(), text)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.logLines = nil
				m.seenLines = 0
			}
		case "down", "j":
			if m.selected < len(m.groups)-1 {
				m.selected++
				m.logLines = nil
				m.seenLines = 0
			}
		case "i":
			if m.currentGroupID() != "" {
				m.composing = true
				m.input.Focus()
				return m, textinput.Blink
			}
		}
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(), refreshGroupsCmd()}
		if gid := m.currentGroupID(); gid != "" {
			cmds = append(cmds, tailLedgerCmd(m.layout, gid, m.seenLines))
		}
		return m, tea.Batch(cmds...)

	case groupsMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			return m, nil
		}
		m.lastErr = ""
		m.groups = msg.groups
		if m.selected >= len(m.groups) {
			m.selected = 0
		}
		return m, nil

	case ledgerMsg:
		if msg.groupID != m.currentGroupID() {
			return m, nil
		}
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			return m, nil
		}
		m.seenLines += len(msg.lines)
		m.logLines = append(m.logLines, msg.lines...)
		if over := len(m.logLines) - maxTUILogLines; over > 0 {
			m.logLines = m.logLines[over:]
		}
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		return m, nil
	}
	return m, nil
}

func (m tuiModel) currentGroupID() string {
	if m.selected < 0 || m.selected >= len(m.groups) {
		return ""
	}
	return m.groups[m.selected].groupID
}

func (m tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "\n  loading...\n"
	}

	var left strings.Builder
	left.WriteString(tuiHeaderStyle.Render("groups") + "\n")
	for i, g := range m.groups {
		row := g.groupID
		if g.title != "" {
			row += "  " + g.title
		}
		if g.running {
			row = tuiRunningStyle.Render(row + " ●")
		}
		if i == m.selected {
			row = tuiSelectedStyle.Render(row)
		}
		left.WriteString(row + "\n")
	}
	if len(m.groups) == 0 {
		left.WriteString(tuiDimStyle.Render("(no groups yet — run `cccc attach`)") + "\n")
	}

	var right strings.Builder
	right.WriteString(tuiHeaderStyle.Render("ledger") + "\n")
	for _, line := range m.logLines {
		right.WriteString(line + "\n")
	}

	leftW := 32
	if m.width > 0 && leftW > m.width/3 {
		leftW = m.width / 3
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(leftW).Render(left.String()),
		tuiSepStyle.Render(strings.Repeat("│", 1)),
		right.String(),
	)

	status := tuiDimStyle.Render("↑/↓ select group · i compose · q quit")
	if m.composing {
		status = m.input.View()
	} else if m.lastErr != "" {
		status = tuiDimStyle.Render(m.lastErr)
	}
	return body + "\n" + status + "\n"
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the live group/ledger monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := currentLayout()
			if err != nil {
				return err
			}
			p := tea.NewProgram(newTUIModel(layout), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}
