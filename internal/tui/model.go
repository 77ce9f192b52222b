package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"birdnest/internal/geometry"
	"birdnest/internal/monitor"
	"birdnest/internal/violation"
)

const (
	maxLogLines    = 500
	logSectionPct  = 0.3
	minTableHeight = 3
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type model struct {
	zone       geometry.Zone
	table      table.Model
	vp         viewport.Model
	violations map[string]violation.Violation
	logs       []string
	status     monitor.Status
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newModel(zone geometry.Zone) model {
	cols := []table.Column{
		{Title: "Serial", Width: 16},
		{Title: "Model", Width: 12},
		{Title: "Closest (m)", Width: 11},
		{Title: "Last seen", Width: 9},
		{Title: "Pilot", Width: 20},
		{Title: "Email", Width: 26},
		{Title: "Phone", Width: 14},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(minTableHeight), table.WithFocused(true))
	return model{
		zone:       zone,
		table:      t,
		vp:         viewport.New(0, 0),
		violations: make(map[string]violation.Violation),
		autoscroll: true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.layout()
		m.refreshLog()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshLog()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "pgdown", "ctrl+n":
			m.vp.HalfPageDown()
		case "pgup", "ctrl+p":
			m.vp.HalfPageUp()
		default:
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
	case updateMsg:
		if msg.Violation == nil {
			delete(m.violations, msg.Serial)
		} else {
			m.violations[msg.Serial] = *msg.Violation
		}
		m.table.SetRows(m.rows())
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshLog()
	case statusMsg:
		m.status = msg.Status
	}
	return m, nil
}

// rows lists violations closest first.
func (m model) rows() []table.Row {
	list := make([]violation.Violation, 0, len(m.violations))
	for _, v := range m.violations {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ClosestDistance != list[j].ClosestDistance {
			return list[i].ClosestDistance < list[j].ClosestDistance
		}
		return list[i].SerialNumber < list[j].SerialNumber
	})
	rows := make([]table.Row, 0, len(list))
	for _, v := range list {
		pilot, email, phone := "-", "-", "-"
		if v.Pilot != nil {
			pilot, email, phone = v.Pilot.Name(), v.Pilot.Email, v.Pilot.PhoneNumber
		}
		seen := "-"
		if !v.LastSeen.IsZero() {
			seen = v.LastSeen.Local().Format(time.TimeOnly)
		}
		rows = append(rows, table.Row{
			v.SerialNumber,
			v.Model,
			fmt.Sprintf("%.1f", v.ClosestDistance/1000),
			seen,
			pilot,
			email,
			phone,
		})
	}
	return rows
}

func (m *model) layout() {
	logHeight := int(float64(m.height) * logSectionPct)
	tableHeight := m.height - logHeight - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderFooter()) - 1
	if tableHeight < minTableHeight {
		tableHeight = minTableHeight
	}
	m.table.SetHeight(tableHeight)
	if logHeight < 1 {
		logHeight = 1
	}
	m.vp.Height = logHeight
}

func (m *model) refreshLog() {
	lines := m.logs
	if m.width > 0 {
		out := make([]string, len(lines))
		for i, l := range lines {
			if m.wrap {
				out[i] = wordwrap.String(l, m.width)
			} else {
				out[i] = truncate.String(l, uint(m.width))
			}
		}
		lines = out
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) renderHeader() string {
	s := m.status
	state := s.State
	if state == "" {
		state = "starting"
	}
	title := titleStyle.Render("birdnest")
	info := headerStyle.Render(fmt.Sprintf(
		"state=%s cycles=%d violations=%d events=%d dropped=%d  nest=(%.0f,%.0f) radius=%.0fm",
		state, s.Cycles, len(m.violations), s.Events.Sent, s.Events.Dropped,
		m.zone.NestX, m.zone.NestY, m.zone.Radius/1000))
	return title + " " + info
}

func (m model) renderFooter() string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	return footerStyle.Render(fmt.Sprintf("q quit  w wrap:%s  s scroll:%s  ↑/↓ select  pgup/pgdn log",
		onOff(m.wrap), onOff(m.autoscroll)))
}

func (m model) View() string {
	sep := sepStyle.Render(strings.Repeat("─", max(m.width, 1)))
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.table.View(),
		sep,
		m.vp.View(),
		m.renderFooter(),
	)
}
