// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/retrolink/pkg/legacy"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

// LCD line width of the watch display
const lcdWidth = 24

type renderMsg watch.DisplayUpdate
type eventMsg struct {
	message string
	isError bool
}

// displayModel is the simulator's LCD view
type displayModel struct {
	protocol  string
	snapshot  func() watch.Snapshot
	last      *watch.DisplayUpdate
	lastAt    time.Time
	renders   int
	state     watch.Snapshot
	events    []errorLogEntry
	maxEvents int
	width     int
	height    int
	quitting  bool
}

func newDisplayModel(protocol string, snapshot func() watch.Snapshot) displayModel {
	return displayModel{
		protocol:  protocol,
		snapshot:  snapshot,
		state:     snapshot(),
		events:    make([]errorLogEntry, 0),
		maxEvents: 50,
		width:     80,
		height:    24,
	}
}

func (m displayModel) Init() tea.Cmd {
	return tickCmd()
}

func (m displayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.state = m.snapshot()
		return m, tickCmd()

	case renderMsg:
		u := watch.DisplayUpdate(msg)
		m.last = &u
		m.lastAt = time.Now()
		m.renders++
		m.state = m.snapshot()

	case eventMsg:
		m.events = append(m.events, errorLogEntry{
			timestamp: time.Now(),
			message:   msg.message,
			isError:   msg.isError,
		})
		if len(m.events) > m.maxEvents {
			m.events = m.events[len(m.events)-m.maxEvents:]
		}
	}

	return m, nil
}

// lcdLines renders the two display lines for an update
func lcdLines(u *watch.DisplayUpdate) (string, string) {
	if u == nil {
		return "", ""
	}

	t := u.Time
	switch u.Mode {
	case watch.ModeStartup:
		return "RETROLINK", "starting..."
	case watch.ModeClock:
		return fmt.Sprintf("%s %s", t.TimeString(), t.AmPmString()),
			fmt.Sprintf("%s %s", t.WeekdayString(), t.DateString())
	case watch.ModeEmergency, watch.ModeMessage:
		if u.Entry == nil {
			return "", ""
		}
		icon := "*"
		switch u.Entry.Icon {
		case watch.IconCall:
			icon = "CALL"
		case watch.IconNotify:
			icon = "MSG"
		}
		return fmt.Sprintf("%s %s", icon, t.TimeString()), u.Entry.Text
	case watch.ModeIdle:
		return t.TimeString(), ""
	}
	return "", ""
}

// fitLCD truncates or pads a line to the display width
func fitLCD(s string) string {
	r := []rune(s)
	if len(r) > lcdWidth {
		r = r[:lcdWidth]
	}
	return string(r) + strings.Repeat(" ", lcdWidth-len(r))
}

func (m displayModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	lcdStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("10")).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("113")).
		Padding(0, 1)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("RETROLINK - WATCH SIMULATOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Protocol: %s | 'q' quit", m.protocol)))
	s.WriteString("\n\n")

	// LCD
	line1, line2 := lcdLines(m.last)
	indicator := " "
	if m.state.Indicator {
		indicator = "●"
	}
	lcd := lcdStyle.Render(fitLCD(line1) + indicator + "\n" + fitLCD(line2) + " ")

	status := strings.Builder{}
	row := func(label, value string) {
		status.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(label), valueStyle.Render(value)))
	}
	row("Mode:", m.state.Mode.String())
	row("Clock:", m.state.Time.String())
	row("Face:", legacy.FormatClockStyle(m.state.ClockStyle))
	link := errorStyle.Render("disconnected")
	if m.state.LinkConnected {
		link = valueStyle.Render("connected")
	}
	status.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Link:"), link))
	row("Uptime:", formatUptime(uint64(m.state.Uptime.Milliseconds())))
	rendered := fmt.Sprintf("%d", m.renders)
	if !m.lastAt.IsZero() {
		rendered += " (last " + m.lastAt.Format("15:04:05") + ")"
	}
	status.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Renders:"), valueStyle.Render(rendered)))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, lcd, "  ", boxStyle.Render(status.String())))
	s.WriteString("\n\n")

	// Buffers
	buffer := func(title string, entries []watch.Entry, style lipgloss.Style) string {
		var b strings.Builder
		b.WriteString(labelStyle.Render(fmt.Sprintf("%s (%d)", title, len(entries))))
		if len(entries) == 0 {
			b.WriteString("\n" + headerStyle.Render("  (empty)"))
		}
		for _, e := range entries {
			b.WriteString(fmt.Sprintf("\n%s %s",
				headerStyle.Render(fmt.Sprintf("[%d] id=%d", e.Slot, e.ID)),
				style.Render(e.Text),
			))
		}
		return boxStyle.Width(m.width/2 - 2).Render(b.String())
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		buffer("Emergency", m.state.Emergency, warningStyle),
		buffer("Messages", m.state.Normal, valueStyle),
	))
	s.WriteString("\n\n")

	// Events
	s.WriteString(labelStyle.Render("Link Events:"))
	s.WriteString("\n")

	logHeight := m.height - 22
	if logHeight < 3 {
		logHeight = 3
	}
	start := len(m.events) - logHeight
	if start < 0 {
		start = 0
	}

	logContent := strings.Builder{}
	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, e := range m.events[start:] {
		timestamp := e.timestamp.Format("15:04:05.000")
		if e.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+e.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+e.message)))
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
