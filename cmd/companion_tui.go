// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/shlex"

	"github.com/Thermoquad/retrolink/pkg/companion"
	"github.com/Thermoquad/retrolink/pkg/protov2"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

// Focus states
const (
	focusActionList = iota
	focusArgInput
)

// action is one sendable message in the action list
type action struct {
	command     string // script words, arguments appended
	title       string
	description string
	placeholder string
}

func (a action) Title() string       { return a.title }
func (a action) Description() string { return a.description }
func (a action) FilterValue() string { return a.command }

var v2Actions = []action{
	{"notify", "Notify", "NOTIFY text", "Lunch at noon"},
	{"call", "Call", "CALL caller name", "Alice"},
	{"time", "Time", "TIME, RFC3339 or now", "now"},
	{"status", "Status", "STATUS connected|disconnected", "connected"},
	{"ping", "Ping", "PING keepalive", ""},
}

var legacyActions = []action{
	{"legacy add", "Add message", "normal|emergency ID ICON TEXT", "normal 1 2 \"Lunch at noon\""},
	{"legacy time", "Set time", "RFC3339 or now", "now"},
	{"legacy style", "Clock style", "analog|digit|mix", "digit"},
	{"legacy indicator", "Indicator", "on|off", "on"},
	{"legacy reset", "Reset buffer", "normal|emergency", "normal"},
	{"legacy", "Control", "ping|awake|sleep|reboot", "ping"},
}

// companionModel is the Bubble Tea model for the companion TUI
type companionModel struct {
	ctx      context.Context
	runner   *companion.Runner
	protocol watch.Protocol
	connInfo string

	actions  []action
	list     list.Model
	argInput textinput.Model
	focused  int
	waitAck  bool
	inFlight int

	// Counters
	sent     int
	acked    int
	failed   int
	received int
	lastAck  string

	errorLog      []errorLogEntry
	maxLogEntries int

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type commandResultMsg struct {
	line    string
	waited  bool
	err     error
	elapsed time.Duration
}

type companionFrameMsg struct {
	frame *protov2.Frame
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

func initialCompanionModel(ctx context.Context, runner *companion.Runner, protocol watch.Protocol, connInfo string) companionModel {
	actions := v2Actions
	if protocol == watch.ProtocolLegacy {
		actions = legacyActions
	}

	items := make([]list.Item, len(actions))
	for i, a := range actions {
		items[i] = a
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	l := list.New(items, delegate, 34, 14)
	l.Title = "Messages"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	ti := textinput.New()
	ti.CharLimit = 128
	ti.Width = 40
	ti.Placeholder = actions[0].placeholder

	return companionModel{
		ctx:           ctx,
		runner:        runner,
		protocol:      protocol,
		connInfo:      connInfo,
		actions:       actions,
		list:          l,
		argInput:      ti,
		focused:       focusActionList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m companionModel) Init() tea.Cmd {
	return nil
}

func (m companionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height / 2
		if listHeight < 8 {
			listHeight = 8
		}
		m.list.SetSize(32, listHeight)

	case commandResultMsg:
		m.inFlight--
		m.recordResult(msg)

	case companionFrameMsg:
		m.received++
		f := msg.frame
		m.addLogEntry(fmt.Sprintf("Received %s seq=%d %s",
			protov2.FormatMessageType(f.Type()), f.Seq(), protov2.FormatPayload(f)), false)

	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)

	case connectionLostMsg:
		m.connectionLost = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)
		} else {
			m.addLogEntry("Connection lost - reconnecting...", true)
		}

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m companionModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focused == focusActionList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		if m.focused == focusActionList {
			m.focused = focusArgInput
			m.argInput.Focus()
		} else {
			m.focused = focusActionList
			m.argInput.Blur()
		}
		return m, nil

	case "ctrl+a":
		if m.protocol == watch.ProtocolV2 {
			m.waitAck = !m.waitAck
		}
		return m, nil

	case "enter":
		return m.send()
	}

	var cmd tea.Cmd
	if m.focused == focusArgInput {
		m.argInput, cmd = m.argInput.Update(msg)
		return m, cmd
	}

	m.list, cmd = m.list.Update(msg)
	if a, ok := m.selected(); ok {
		m.argInput.Placeholder = a.placeholder
	}
	return m, cmd
}

func (m companionModel) selected() (action, bool) {
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.actions) {
		return action{}, false
	}
	return m.actions[idx], true
}

// send runs the selected action with the typed arguments
func (m companionModel) send() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send: connection lost", true)
		return m, nil
	}

	a, ok := m.selected()
	if !ok {
		return m, nil
	}

	input := m.argInput.Value()
	if input == "" {
		input = a.placeholder
	}
	args, err := shlex.Split(input)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid arguments: %v", err), true)
		return m, nil
	}

	fields := append(strings.Fields(a.command), args...)
	waited := m.waitAck
	if waited {
		fields = append([]string{"ack"}, fields...)
	}
	line := strings.Join(fields, " ")

	m.inFlight++
	m.argInput.SetValue("")

	ctx, runner := m.ctx, m.runner
	return m, func() tea.Msg {
		start := time.Now()
		err := runner.RunFields(ctx, fields)
		return commandResultMsg{line: line, waited: waited, err: err, elapsed: time.Since(start)}
	}
}

func (m *companionModel) recordResult(msg commandResultMsg) {
	if msg.err != nil {
		m.failed++
		if msg.waited {
			m.lastAck = ackSummary(msg.err)
		}
		m.addLogEntry(fmt.Sprintf("%s: %v", msg.line, msg.err), true)
		return
	}

	m.sent++
	if msg.waited {
		m.acked++
		m.lastAck = fmt.Sprintf("OK in %s", msg.elapsed.Round(time.Millisecond))
	}
	m.addLogEntry("Sent "+msg.line, false)
}

func ackSummary(err error) string {
	switch {
	case errors.Is(err, companion.ErrAckTimeout):
		return "timeout"
	case errors.Is(err, companion.ErrNegativeAck):
		return "rejected"
	default:
		return "error"
	}
}

func (m *companionModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m companionModel) View() string {
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

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("RETROLINK COMPANION"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	help := "Tab=switch Enter=send q=quit"
	if m.protocol == watch.ProtocolV2 {
		help += " ctrl+a=ACK"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s | %s", connStatus, m.protocol, help)))
	s.WriteString("\n\n")

	// Action list | send panel
	leftWidth := 34
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 30 {
		rightWidth = 30
	}

	listStyle := boxStyle.Width(leftWidth)
	inputStyle := boxStyle.Width(rightWidth)
	if m.focused == focusActionList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	} else {
		inputStyle = focusedBoxStyle.Width(rightWidth)
	}

	var panel strings.Builder
	if a, ok := m.selected(); ok {
		panel.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Message:"), valueStyle.Render(a.title)))
		panel.WriteString(headerStyle.Render(a.description))
		panel.WriteString("\n\n")
	}
	panel.WriteString(labelStyle.Render("Args: "))
	panel.WriteString(m.argInput.View())
	panel.WriteString("\n\n")

	ack := headerStyle.Render("off")
	if m.waitAck {
		ack = valueStyle.Render("on")
	}
	panel.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Wait for ACK:"), ack))
	if m.inFlight > 0 {
		panel.WriteString("  " + warningStyle.Render(fmt.Sprintf("(%d in flight)", m.inFlight)))
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		listStyle.Render(m.list.View()), " ", inputStyle.Render(panel.String())))
	s.WriteString("\n\n")

	// Statistics bar
	lastAck := m.lastAck
	if lastAck == "" {
		lastAck = "-"
	}
	failed := valueStyle.Render("0")
	if m.failed > 0 {
		failed = errorStyle.Render(fmt.Sprintf("%d", m.failed))
	}
	stats := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", m.sent)),
		labelStyle.Render("ACKed:"), valueStyle.Render(fmt.Sprintf("%d", m.acked)),
		labelStyle.Render("Failed:"), failed,
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d", m.received)),
		labelStyle.Render("Last ACK:"), valueStyle.Render(lastAck),
	)
	s.WriteString(boxStyle.Width(m.width - 4).Render(stats))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := m.height - 26
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var log strings.Builder
	if len(m.errorLog) == 0 {
		log.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.errorLog[startIdx:] {
		icon, style := "i", warningStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		log.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(log.String()))

	return s.String()
}
