// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/retrolink/pkg/protov2"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// Latest traffic seen per message type
type linkState struct {
	status     string
	time       string
	lastCall   string
	lastNotify string
	lastAck    string
	updated    time.Time
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *protov2.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	rejected      int
	width         int
	height        int
	quitting      bool
	closed        bool
	link          *linkState
}

// Messages
type tickMsg time.Time
type linkDataMsg struct {
	frame            *protov2.Frame
	decodeErr        error
	validationErrors []protov2.ValidationError
}
type syncMsg struct {
	rejected int
}
type linkClosedMsg struct {
	err error
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         protov2.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		// Update statistics rates
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.rejected = msg.rejected
		if msg.rejected > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after %d rejected frames", msg.rejected), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case linkClosedMsg:
		m.closed = true
		m.addLogEntry(fmt.Sprintf("Connection closed: %v", msg.err), true)

	case linkDataMsg:
		if msg.decodeErr != nil {
			if m.synchronized {
				m.stats.Update(nil, msg.decodeErr, nil)
				m.addLogEntry(fmt.Sprintf("REJECTED: %v", msg.decodeErr), true)
			}
		} else if msg.frame != nil {
			m.stats.Update(msg.frame, nil, msg.validationErrors)
			m.trackFrame(msg.frame)

			msgType := protov2.FormatMessageType(msg.frame.Type())
			if len(msg.validationErrors) > 0 {
				for _, err := range msg.validationErrors {
					m.addLogEntry(fmt.Sprintf("%s seq=%d: %s", msgType, msg.frame.Seq(), err.Message), true)
				}
			} else if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s seq=%d %s", msgType, msg.frame.Seq(), protov2.FormatPayload(msg.frame)), false)
			}
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// trackFrame records the latest value of each message type
func (m *model) trackFrame(frame *protov2.Frame) {
	if m.link == nil {
		m.link = &linkState{}
	}
	m.link.updated = frame.Timestamp()

	switch frame.Type() {
	case protov2.TypeStatus, protov2.TypeTime:
		if len(protov2.ValidateFrame(frame)) > 0 {
			return
		}
		if frame.Type() == protov2.TypeStatus {
			m.link.status = protov2.FormatPayload(frame)
		} else {
			m.link.time = protov2.FormatPayload(frame)
		}
	case protov2.TypeCall:
		m.link.lastCall, _ = protov2.Text(frame)
	case protov2.TypeNotify:
		m.link.lastNotify, _ = protov2.Text(frame)
	case protov2.TypeAck:
		m.link.lastAck = protov2.FormatPayload(frame)
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("RETROLINK - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset stats, 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.closed:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
		s.WriteString("\n\n")
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.rejected > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (%d frames rejected before sync)", m.rejected)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	m.stats.CalculateRates()
	totalErrors := m.stats.Errors() + m.stats.Anomalies
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if m.stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Rejected:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Errors())),
			headerStyle.Render("crc"), m.stats.CRCErrors,
			headerStyle.Render("short"), m.stats.ShortFrames,
			headerStyle.Render("version"), m.stats.VersionErrors,
			headerStyle.Render("length"), m.stats.LengthErrors,
			headerStyle.Render("oversize"), m.stats.OversizeFrames,
		))
	}

	if m.stats.Anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Anomalies)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
		statsLabelStyle.Render("ACK req:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.AcksRequested)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Link section (only shown once traffic arrived)
	if m.link != nil {
		s.WriteString(statsLabelStyle.Render("Latest Traffic:"))
		s.WriteString("\n")

		linkContent := strings.Builder{}
		row := func(label, value string) {
			if value == "" {
				value = "-"
			}
			linkContent.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render(label), statsValueStyle.Render(value)))
		}
		row("Status:", m.link.status)
		row("Time:", m.link.time)
		row("Call:", m.link.lastCall)
		row("Notify:", m.link.lastNotify)
		row("ACK:", m.link.lastAck)
		linkContent.WriteString(headerStyle.Render("updated " + m.link.updated.Format("15:04:05.000")))

		s.WriteString(boxStyle.Render(linkContent.String()))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 20 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
