// Package tui implements the interactive monitor: a live view of the task
// trees with operator controls for held tasks.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/events"
	"github.com/kmordal/taskloom/internal/scheduler"
	"github.com/kmordal/taskloom/pkg/models"
)

const maxLogLines = 200

// Monitor is the bubbletea model for the operator view.
type Monitor struct {
	engine  *engine.Engine
	sched   *scheduler.Scheduler
	stream  <-chan events.Event
	refresh time.Duration

	rows     []treeRow
	selected int
	paused   bool
	logLines []string
	log      viewport.Model
	keys     keyMap
	status   string

	width  int
	height int

	titleStyle    lipgloss.Style
	borderStyle   lipgloss.Style
	selectedStyle lipgloss.Style
	normalStyle   lipgloss.Style
	heldStyle     lipgloss.Style
	runningStyle  lipgloss.Style
	doneStyle     lipgloss.Style
	failedStyle   lipgloss.Style
	waitingStyle  lipgloss.Style
	dimStyle      lipgloss.Style
}

// NewMonitor creates the monitor over a running scheduler. stream is the
// engine's event channel; the monitor is its sole consumer.
func NewMonitor(e *engine.Engine, sched *scheduler.Scheduler, stream <-chan events.Event, refresh time.Duration) *Monitor {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	return &Monitor{
		engine:  e,
		sched:   sched,
		stream:  stream,
		refresh: refresh,
		log:     viewport.New(0, 0),
		keys:    defaultKeyMap(),

		titleStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Padding(0, 1),
		borderStyle:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")),
		selectedStyle: lipgloss.NewStyle().Background(lipgloss.Color("236")).Foreground(lipgloss.Color("15")).Bold(true),
		normalStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		heldStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		runningStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		doneStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		failedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		waitingStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		dimStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

type tickMsg time.Time

type taskEventMsg events.Event

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.nextEvent())
}

func (m *Monitor) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Monitor) nextEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.stream
		if !ok {
			return nil
		}
		return taskEventMsg(ev)
	}
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = msg.Width - 4
		m.log.Height = logHeight(msg.Height)
		return m, nil

	case tickMsg:
		m.reload()
		return m, m.tick()

	case taskEventMsg:
		m.appendLog(events.Event(msg))
		return m, m.nextEvent()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Monitor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.rows)-1 {
			m.selected++
		}

	case key.Matches(msg, m.keys.Pause):
		if m.paused {
			m.sched.Resume()
			m.status = "resumed"
		} else {
			m.sched.Pause()
			m.status = "paused"
		}
		m.paused = !m.paused

	case key.Matches(msg, m.keys.Continue):
		m.commandSelected("continue", m.sched.Continue)

	case key.Matches(msg, m.keys.Skip):
		m.commandSelected("skip", m.sched.Skip)

	case key.Matches(msg, m.keys.Abort):
		m.commandSelected("abort", func(id int64) error {
			return m.sched.Abort(id, "aborted by operator")
		})

	case key.Matches(msg, m.keys.Cancel):
		if task := m.selectedTask(); task != nil {
			if err := m.sched.CancelTree(task.TreeID); err != nil {
				m.status = err.Error()
			} else {
				m.status = fmt.Sprintf("cancelled tree %d", task.TreeID)
			}
		}
	}
	return m, nil
}

func (m *Monitor) commandSelected(verb string, cmd func(int64) error) {
	task := m.selectedTask()
	if task == nil {
		return
	}
	if err := cmd(task.ID); err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("%s task %d", verb, task.ID)
}

func (m *Monitor) selectedTask() *models.Task {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return nil
	}
	return m.rows[m.selected].task
}

func (m *Monitor) reload() {
	tasks, err := m.engine.Store().ListAll()
	if err != nil {
		m.status = err.Error()
		return
	}
	m.rows = buildTree(tasks)
	if m.selected >= len(m.rows) {
		m.selected = len(m.rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *Monitor) appendLog(ev events.Event) {
	line := fmt.Sprintf("%s %-14s task=%d tree=%d",
		ev.Timestamp.Format("15:04:05"), ev.Type, ev.TaskID, ev.TreeID)
	if ev.OldState != "" || ev.NewState != "" {
		line += fmt.Sprintf(" %s→%s", ev.OldState, ev.NewState)
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
	m.log.SetContent(strings.Join(m.logLines, "\n"))
	m.log.GotoBottom()
}

// View implements tea.Model.
func (m *Monitor) View() string {
	var b strings.Builder

	title := "taskloom"
	if m.paused {
		title += " [paused]"
	}
	b.WriteString(m.titleStyle.Render(title))
	b.WriteString(" ")
	b.WriteString(m.dimStyle.Render(m.summaryLine()))
	b.WriteString("\n")

	b.WriteString(m.renderTree())
	b.WriteString("\n")
	b.WriteString(m.borderStyle.Render(m.log.View()))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(m.dimStyle.Render(" " + m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.dimStyle.Render(" c continue · s skip · a abort · x cancel tree · p pause · q quit"))
	return b.String()
}

func (m *Monitor) summaryLine() string {
	var active, held, done, failed int
	for _, row := range m.rows {
		switch row.task.State {
		case models.StateCompleted:
			done++
		case models.StateFailed:
			failed++
		case models.StateManualHold:
			held++
		default:
			active++
		}
	}
	return fmt.Sprintf("%d active · %d held · %d done · %d failed", active, held, done, failed)
}

func (m *Monitor) renderTree() string {
	if len(m.rows) == 0 {
		return m.dimStyle.Render("  no tasks")
	}

	height := treeHeight(m.height)
	start := 0
	if m.selected >= height {
		start = m.selected - height + 1
	}
	end := start + height
	if end > len(m.rows) {
		end = len(m.rows)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		row := m.rows[i]
		line := m.renderRow(row)
		if i == m.selected {
			line = m.selectedStyle.Render(line)
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Monitor) renderRow(row treeRow) string {
	task := row.task
	indent := strings.Repeat("  ", row.depth)
	icon := m.styleForState(task.State).Render(stateIcon(task.State))

	instruction := task.Instruction
	maxLen := m.width - len(indent) - 20
	if maxLen < 16 {
		maxLen = 16
	}
	if len(instruction) > maxLen {
		instruction = instruction[:maxLen-3] + "..."
	}

	suffix := ""
	if task.AssignedAgent != "" {
		suffix = m.dimStyle.Render(" [" + task.AssignedAgent + "]")
	}
	line := fmt.Sprintf(" %s%s #%d %s%s", indent, icon, task.ID, instruction, suffix)
	if task.State == models.StateFailed && task.Error != "" {
		line += "\n " + indent + "   " + m.failedStyle.Render(task.Error)
	}
	return line
}

func (m *Monitor) styleForState(s models.TaskState) lipgloss.Style {
	switch s {
	case models.StateCompleted:
		return m.doneStyle
	case models.StateFailed:
		return m.failedStyle
	case models.StateManualHold:
		return m.heldStyle
	case models.StateAgentResponding, models.StateToolProcessing:
		return m.runningStyle
	case models.StateWaitingOnDependencies:
		return m.waitingStyle
	default:
		return m.normalStyle
	}
}

func treeHeight(total int) int {
	h := total - logHeight(total) - 5
	if h < 3 {
		h = 3
	}
	return h
}

func logHeight(total int) int {
	h := total / 3
	if h < 4 {
		h = 4
	}
	return h
}

// Run starts the monitor program and blocks until the operator quits.
func Run(m *Monitor) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
