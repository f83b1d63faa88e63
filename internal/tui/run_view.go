// Package tui renders a live view of one plan round.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/kingrea/chainexec/plan"
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA"))
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

const detailWidth = 60

type stepStatus int

const (
	statusPending stepStatus = iota
	statusRunning
	statusDone
	statusFailed
	statusSkipped
)

type stepRow struct {
	label  string
	status stepStatus
	detail string
}

type eventMsg plan.Event

type streamClosedMsg struct{}

// Model is a bubbletea model that follows one round through a stream
// subscription and quits after its finish event.
type Model struct {
	title     string
	rows      []stepRow
	events    <-chan plan.Event
	runID     string
	spinner   spinner.Model
	finished  bool
	completed bool
	aborted   bool
	lastErr   string
}

// NewModel builds a model for the given step labels.
func NewModel(title string, labels []string, events <-chan plan.Event) *Model {
	rows := make([]stepRow, len(labels))
	for i, label := range labels {
		rows[i] = stepRow{label: label}
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyleRunning
	return &Model{title: title, rows: rows, events: events, spinner: sp}
}

// Completed reports whether the round published complete.
func (m *Model) Completed() bool { return m.completed }

// Finished reports whether the round published finish.
func (m *Model) Finished() bool { return m.finished }

// Aborted reports whether the user left the view before finish.
func (m *Model) Aborted() bool { return m.aborted }

// Init satisfies tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(event)
	}
}

// Update satisfies tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.finished {
				m.aborted = true
			}
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		return m, m.handleEvent(plan.Event(msg))
	case streamClosedMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleEvent(event plan.Event) tea.Cmd {
	if m.runID == "" {
		m.runID = event.RunID
	}
	if event.RunID != m.runID {
		return m.waitForEvent()
	}
	switch event.Type {
	case plan.EventStepStart:
		if row := m.row(event.Step); row != nil {
			row.status = statusRunning
			if row.label == "" {
				row.label = event.Command
			}
		}
	case plan.EventStepEnd:
		if row := m.row(event.Step); row != nil {
			if event.Err != nil {
				row.status = statusFailed
				row.detail = firstLine(event.Stderr)
				if row.detail == "" {
					row.detail = event.Err.Error()
				}
			} else {
				row.status = statusDone
				row.detail = lastLine(event.Stdout)
			}
		}
	case plan.EventExecError:
		if event.Err != nil {
			m.lastErr = event.Err.Error()
		}
	case plan.EventComplete:
		m.completed = true
	case plan.EventFinish:
		m.finished = true
		for i := range m.rows {
			if m.rows[i].status == statusPending {
				m.rows[i].status = statusSkipped
			}
		}
		return tea.Quit
	}
	return m.waitForEvent()
}

func (m *Model) row(index int) *stepRow {
	if index < 0 {
		return nil
	}
	for len(m.rows) <= index {
		m.rows = append(m.rows, stepRow{})
	}
	return &m.rows[index]
}

// View satisfies tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for i, row := range m.rows {
		b.WriteString(m.renderRow(i, row))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.completed:
		b.WriteString(labelStyleDone.Render("complete"))
	case m.finished:
		b.WriteString(labelStyleFailed.Render("finished without completing"))
		if m.lastErr != "" {
			b.WriteString(" " + detailTextStyle.Render(m.lastErr))
		}
	default:
		b.WriteString(detailTextStyle.Render("q to leave the view"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderRow(idx int, row stepRow) string {
	var marker string
	style := labelStylePending
	switch row.status {
	case statusRunning:
		marker = m.spinner.View()
		style = labelStyleRunning
	case statusDone:
		marker = labelStyleDone.Render("✓")
		style = labelStyleDone
	case statusFailed:
		marker = labelStyleFailed.Render("✗")
		style = labelStyleFailed
	case statusSkipped:
		marker = labelStyleSkipped.Render("-")
		style = labelStyleSkipped
	default:
		marker = labelStylePending.Render("·")
	}
	line := fmt.Sprintf("%s %2d. %s", marker, idx+1, style.Render(row.label))
	if row.detail != "" {
		line += "  " + detailTextStyle.Render(truncate(row.detail, detailWidth))
	}
	return line
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// truncate limits text to max terminal cells.
func truncate(text string, max int) string {
	return runewidth.Truncate(text, max, "…")
}

// Run executes p's pending steps while rendering progress, and reports whether
// the round completed. labels name the pending steps in order.
func Run(p *plan.Plan, title string, labels []string, opts ...tea.ProgramOption) (bool, error) {
	sub := p.Events().Stream(len(labels)*4+8,
		plan.EventStepStart, plan.EventStepEnd, plan.EventExecError, plan.EventComplete, plan.EventFinish)
	defer sub.Close()
	model := NewModel(title, labels, sub.Events)
	p.Execute()
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return false, fmt.Errorf("tui: %w", err)
	}
	p.Wait()
	if m, ok := final.(*Model); ok {
		return m.Completed(), nil
	}
	return model.Completed(), nil
}
