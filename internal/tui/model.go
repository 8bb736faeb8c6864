// Package tui renders a live view of a run: each worker's state and agent
// output, and the task graph's progress.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/swarm/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneWorkers PaneID = iota
	PaneGraph
)

const paneCount = 2

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	workerPane  WorkerPaneModel
	graphPane   GraphPaneModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	runID       string
	width       int
	height      int
	quitting    bool
	finished    bool
	stop        func()
}

// New creates a new TUI model subscribed to every event on the bus. stop is
// called when the user quits before the run has finished; it may be nil.
func New(eventBus *events.EventBus, runID string, stop func()) Model {
	m := Model{
		workerPane:  NewWorkerPaneModel(),
		graphPane:   NewGraphPaneModel(),
		focusedPane: PaneWorkers,
		eventSub:    eventBus.Subscribe(1024),
		runID:       runID,
		stop:        stop,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			if !m.finished && m.stop != nil {
				m.stop()
			}
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneWorkers
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneGraph
			m.updateFocusStates()

		default:
			// Only the worker pane takes keys
			if m.focusedPane == PaneWorkers {
				var cmd tea.Cmd
				m.workerPane, cmd = m.workerPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case tickMsg:
		var cmd tea.Cmd
		m.workerPane, cmd = m.workerPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.TaskStartedEvent, events.AgentOutputEvent, events.TaskCompletedEvent,
		events.TaskFailedEvent, events.WorkerStateEvent:
		var cmd tea.Cmd
		m.workerPane, cmd = m.workerPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.MergeEvent:
		// Both panes show merges
		var cmd tea.Cmd
		m.workerPane, cmd = m.workerPane.Update(msg)
		cmds = append(cmds, cmd)
		m.graphPane, cmd = m.graphPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.GraphProgressEvent:
		var cmd tea.Cmd
		m.graphPane, cmd = m.graphPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.RunFinishedEvent:
		m.finished = true
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

// Finished reports whether the run ended while the TUI was showing it.
func (m Model) Finished() bool {
	return m.finished
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := StyleTitle.Render(fmt.Sprintf("swarm run %s", m.runID))
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.workerPane.View(), m.graphPane.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	rightWidth := (m.width * 30) / 100
	leftWidth := m.width - rightWidth
	availableHeight := m.height - 2 // header and help bar

	m.workerPane.SetSize(leftWidth, availableHeight)
	m.graphPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.workerPane.SetFocused(m.focusedPane == PaneWorkers)
	m.graphPane.SetFocused(m.focusedPane == PaneGraph)
}
