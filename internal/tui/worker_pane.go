package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/swarm/internal/events"
)

// maxOutputLines bounds the scrollback kept per worker.
const maxOutputLines = 1000

// WorkerView is what the pane knows about one worker.
type WorkerView struct {
	ID        int
	State     string
	Branch    string
	TaskID    int // 0 when idle
	TaskText  string
	Completed int
	Failed    int
	Output    []string
}

// WorkerPaneModel shows the worker list and the selected worker's output.
type WorkerPaneModel struct {
	workers     map[int]*WorkerView
	order       []int // worker ids, ascending
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewWorkerPaneModel creates a new worker pane model.
func NewWorkerPaneModel() WorkerPaneModel {
	return WorkerPaneModel{
		workers:  make(map[int]*WorkerView),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// worker returns the view for id, creating it on first sight.
func (m *WorkerPaneModel) worker(id int) *WorkerView {
	if w, ok := m.workers[id]; ok {
		return w
	}
	w := &WorkerView{ID: id, State: "idle"}
	m.workers[id] = w
	m.order = append(m.order, id)
	sort.Ints(m.order)
	if len(m.order) == 1 {
		m.updateViewportContent()
	}
	return w
}

func (w *WorkerView) appendOutput(line string) {
	w.Output = append(w.Output, line)
	if n := len(w.Output); n > maxOutputLines {
		w.Output = w.Output[n-maxOutputLines:]
	}
}

// Update handles messages for the worker pane.
func (m WorkerPaneModel) Update(msg tea.Msg) (WorkerPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			// Delegate other keys to viewport for scrolling
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.WorkerStateEvent:
		w := m.worker(msg.WorkerID)
		w.State = msg.State
		if msg.Branch != "" {
			w.Branch = msg.Branch
		}

	case events.TaskStartedEvent:
		w := m.worker(msg.WorkerID)
		w.TaskID = msg.TaskID
		w.TaskText = msg.Text
		w.appendOutput(fmt.Sprintf("── task %d: %s", msg.TaskID, msg.Text))
		if m.selectedWorker() == msg.WorkerID {
			m.updateViewportContent()
		}

	case events.AgentOutputEvent:
		w := m.worker(msg.WorkerID)
		w.appendOutput(msg.Line)
		// If this is the selected worker, update viewport with debouncing
		if m.selectedWorker() == msg.WorkerID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.TaskCompletedEvent:
		w := m.worker(msg.WorkerID)
		w.Completed++
		w.TaskID = 0
		w.appendOutput(fmt.Sprintf("[Task %d completed in %v]", msg.TaskID, msg.Duration.Round(time.Second)))
		if m.selectedWorker() == msg.WorkerID {
			m.updateViewportContent()
		}

	case events.TaskFailedEvent:
		w := m.worker(msg.WorkerID)
		w.Failed++
		w.TaskID = 0
		w.appendOutput(fmt.Sprintf("[Task %d failed: %s]", msg.TaskID, msg.Err))
		if m.selectedWorker() == msg.WorkerID {
			m.updateViewportContent()
		}

	case events.MergeEvent:
		w := m.worker(msg.WorkerID)
		switch {
		case msg.Resolved:
			w.appendOutput(fmt.Sprintf("[Merged after resolving %s]", strings.Join(msg.ConflictFiles, ", ")))
		case msg.Success:
			w.appendOutput("[Merged]")
		default:
			w.appendOutput(fmt.Sprintf("[Merge failed: %s]", msg.Err))
		}
		if m.selectedWorker() == msg.WorkerID {
			m.updateViewportContent()
		}

	case tickMsg:
		// Only update if this tick matches the current tag (debouncing)
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the worker pane.
func (m WorkerPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 30
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderWorkerList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m WorkerPaneModel) renderWorkerList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Workers")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Starting..."))
	}
	for i, id := range m.order {
		w := m.workers[id]
		line := fmt.Sprintf("%s #%d %-12s %d✓ %d✗", StateIcon(w.State), w.ID, w.State, w.Completed, w.Failed)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")

		if w.TaskID != 0 {
			text := fmt.Sprintf("   task %d: %s", w.TaskID, w.TaskText)
			if len(text) > width-1 {
				text = text[:width-4] + "..."
			}
			b.WriteString(StyleStatusPending.Render(text))
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StateIcon returns a styled indicator for a worker state.
func StateIcon(state string) string {
	switch state {
	case "running", "initializing":
		return StyleStatusRunning.Render("●")
	case "merging":
		return StyleStatusMerging.Render("⇄")
	case "done":
		return StyleStatusComplete.Render("✓")
	case "error":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Worker returns the view of worker id.
func (m WorkerPaneModel) Worker(id int) (WorkerView, bool) {
	w, ok := m.workers[id]
	if !ok {
		return WorkerView{}, false
	}
	return *w, true
}

func (m WorkerPaneModel) selectedWorker() int {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return 0
}

// updateViewportContent shows the selected worker's output.
func (m *WorkerPaneModel) updateViewportContent() {
	w, ok := m.workers[m.selectedWorker()]
	if !ok || len(w.Output) == 0 {
		m.viewport.SetContent("Waiting for output...")
		return
	}

	m.viewport.SetContent(strings.Join(w.Output, "\n"))
	// Auto-scroll to bottom
	m.viewport.GotoBottom()
}

func (m *WorkerPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-30-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *WorkerPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *WorkerPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
