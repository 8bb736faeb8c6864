package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/swarm/internal/events"
)

// GraphPaneModel shows task graph progress and merge results.
type GraphPaneModel struct {
	progress events.GraphProgressEvent
	merges   []string
	width    int
	height   int
	focused  bool
}

// NewGraphPaneModel creates a new graph pane model.
func NewGraphPaneModel() GraphPaneModel {
	return GraphPaneModel{}
}

// Update handles messages for the graph pane.
func (m GraphPaneModel) Update(msg tea.Msg) (GraphPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.GraphProgressEvent:
		m.progress = msg

	case events.MergeEvent:
		var line string
		switch {
		case msg.Resolved:
			line = fmt.Sprintf("%s %s (resolved %d files)", StyleStatusComplete.Render("✓"), msg.Branch, len(msg.ConflictFiles))
		case msg.Success:
			line = fmt.Sprintf("%s %s", StyleStatusComplete.Render("✓"), msg.Branch)
		default:
			line = fmt.Sprintf("%s %s", StyleStatusFailed.Render("✗"), msg.Branch)
		}
		m.merges = append(m.merges, line)
	}

	return m, nil
}

// View renders the graph pane.
func (m GraphPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	p := m.progress

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:     %d\n", p.Total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", p.Completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", p.Running))))
	b.WriteString(fmt.Sprintf("Ready:     %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", p.Ready))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", p.Pending))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", p.Failed))))
	b.WriteString(fmt.Sprintf("Blocked:   %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", p.Blocked))))

	b.WriteString("\n")

	if p.Total > 0 {
		b.WriteString(progressBar(p, min(m.width-14, 40)))
		b.WriteString("\n")
	}

	if len(m.merges) > 0 {
		b.WriteString("\n")
		b.WriteString(StyleTitle.Render("Merges"))
		b.WriteString("\n")
		for _, line := range m.merges {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// progressBar renders finished, running and outstanding tasks as one bar.
func progressBar(p events.GraphProgressEvent, width int) string {
	width = max(width, 10)
	completedWidth := (p.Completed * width) / p.Total
	failedWidth := ((p.Failed + p.Blocked) * width) / p.Total
	runningWidth := (p.Running * width) / p.Total
	pendingWidth := width - completedWidth - failedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

	return fmt.Sprintf("[%s]  %d/%d", bar, p.Completed+p.Failed+p.Blocked, p.Total)
}

// SetSize updates the pane dimensions.
func (m *GraphPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *GraphPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
