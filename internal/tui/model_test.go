package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/swarm/internal/events"
)

func TestWorkerPaneTracksEvents(t *testing.T) {
	m := NewWorkerPaneModel()

	for _, ev := range []tea.Msg{
		events.WorkerStateEvent{WorkerID: 2, State: "running", Branch: "swarm/x/worker-2"},
		events.WorkerStateEvent{WorkerID: 1, State: "idle"},
		events.TaskStartedEvent{TaskID: 4, WorkerID: 2, Text: "Write docs"},
		events.AgentOutputEvent{TaskID: 4, WorkerID: 2, Line: "Editing README.md"},
	} {
		m, _ = m.Update(ev)
	}

	w, ok := m.Worker(2)
	if !ok {
		t.Fatal("worker 2 not tracked")
	}
	if w.State != "running" || w.Branch != "swarm/x/worker-2" || w.TaskID != 4 {
		t.Errorf("worker 2 = %+v", w)
	}
	if len(w.Output) != 2 || w.Output[1] != "Editing README.md" {
		t.Errorf("output = %v", w.Output)
	}

	// Workers are listed by id regardless of arrival order
	if len(m.order) != 2 || m.order[0] != 1 || m.order[1] != 2 {
		t.Errorf("order = %v", m.order)
	}

	m, _ = m.Update(events.TaskFailedEvent{TaskID: 4, WorkerID: 2, Err: "gave up"})
	w, _ = m.Worker(2)
	if w.Failed != 1 || w.TaskID != 0 {
		t.Errorf("after failure worker 2 = %+v", w)
	}
	if last := w.Output[len(w.Output)-1]; !strings.Contains(last, "gave up") {
		t.Errorf("last output line = %q", last)
	}
}

func TestWorkerPaneOutputIsBounded(t *testing.T) {
	m := NewWorkerPaneModel()
	for i := 0; i < maxOutputLines+50; i++ {
		m, _ = m.Update(events.AgentOutputEvent{WorkerID: 1, Line: "line"})
	}

	w, _ := m.Worker(1)
	if len(w.Output) != maxOutputLines {
		t.Errorf("kept %d lines, want %d", len(w.Output), maxOutputLines)
	}
}

func TestModelQuitsWhenRunFinishes(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "run1", nil)
	next, cmd := m.Update(events.RunFinishedEvent{RunID: "run1"})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !next.(Model).Finished() {
		t.Error("model should report the run as finished")
	}
}

func TestModelQuitStopsRun(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	stopped := false
	m := New(bus, "run1", func() { stopped = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if !stopped {
		t.Error("quitting before the run finished should stop it")
	}
}

func TestModelFocusCycles(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	var tm tea.Model = New(bus, "run1", nil)
	tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := tm.(Model).focusedPane; got != PaneGraph {
		t.Errorf("after tab focus = %d, want PaneGraph", got)
	}
	tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := tm.(Model).focusedPane; got != PaneWorkers {
		t.Errorf("after second tab focus = %d, want PaneWorkers", got)
	}
}

func TestProgressBar(t *testing.T) {
	bar := progressBar(events.GraphProgressEvent{Total: 4, Completed: 2, Failed: 1, Running: 1}, 20)
	if !strings.HasSuffix(bar, "3/4") {
		t.Errorf("progressBar = %q", bar)
	}
}
