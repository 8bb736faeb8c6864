package worker

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aristath/swarm/internal/backend"
	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/worktree"
)

// fakeProvider is an in-memory worktree.Provider. Conflicted files are
// served from conflicts; resolved content lands in written.
type fakeProvider struct {
	mu sync.Mutex

	createErr error
	removeErr error
	commitErr error
	merge     worktree.MergeAttempt
	conflicts map[string]string
	order     []string // Conflicted file order
	finalErr  error

	created  []string // Branches
	removed  []string // Paths
	deleted  []string // Branches
	commits  []string // Messages
	written  map[string]string
	staged   []string
	aborted  int
	finalize int
	pruned   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		merge:     worktree.MergeAttempt{Success: true, CommitHash: "abc123"},
		conflicts: make(map[string]string),
		written:   make(map[string]string),
	}
}

func (f *fakeProvider) withConflicts(files ...string) {
	f.merge = worktree.MergeAttempt{HasConflicts: true, ConflictFiles: files}
	f.order = files
	for _, file := range files {
		f.conflicts[file] = "<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> branch\n"
	}
}

func (f *fakeProvider) CreateInstance(_ context.Context, _, path, branch, _ string) (*worktree.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, branch)
	return &worktree.Instance{Path: path, Branch: branch, Head: strings.Repeat("0", 40)}, nil
}

func (f *fakeProvider) RemoveInstance(_ context.Context, _, path string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return f.removeErr
}

func (f *fakeProvider) AttemptMerge(context.Context, string, string, string, worktree.MergeOptions) worktree.MergeAttempt {
	return f.merge
}

func (f *fakeProvider) ListConflictedFiles(context.Context, string) ([]string, error) {
	return f.order, nil
}

func (f *fakeProvider) ReadConflictedFile(_, file string) (string, error) {
	content, ok := f.conflicts[file]
	if !ok {
		return "", errors.New("not conflicted: " + file)
	}
	return content, nil
}

func (f *fakeProvider) WriteResolvedFile(_, file, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[file] = content
	return nil
}

func (f *fakeProvider) StageFile(_ context.Context, _, file string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged = append(f.staged, file)
	return nil
}

func (f *fakeProvider) FinalizeMerge(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalize++
	if f.finalErr != nil {
		return "", f.finalErr
	}
	return "def456", nil
}

func (f *fakeProvider) AbortMerge(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	return nil
}

func (f *fakeProvider) DeleteBranch(_ context.Context, _, branch string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, branch)
	return nil
}

func (f *fakeProvider) PruneStale(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned++
	return nil
}

func (f *fakeProvider) CommitAll(_ context.Context, _, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return false, f.commitErr
	}
	f.commits = append(f.commits, message)
	return true, nil
}

// fakeAgent returns canned responses. resolve maps a file name found in
// the prompt to the content returned for it.
type fakeAgent struct {
	mu sync.Mutex

	resp       *backend.TaskResponse
	err        error
	events     []backend.StreamEvent
	resolve    map[string]string
	resolveErr error

	prompts  []string
	resolved []string
}

func (a *fakeAgent) Execute(_ context.Context, req backend.TaskRequest) (*backend.TaskResponse, error) {
	a.mu.Lock()
	a.prompts = append(a.prompts, req.Prompt)
	a.mu.Unlock()

	if req.OnEvent != nil {
		for _, ev := range a.events {
			req.OnEvent(ev)
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	if a.resp == nil {
		return &backend.TaskResponse{Success: true, Completed: true, Model: backend.ModelSonnet, InputTokens: 100, OutputTokens: 50}, nil
	}
	return a.resp, nil
}

func (a *fakeAgent) Resolve(_ context.Context, req backend.ResolveRequest) (*backend.ResolveResponse, error) {
	if a.resolveErr != nil {
		return nil, a.resolveErr
	}
	for file, content := range a.resolve {
		if strings.Contains(req.Prompt, "The file "+file+" ") {
			a.mu.Lock()
			a.resolved = append(a.resolved, file)
			a.mu.Unlock()
			return &backend.ResolveResponse{Content: content, Model: backend.ModelOpus, InputTokens: 10, OutputTokens: 20}, nil
		}
	}
	return &backend.ResolveResponse{Model: backend.ModelOpus}, nil
}

// recorder captures emitted events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states(workerID int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if s, ok := ev.(events.WorkerStateEvent); ok && s.WorkerID == workerID {
			out = append(out, s.State)
		}
	}
	return out
}

func (r *recorder) ofType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.EventType() == eventType {
			out = append(out, ev)
		}
	}
	return out
}
