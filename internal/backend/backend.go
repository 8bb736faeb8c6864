package backend

import (
	"context"
	"fmt"
)

// Agent is the content-generation collaborator: it performs tasks in a
// worktree and writes merged versions of conflicted files.
//
// A returned error means the agent could not be run at all (missing binary,
// crash, cancellation). A task the agent attempted and gave up on comes back
// as a TaskResponse with Success false and a nil error.
type Agent interface {
	Execute(ctx context.Context, req TaskRequest) (*TaskResponse, error)
	Resolve(ctx context.Context, req ResolveRequest) (*ResolveResponse, error)
}

// New creates an agent for cfg.Type.
func New(cfg Config, pm *ProcessManager) (Agent, error) {
	switch cfg.Type {
	case "", "claude":
		return NewClaudeAgent(cfg, pm), nil
	default:
		return nil, fmt.Errorf("unknown agent type: %s", cfg.Type)
	}
}
