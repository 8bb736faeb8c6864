package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ClaudeAgent runs the Claude Code CLI once per request in print mode and
// reads its stream-json output.
type ClaudeAgent struct {
	command      string
	args         []string
	model        string
	maxTurns     int
	systemPrompt string
	procMgr      *ProcessManager
}

var _ Agent = (*ClaudeAgent)(nil)

// NewClaudeAgent creates a Claude Code agent.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewClaudeAgent(cfg Config, procMgr *ProcessManager) *ClaudeAgent {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	return &ClaudeAgent{
		command:      command,
		args:         append([]string(nil), cfg.Args...),
		model:        cfg.Model,
		maxTurns:     cfg.MaxTurns,
		systemPrompt: cfg.SystemPrompt,
		procMgr:      procMgr,
	}
}

// Execute runs a task prompt with the worktree as working directory.
func (a *ClaudeAgent) Execute(ctx context.Context, req TaskRequest) (*TaskResponse, error) {
	model := ResolveModel(a.model, CallSiteTask)

	outcome, err := a.run(ctx, req.WorkDir, req.Prompt, model, req.OnEvent)
	if err != nil {
		return nil, err
	}

	success, reason := taskVerdict(outcome)
	return &TaskResponse{
		Success:      success,
		Output:       outcome.finalText(),
		Error:        reason,
		Completed:    containsMarker(outcome.finalText()),
		InputTokens:  outcome.inputTokens,
		OutputTokens: outcome.outputTokens,
		Model:        outcome.model,
		CostUSD:      outcome.costUSD,
	}, nil
}

// Resolve asks for the merged content of one conflicted file. The final
// result text is the file content; a surrounding code fence is removed.
func (a *ClaudeAgent) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResponse, error) {
	model := ResolveModel(a.model, CallSiteResolve)

	outcome, err := a.run(ctx, req.WorkDir, req.Prompt, model, req.OnEvent)
	if err != nil {
		return nil, err
	}
	if outcome.isError {
		return nil, fmt.Errorf("agent reported an error: %s", outcome.result)
	}

	return &ResolveResponse{
		Content:      stripCodeFence(outcome.finalText()),
		InputTokens:  outcome.inputTokens,
		OutputTokens: outcome.outputTokens,
		Model:        outcome.model,
	}, nil
}

// buildArgs constructs the command-line arguments for the claude CLI.
func (a *ClaudeAgent) buildArgs(prompt, model string) []string {
	args := append([]string(nil), a.args...)
	args = append(args, "-p", prompt, "--output-format", "stream-json", "--verbose")

	if model != "" {
		args = append(args, "--model", model)
	}
	if a.maxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(a.maxTurns))
	}
	if a.systemPrompt != "" {
		args = append(args, "--append-system-prompt", a.systemPrompt)
	}

	return args
}

func (a *ClaudeAgent) run(ctx context.Context, workDir, prompt, model string, onEvent func(StreamEvent)) (*streamOutcome, error) {
	cmd := newCommand(ctx, a.command, a.buildArgs(prompt, model)...)
	cmd.Dir = workDir

	outcome := &streamOutcome{}
	_, err := streamCommand(cmd, a.procMgr, func(line []byte) {
		ev, ok := ParseStreamLine(line)
		if !ok {
			return
		}
		outcome.add(ev)
		if onEvent != nil {
			onEvent(ev)
		}
	})

	if outcome.model == "" {
		outcome.model = model
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	// The CLI exits non-zero after an error result; the result event is
	// the better description of what went wrong.
	if err != nil && !outcome.resultSeen {
		return nil, fmt.Errorf("%s failed: %w", a.command, err)
	}

	return outcome, nil
}

func containsMarker(text string) bool {
	return strings.Contains(text, CompletionMarker)
}
