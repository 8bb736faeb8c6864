package worker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aristath/swarm/internal/backend"
	"github.com/aristath/swarm/internal/worktree"
)

// ErrNoResolution is returned when the agent produced nothing usable for a
// conflicted file.
var ErrNoResolution = errors.New("no usable resolution")

var markerPattern = regexp.MustCompile(`(?m)^(<{7}|>{7})(\s|$)|^={7}\s*$`)

// HasConflictMarkers reports whether content still contains git conflict markers.
func HasConflictMarkers(content string) bool {
	return markerPattern.MatchString(content)
}

// Resolution summarizes a successful or partial conflict resolution.
type Resolution struct {
	Files        []string // Files written and staged, in order
	InputTokens  int
	OutputTokens int
	Model        string
}

// ConflictResolver rewrites the conflicted files of an in-progress merge
// using the agent. Files are handled one at a time; the first failure stops
// the pass. The caller finalizes or aborts the merge.
type ConflictResolver struct {
	provider worktree.Provider
	agent    backend.Agent
}

// NewConflictResolver creates a resolver.
func NewConflictResolver(provider worktree.Provider, agent backend.Agent) *ConflictResolver {
	return &ConflictResolver{provider: provider, agent: agent}
}

// Resolve resolves every conflicted file under root. The returned
// Resolution is non-nil even on error so token usage can be accounted.
func (r *ConflictResolver) Resolve(ctx context.Context, root string, onEvent func(backend.StreamEvent)) (*Resolution, error) {
	res := &Resolution{}

	files, err := r.provider.ListConflictedFiles(ctx, root)
	if err != nil {
		return res, fmt.Errorf("failed to list conflicted files: %w", err)
	}

	for _, file := range files {
		content, err := r.provider.ReadConflictedFile(root, file)
		if err != nil {
			return res, fmt.Errorf("failed to read %s: %w", file, err)
		}

		resp, err := r.agent.Resolve(ctx, backend.ResolveRequest{
			WorkDir: root,
			Prompt:  BuildConflictPrompt(file, content),
			OnEvent: onEvent,
		})
		if err != nil {
			return res, fmt.Errorf("%w for %s: %w", ErrNoResolution, file, err)
		}

		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens
		if resp.Model != "" {
			res.Model = resp.Model
		}

		if strings.TrimSpace(resp.Content) == "" {
			return res, fmt.Errorf("%w for %s: empty response", ErrNoResolution, file)
		}
		if HasConflictMarkers(resp.Content) {
			return res, fmt.Errorf("%w for %s: conflict markers remain", ErrNoResolution, file)
		}

		if err := r.provider.WriteResolvedFile(root, file, resp.Content); err != nil {
			return res, err
		}
		if err := r.provider.StageFile(ctx, root, file); err != nil {
			return res, err
		}
		res.Files = append(res.Files, file)
	}

	return res, nil
}
