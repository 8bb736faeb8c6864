package worker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aristath/swarm/internal/backend"
)

// BuildTaskPrompt returns the instructions for executing a single task. The
// prompt names only this task so the agent does not wander into the rest of
// the list.
func BuildTaskPrompt(taskText string) string {
	var b strings.Builder

	b.WriteString("You are one of several workers implementing a task list in parallel.\n")
	b.WriteString("Each worker has its own git worktree; your changes are merged later.\n\n")
	b.WriteString("Implement exactly this task and nothing else:\n\n")
	fmt.Fprintf(&b, "    %s\n\n", taskText)
	b.WriteString("Rules:\n")
	b.WriteString("- Work only inside the current directory.\n")
	b.WriteString("- Do not start on other tasks, even if you can see what they would need.\n")
	b.WriteString("- Keep unrelated files untouched so merges stay small.\n")
	b.WriteString("- You do not need to commit; uncommitted changes are committed for you.\n\n")
	b.WriteString("When you are finished, end your final message with one of:\n")
	b.WriteString("    STATUS: PASS\n")
	b.WriteString("    STATUS: FAIL: <one-line reason>\n")
	fmt.Fprintf(&b, "followed by %s on its own line.\n", backend.CompletionMarker)

	return b.String()
}

// BuildConflictPrompt returns the instructions for merging one conflicted
// file. content still contains the conflict markers.
func BuildConflictPrompt(file, content string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The file %s has git merge conflicts between two branches that\n", file)
	b.WriteString("implemented different tasks in parallel. Produce the merged file.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Preserve all functionality from BOTH sides of every conflict.\n")
	b.WriteString("- Where both sides add imports, exports, declarations or definitions, keep all of them.\n")
	b.WriteString("- Do not leave any conflict markers (<<<<<<<, =======, >>>>>>>).\n")
	b.WriteString("- Output ONLY the complete resolved file content. No explanation, no commentary.\n\n")

	lang := strings.TrimPrefix(filepath.Ext(file), ".")
	fmt.Fprintf(&b, "```%s\n%s", lang, content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	return b.String()
}

// commitMessage is used for the automatic commit after a successful task.
func commitMessage(taskID int, taskText string) string {
	subject := taskText
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	return fmt.Sprintf("Task %d: %s", taskID, backend.Truncate(subject, 60))
}
