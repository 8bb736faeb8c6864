package backend

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// StreamEventType is the "type" field of a stream-json line.
type StreamEventType string

const (
	StreamEventSystem    StreamEventType = "system"
	StreamEventAssistant StreamEventType = "assistant"
	StreamEventUser      StreamEventType = "user"
	StreamEventResult    StreamEventType = "result"
)

// CompletionMarker is emitted by the agent when it considers the task done.
const CompletionMarker = "<promise>COMPLETE</promise>"

var statusPattern = regexp.MustCompile(`(?m)^\s*STATUS:\s*(PASS|FAIL)(?::\s*(.*))?\s*$`)

// StreamEvent is one parsed line of claude --output-format stream-json.
type StreamEvent struct {
	Type         StreamEventType
	Subtype      string
	Text         string // Assistant text, or the final result for result events
	ToolAction   string // Short description of a tool call, e.g. "Editing main.go"
	IsError      bool
	SessionID    string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

type streamUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

type streamMessage struct {
	Model   string        `json:"model"`
	Content []streamBlock `json:"content"`
	Usage   *streamUsage  `json:"usage"`
}

type streamLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Model     string          `json:"model"`
	IsError   bool            `json:"is_error"`
	Result    string          `json:"result"`
	CostUSD   float64         `json:"total_cost_usd"`
	Usage     *streamUsage    `json:"usage"`
	Message   json.RawMessage `json:"message"`
}

// ParseStreamLine decodes one line. ok is false for blank or malformed lines,
// which callers skip.
func ParseStreamLine(line []byte) (StreamEvent, bool) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return StreamEvent{}, false
	}

	var raw streamLine
	if err := json.Unmarshal(line, &raw); err != nil || raw.Type == "" {
		return StreamEvent{}, false
	}

	ev := StreamEvent{
		Type:      StreamEventType(raw.Type),
		Subtype:   raw.Subtype,
		IsError:   raw.IsError,
		SessionID: raw.SessionID,
		Model:     raw.Model,
		CostUSD:   raw.CostUSD,
	}
	if raw.Usage != nil {
		ev.InputTokens = raw.Usage.InputTokens
		ev.OutputTokens = raw.Usage.OutputTokens
	}

	if ev.Type == StreamEventResult {
		ev.Text = raw.Result
		return ev, true
	}

	if len(raw.Message) == 0 {
		return ev, true
	}

	// message is an object in current CLI versions and a plain string in older ones
	var text string
	if err := json.Unmarshal(raw.Message, &text); err == nil {
		ev.Text = text
		return ev, true
	}

	var msg streamMessage
	if err := json.Unmarshal(raw.Message, &msg); err != nil {
		return ev, true
	}
	if msg.Model != "" {
		ev.Model = msg.Model
	}
	if msg.Usage != nil {
		ev.InputTokens = msg.Usage.InputTokens
		ev.OutputTokens = msg.Usage.OutputTokens
	}

	var parts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			parts = append(parts, block.Text)
		case "tool_use":
			if ev.ToolAction == "" {
				ev.ToolAction = formatToolAction(block.Name, block.Input)
			}
		}
	}
	ev.Text = strings.Join(parts, "")

	return ev, true
}

// formatToolAction turns a tool_use block into a short status line.
func formatToolAction(name string, input map[string]interface{}) string {
	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}

	switch name {
	case "Read":
		if p := str("file_path"); p != "" {
			return "Reading " + Truncate(filepath.Base(p), 30)
		}
		return "Reading file"
	case "Edit", "MultiEdit":
		if p := str("file_path"); p != "" {
			return "Editing " + Truncate(filepath.Base(p), 30)
		}
		return "Editing file"
	case "Write":
		if p := str("file_path"); p != "" {
			return "Writing " + Truncate(filepath.Base(p), 30)
		}
		return "Writing file"
	case "Bash":
		if fields := strings.Fields(str("command")); len(fields) > 0 {
			return "Running " + Truncate(fields[0], 20)
		}
		return "Running command"
	case "Glob", "Grep":
		if p := str("pattern"); p != "" {
			return "Searching " + Truncate(p, 20)
		}
		return "Searching files"
	case "":
		return ""
	default:
		return name
	}
}

// Truncate shortens s to at most n runes, ending in "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// streamOutcome accumulates the events of one invocation.
type streamOutcome struct {
	text         strings.Builder // concatenated assistant text
	result       string
	resultSeen   bool
	isError      bool
	inputTokens  int
	outputTokens int
	model        string
	costUSD      float64
}

func (o *streamOutcome) add(ev StreamEvent) {
	switch ev.Type {
	case StreamEventSystem:
		if ev.Model != "" {
			o.model = ev.Model
		}
	case StreamEventAssistant:
		if ev.Text != "" {
			o.text.WriteString(ev.Text)
			o.text.WriteString("\n")
		}
		if ev.Model != "" && o.model == "" {
			o.model = ev.Model
		}
		// Running totals until the result event reports the final usage
		if !o.resultSeen {
			o.inputTokens += ev.InputTokens
			o.outputTokens += ev.OutputTokens
		}
	case StreamEventResult:
		o.resultSeen = true
		o.result = ev.Text
		o.isError = ev.IsError
		o.costUSD = ev.CostUSD
		if ev.InputTokens > 0 || ev.OutputTokens > 0 {
			o.inputTokens = ev.InputTokens
			o.outputTokens = ev.OutputTokens
		}
	}
}

// finalText prefers the result event and falls back to assistant text.
func (o *streamOutcome) finalText() string {
	if o.resultSeen && o.result != "" {
		return o.result
	}
	return strings.TrimSpace(o.text.String())
}

// taskVerdict interprets the final text of a task run. An explicit
// "STATUS: FAIL: reason" line fails the task; anything else that was not an
// error result succeeds.
func taskVerdict(o *streamOutcome) (success bool, reason string) {
	if o.isError {
		reason = strings.TrimSpace(o.result)
		if reason == "" {
			reason = "agent reported an error"
		}
		return false, reason
	}

	text := o.finalText()
	matches := statusPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		last := matches[len(matches)-1]
		if strings.EqualFold(last[1], "FAIL") {
			reason = strings.TrimSpace(last[2])
			if reason == "" {
				reason = "agent reported failure"
			}
			return false, reason
		}
	}
	return true, ""
}

var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z0-9_+.-]*\\n(.*?)\\n?```$")

// stripCodeFence removes one surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return m[1] + "\n"
	}
	return s
}
