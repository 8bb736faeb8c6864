package backend

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseStreamLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantOK bool
		check  func(t *testing.T, ev StreamEvent)
	}{
		{
			name:   "blank",
			line:   "   ",
			wantOK: false,
		},
		{
			name:   "malformed",
			line:   "{not json",
			wantOK: false,
		},
		{
			name:   "missing type",
			line:   `{"foo":1}`,
			wantOK: false,
		},
		{
			name:   "system init",
			line:   `{"type":"system","subtype":"init","model":"claude-opus-4-5","session_id":"abc"}`,
			wantOK: true,
			check: func(t *testing.T, ev StreamEvent) {
				if ev.Type != StreamEventSystem || ev.Model != "claude-opus-4-5" || ev.SessionID != "abc" {
					t.Errorf("ev = %+v", ev)
				}
			},
		},
		{
			name:   "assistant text blocks joined",
			line:   `{"type":"assistant","message":{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}`,
			wantOK: true,
			check: func(t *testing.T, ev StreamEvent) {
				if ev.Text != "ab" {
					t.Errorf("Text = %q", ev.Text)
				}
			},
		},
		{
			name:   "assistant string message",
			line:   `{"type":"assistant","message":"hello"}`,
			wantOK: true,
			check: func(t *testing.T, ev StreamEvent) {
				if ev.Text != "hello" {
					t.Errorf("Text = %q", ev.Text)
				}
			},
		},
		{
			name:   "bash tool",
			line:   `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"go test ./..."}}]}}`,
			wantOK: true,
			check: func(t *testing.T, ev StreamEvent) {
				if ev.ToolAction != "Running go" {
					t.Errorf("ToolAction = %q", ev.ToolAction)
				}
			},
		},
		{
			name:   "result with usage",
			line:   `{"type":"result","is_error":true,"result":"boom","usage":{"input_tokens":3,"output_tokens":4}}`,
			wantOK: true,
			check: func(t *testing.T, ev StreamEvent) {
				if !ev.IsError || ev.Text != "boom" || ev.InputTokens != 3 || ev.OutputTokens != 4 {
					t.Errorf("ev = %+v", ev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseStreamLine([]byte(tt.line))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestStreamOutcome_UsageFallback(t *testing.T) {
	o := &streamOutcome{}
	o.add(StreamEvent{Type: StreamEventAssistant, Text: "x", InputTokens: 5, OutputTokens: 1})
	o.add(StreamEvent{Type: StreamEventAssistant, Text: "y", InputTokens: 7, OutputTokens: 2})

	if o.inputTokens != 12 || o.outputTokens != 3 {
		t.Errorf("running totals = %d/%d, want 12/3", o.inputTokens, o.outputTokens)
	}
	if o.finalText() != "x\ny" {
		t.Errorf("finalText() = %q without a result event", o.finalText())
	}
}

func TestTaskVerdict(t *testing.T) {
	tests := []struct {
		name        string
		outcome     streamOutcome
		wantSuccess bool
		wantReason  string
	}{
		{"plain success", streamOutcome{resultSeen: true, result: "all done"}, true, ""},
		{"explicit pass", streamOutcome{resultSeen: true, result: "STATUS: PASS"}, true, ""},
		{"explicit fail", streamOutcome{resultSeen: true, result: "x\nSTATUS: FAIL: no tests"}, false, "no tests"},
		{"fail without reason", streamOutcome{resultSeen: true, result: "STATUS: FAIL"}, false, "agent reported failure"},
		{"last marker wins", streamOutcome{resultSeen: true, result: "STATUS: FAIL: first\nSTATUS: PASS"}, true, ""},
		{"error result", streamOutcome{resultSeen: true, isError: true, result: "limit"}, false, "limit"},
		{"error result empty", streamOutcome{resultSeen: true, isError: true}, false, "agent reported an error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := taskVerdict(&tt.outcome)
			if ok != tt.wantSuccess || reason != tt.wantReason {
				t.Errorf("taskVerdict = (%v, %q), want (%v, %q)", ok, reason, tt.wantSuccess, tt.wantReason)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain\ncontent\n", "plain\ncontent\n"},
		{"```\nfenced\n```", "fenced\n"},
		{"```typescript\nexport const a = 1;\n```\n", "export const a = 1;\n"},
		{"text ```inline``` text", "text ```inline``` text"},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"short", "main.go", 30, "main.go"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii", "abcdefghij", 8, "abcde..."},
		{"multibyte kept whole", "héllo wörld", 11, "héllo wörld"},
		{"multibyte cut", "日本語のファイル名.go", 8, "日本語のフ..."},
		{"tiny limit", "abcdef", 2, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.s, tt.n)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Truncate(%q, %d) is not valid UTF-8", tt.s, tt.n)
			}
			if utf8.RuneCountInString(got) > tt.n {
				t.Errorf("Truncate(%q, %d) has %d runes", tt.s, tt.n, utf8.RuneCountInString(got))
			}
		})
	}

	if got := formatToolAction("Read", map[string]interface{}{"file_path": "/src/" + strings.Repeat("ü", 40)}); !utf8.ValidString(got) {
		t.Errorf("tool description %q is not valid UTF-8", got)
	}
}
