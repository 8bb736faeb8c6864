// Package tasklist reads ordered task lists from disk.
//
// Three formats are accepted, chosen by file extension:
//   - .md / .markdown: "- [ ] task" checklist items; checked items are done
//   - .yaml / .yml: a "tasks" list of strings or {title, depends, parallel} maps
//   - anything else: one task per non-blank line, "#" starts a comment
//
// The result is a list of raw task lines that still carry their
// "[depends: ...]" and "[parallel: ...]" markers for the scheduler to parse.
// In a checklist those markers count every item in file order, checked or
// not; ParseMarkdown renumbers them to positions in the returned list.
package tasklist

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/swarm/internal/scheduler"
)

var checklistPattern = regexp.MustCompile(`^\s*[-*]\s+\[([ xX])\]\s+(.+)$`)

// maxLineSize bounds a single task line.
const maxLineSize = 1024 * 1024

// Load reads the task file at path.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task list: %w", err)
	}

	var tasks []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		tasks, err = ParseMarkdown(data)
	case ".yaml", ".yml":
		tasks, err = ParseYAML(data)
	default:
		tasks, err = ParsePlain(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("task list %s contains no tasks", path)
	}
	return tasks, nil
}

func newScanner(data []byte) *bufio.Scanner {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

type checklistItem struct {
	text string
	done bool
}

// ParseMarkdown returns the unchecked checklist items in document order.
// Dependency ids count every checklist item; a dependency on a checked item
// is already satisfied and is dropped.
func ParseMarkdown(data []byte) ([]string, error) {
	var items []checklistItem
	scanner := newScanner(data)
	for scanner.Scan() {
		m := checklistPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		items = append(items, checklistItem{text: strings.TrimSpace(m[2]), done: m[1] != " "})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Item position to task id
	ids := make(map[int]int, len(items))
	checked := 0
	for i, item := range items {
		if item.done {
			checked++
			continue
		}
		ids[i+1] = i + 1 - checked
	}
	renumber := func(id int) (int, bool) {
		if id > len(items) {
			// Still past the end, so validation reports it
			return id - checked, true
		}
		n, ok := ids[id]
		return n, ok
	}

	var tasks []string
	for _, item := range items {
		if item.done {
			continue
		}
		text := item.text
		if checked > 0 {
			text = scheduler.RenumberDependencies(text, renumber)
		}
		tasks = append(tasks, text)
	}
	return tasks, nil
}

// ParsePlain returns every non-blank, non-comment line.
func ParsePlain(data []byte) ([]string, error) {
	var tasks []string
	scanner := newScanner(data)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

type yamlFile struct {
	Tasks []yamlTask `yaml:"tasks"`
}

type yamlTask struct {
	Title    string `yaml:"title"`
	Depends  []int  `yaml:"depends"`
	Parallel *bool  `yaml:"parallel"`
}

// UnmarshalYAML accepts either a bare string or a mapping.
func (t *yamlTask) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Title = node.Value
		return nil
	}
	type plain yamlTask
	return node.Decode((*plain)(t))
}

// line renders the task with scheduling markers appended.
func (t yamlTask) line() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(t.Title))
	if len(t.Depends) > 0 {
		ids := make([]string, len(t.Depends))
		for i, d := range t.Depends {
			ids[i] = strconv.Itoa(d)
		}
		fmt.Fprintf(&b, " [depends: %s]", strings.Join(ids, ", "))
	}
	if t.Parallel != nil {
		fmt.Fprintf(&b, " [parallel: %t]", *t.Parallel)
	}
	return b.String()
}

// ParseYAML decodes a "tasks:" document.
func ParseYAML(data []byte) ([]string, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	tasks := make([]string, 0, len(f.Tasks))
	for i, t := range f.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("task %d has no title", i+1)
		}
		tasks = append(tasks, t.line())
	}
	return tasks, nil
}
