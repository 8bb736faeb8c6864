package scheduler

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	dependsPattern  = regexp.MustCompile(`(?i)\[depends:\s*([^\]]*)\]`)
	parallelPattern = regexp.MustCompile(`(?i)\[parallel:\s*(true|false)\s*\]`)
	spacePattern    = regexp.MustCompile(`[ \t]{2,}`)
)

// Annotations holds the scheduling metadata embedded in a task line.
type Annotations struct {
	DependsOn      []int // 1-based task ids, ascending and de-duplicated
	Parallelizable bool
}

// ParseAnnotations extracts "[depends: 1, 2]" and "[parallel: true|false]"
// markers from a task line. Unparseable or non-positive ids are dropped.
// A task with dependencies is never parallelizable, regardless of its
// explicit parallel marker.
func ParseAnnotations(text string) Annotations {
	a := Annotations{Parallelizable: true}

	seen := make(map[int]bool)
	for _, m := range dependsPattern.FindAllStringSubmatch(text, -1) {
		for _, field := range strings.Split(m[1], ",") {
			id, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil || id <= 0 || seen[id] {
				continue
			}
			seen[id] = true
			a.DependsOn = append(a.DependsOn, id)
		}
	}
	sort.Ints(a.DependsOn)

	if m := parallelPattern.FindStringSubmatch(text); m != nil {
		a.Parallelizable = strings.EqualFold(m[1], "true")
	}
	if len(a.DependsOn) > 0 {
		a.Parallelizable = false
	}

	return a
}

// StripDependencyMetadata removes the depends/parallel markers and trims the
// result. Any other bracketed text is kept verbatim.
func StripDependencyMetadata(text string) string {
	out := dependsPattern.ReplaceAllString(text, "")
	out = parallelPattern.ReplaceAllString(out, "")
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// RenumberDependencies rewrites the ids in every "[depends: ...]" marker of
// text through renumber. Ids that renumber rejects are removed, and a marker
// left with no ids is removed entirely. Unparseable ids are kept verbatim.
func RenumberDependencies(text string, renumber func(id int) (int, bool)) string {
	out := dependsPattern.ReplaceAllStringFunc(text, func(marker string) string {
		m := dependsPattern.FindStringSubmatch(marker)
		var ids []string
		for _, field := range strings.Split(m[1], ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			id, err := strconv.Atoi(field)
			if err != nil {
				ids = append(ids, field)
				continue
			}
			if n, ok := renumber(id); ok {
				ids = append(ids, strconv.Itoa(n))
			}
		}
		if len(ids) == 0 {
			return ""
		}
		return "[depends: " + strings.Join(ids, ", ") + "]"
	})
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
