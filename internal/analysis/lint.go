package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LintResult describes how well a stored result follows the scene schema.
type LintResult struct {
	Valid bool `json:"valid"`

	// Degraded is set for string results, i.e. service output that was not JSON.
	Degraded bool `json:"degraded,omitempty"`

	// Problems lists schema violations, one line each.
	Problems []string `json:"problems,omitempty"`
}

// Lint checks r against the default scene schema. Every entity must occur
// verbatim (ignoring case) in its scene's memory.
func Lint(r Result) *LintResult {
	res := &LintResult{Valid: true}
	if r.IsString() {
		res.Valid = false
		res.Degraded = true
		return res
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(r, &doc); err != nil {
		res.add("result is not an object")
		return res
	}
	raw, ok := doc["scenes"]
	if !ok {
		res.add("missing scenes")
		return res
	}
	var scenes []Scene
	if err := json.Unmarshal(raw, &scenes); err != nil {
		res.add("scenes is not a list of scene objects")
		return res
	}

	for i, s := range scenes {
		memory := strings.TrimSpace(s.Memory)
		if memory == "" {
			res.add(fmt.Sprintf("scene %d: empty memory", i))
			continue
		}
		lower := strings.ToLower(memory)
		for j, e := range s.Entities {
			text := strings.TrimSpace(e.Text)
			switch {
			case text == "":
				res.add(fmt.Sprintf("scene %d entity %d: empty text", i, j))
			case !strings.Contains(lower, strings.ToLower(text)):
				res.add(fmt.Sprintf("scene %d entity %d: %q not in memory", i, j, text))
			}
		}
	}
	return res
}

func (l *LintResult) add(problem string) {
	l.Valid = false
	l.Problems = append(l.Problems, problem)
}
