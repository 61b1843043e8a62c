package analysis

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

const fence = "```"

// labels are the language tags the service puts in front of JSON payloads.
var labels = []string{"json5", "jsonc", "json"}

// Normalize turns raw completion text into a Result. It never fails:
//  1. A surrounding ``` fence (with optional language tag) is removed.
//  2. A bare leading language label such as "json" is removed.
//  3. Valid JSON is returned compacted; anything else becomes a JSON string.
func Normalize(raw string) Result {
	text := strings.TrimSpace(raw)

	if len(text) >= 2*len(fence) && strings.HasPrefix(text, fence) && strings.HasSuffix(text, fence) {
		text = text[len(fence) : len(text)-len(fence)]
		text = dropFenceTag(text)
	}
	text = strings.TrimSpace(text)
	text = dropLabel(text)

	if json.Valid([]byte(text)) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(text)); err == nil {
			return Result(buf.Bytes())
		}
	}
	return String(text)
}

// dropFenceTag removes the info string of an opening fence, which runs to
// the end of the first line.
func dropFenceTag(text string) string {
	line, rest, found := strings.Cut(text, "\n")
	if !found {
		// Single-line fence: only a recognised label can be stripped.
		return dropLabel(strings.TrimSpace(line))
	}
	tag := strings.TrimSpace(line)
	if tag == "" || isTag(tag) {
		return rest
	}
	return text
}

func isTag(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '+' {
			return false
		}
	}
	return true
}

// dropLabel strips a leading language label when it is followed by
// whitespace, an opening bracket, or nothing.
func dropLabel(text string) string {
	for _, label := range labels {
		if len(text) < len(label) || !strings.EqualFold(text[:len(label)], label) {
			continue
		}
		rest := text[len(label):]
		if rest == "" {
			return ""
		}
		switch c := rest[0]; {
		case c == '{' || c == '[':
			return rest
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			return strings.TrimSpace(rest)
		}
	}
	return text
}
