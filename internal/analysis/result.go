package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result is an analysis value as returned to callers and kept in the cache.
// It always holds a single well-formed JSON value; text the service returned
// that was not JSON is carried as a JSON string.
type Result json.RawMessage

// String wraps plain text as a string Result.
func String(s string) Result {
	data, _ := json.Marshal(s)
	return Result(data)
}

// Parse validates data as JSON and returns it as a Result.
func Parse(data []byte) (Result, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON value")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Result(buf), nil
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	if r == nil {
		return fmt.Errorf("analysis.Result: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], data...)
	return nil
}

// Bytes returns the serialized value.
func (r Result) Bytes() []byte {
	return []byte(r)
}

// IsString reports whether the value is a JSON string, which is how
// non-JSON service output is kept.
func (r Result) IsString() bool {
	trimmed := bytes.TrimSpace(r)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

// Text returns the decoded string for string results.
func (r Result) Text() (string, bool) {
	if !r.IsString() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return "", false
	}
	return s, true
}

// Indent returns the value pretty-printed with two-space indentation.
func (r Result) Indent() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, r, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
