package pipeline

import (
	"fmt"
	"os"
	"strings"
)

// DefaultSystemPrompt asks for recall scenes in the schema the UI plays back.
const DefaultSystemPrompt = `You turn one day of a chat conversation into memory-recall exercises.

The user message is a JSON object {"date": ..., "messages": [{"date", "time", "author", "text"}]}.

Pick the moments of that day worth remembering: plans, events, places, people, decisions, jokes.
For each moment write a short sentence in the third person (the "memory") and list the key phrases
of that sentence a reader should be able to recall (the "entities"). Every entity text must appear
verbatim in its memory. Skip greetings and small talk. Use the language of the conversation.

Reply with JSON only, no commentary, in exactly this shape:
{"scenes": [{"id": 1, "memory": "...", "entities": [{"text": "..."}]}]}

If nothing is worth remembering, reply {"scenes": []}.`

// LoadSystemPrompt reads a prompt file; an empty path selects DefaultSystemPrompt.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return prompt, nil
}
