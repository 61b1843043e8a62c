package analysis

import "encoding/json"

// Scene is one recallable moment in the default analysis schema:
// {"scenes":[{"id":..,"memory":..,"entities":[{"text":..}]}]}.
type Scene struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Memory   string          `json:"memory"`
	Entities []Entity        `json:"entities"`
}

// Entity is a phrase of a memory the player has to recall.
type Entity struct {
	Text string `json:"text"`
}

// Scenes decodes the scenes of a result. Results not following the schema,
// including string results, have none.
func (r Result) Scenes() []Scene {
	var doc struct {
		Scenes []Scene `json:"scenes"`
	}
	if err := json.Unmarshal(r, &doc); err != nil {
		return nil
	}
	return doc.Scenes
}

// CountScenes sums the scenes across results.
func CountScenes(results []Result) int {
	n := 0
	for _, r := range results {
		n += len(r.Scenes())
	}
	return n
}
