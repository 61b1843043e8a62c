package ops

import (
	"encoding/json"

	"github.com/hpungsan/chunkwise/internal/errors"
)

// AnalysisOutput holds the recall analysis document.
type AnalysisOutput struct {
	Analysis json.RawMessage `json:"analysis"`
}

// LoadAnalysis returns the saved analysis document.
func LoadAnalysis(d *Deps) (*AnalysisOutput, error) {
	doc, err := d.Library.LoadAnalysis()
	if err != nil {
		return nil, err
	}
	return &AnalysisOutput{Analysis: doc}, nil
}

// SaveAnalysisInput replaces the analysis document.
type SaveAnalysisInput struct {
	Analysis json.RawMessage `json:"analysis"`
}

// SaveAnalysisOutput confirms the save.
type SaveAnalysisOutput struct {
	Saved bool `json:"saved"`
}

// SaveAnalysis stores any JSON value as the analysis document.
func SaveAnalysis(d *Deps, input SaveAnalysisInput) (*SaveAnalysisOutput, error) {
	if len(input.Analysis) == 0 || string(input.Analysis) == "null" {
		return nil, errors.NewInvalidRequest("analysis is required")
	}
	if err := d.Library.SaveAnalysis(input.Analysis); err != nil {
		return nil, err
	}
	return &SaveAnalysisOutput{Saved: true}, nil
}
