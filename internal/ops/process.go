package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/chunkwise/internal/chat"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/pipeline"
)

// ProcessInput is one batch of day chunks of a conversation.
type ProcessInput struct {
	Name   string          `json:"name"`
	Start  int             `json:"start"`
	Chunks []chat.DayChunk `json:"chunks"`
}

// Process runs one batch through the pipeline.
// On failure the partial result is returned with the error.
func Process(ctx context.Context, d *Deps, input ProcessInput) (*pipeline.BatchResult, error) {
	batch := &chat.Batch{
		ConversationID: input.Name,
		StartIndex:     input.Start,
		Chunks:         input.Chunks,
	}
	return d.Processor.Process(ctx, batch)
}

// ProcessImportInput selects the saved import to backfill and how far to go.
type ProcessImportInput struct {
	Name      string `json:"name"`
	Start     int    `json:"start,omitempty"`
	Resume    bool   `json:"resume,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	MinScenes int    `json:"min_scenes,omitempty"`
}

// ProcessImport backfills a saved import in batches.
// Batch size defaults to the configured batch_size.
func ProcessImport(ctx context.Context, d *Deps, input ProcessImportInput) (*pipeline.BackfillResult, error) {
	name, err := requireName(input.Name)
	if err != nil {
		return nil, err
	}
	if input.Start < 0 {
		return nil, errors.NewInvalidRequest("start must not be negative")
	}
	if input.Limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}
	if input.MinScenes < 0 {
		return nil, errors.NewInvalidRequest("min_scenes must not be negative")
	}
	if input.BatchSize < 0 || input.BatchSize > chat.MaxBatchSize {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("batch_size must be between 1 and %d", chat.MaxBatchSize))
	}

	imp, err := d.Library.FindImport(name)
	if err != nil {
		return nil, err
	}

	size := input.BatchSize
	if size == 0 && d.Config != nil {
		size = d.Config.BatchSize
	}
	return d.Processor.ProcessImport(ctx, imp, pipeline.BackfillOptions{
		Start:     input.Start,
		Resume:    input.Resume,
		Limit:     input.Limit,
		BatchSize: size,
		MinScenes: input.MinScenes,
	})
}
