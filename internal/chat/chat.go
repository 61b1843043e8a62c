package chat

import (
	"fmt"

	"github.com/hpungsan/chunkwise/internal/errors"
)

// MaxBatchSize is the largest number of chunks a single batch may carry.
const MaxBatchSize = 10

// Message is a single chat line as exported by the messaging app.
type Message struct {
	// Date is the calendar date as written in the export (e.g. "dd/mm/yyyy")
	Date string `json:"date"`

	// Time is the wall-clock time as written in the export ("hh:mm" or "hh:mm:ss")
	Time string `json:"time"`

	Author string `json:"author"`
	Text   string `json:"text"`
}

// DayChunk groups the messages of one calendar day.
// A chunk is identified by its position in the conversation, not by Date.
type DayChunk struct {
	Date     string    `json:"date"`
	Messages []Message `json:"messages"`
}

// Import is a named conversation split into day chunks.
type Import struct {
	Name   string     `json:"name"`
	Chunks []DayChunk `json:"chunks"`
}

// Batch is a contiguous run of chunks from one conversation.
// Chunk i of the batch has global index StartIndex+i.
type Batch struct {
	ConversationID string     `json:"name"`
	StartIndex     int        `json:"start"`
	Chunks         []DayChunk `json:"chunks"`
}

// Validate checks the batch shape before any cache or service access.
func (b *Batch) Validate() error {
	if b.ConversationID == "" {
		return errors.NewInvalidRequest("name is required")
	}
	if b.StartIndex < 0 {
		return errors.NewInvalidRequest(fmt.Sprintf("start must be >= 0, got %d", b.StartIndex))
	}
	if len(b.Chunks) > MaxBatchSize {
		return errors.NewInvalidRequest(fmt.Sprintf("batch has %d chunks, max is %d", len(b.Chunks), MaxBatchSize))
	}
	return nil
}

// GlobalIndex returns the conversation-wide index of the i-th chunk in the batch.
func (b *Batch) GlobalIndex(i int) int {
	return b.StartIndex + i
}

// SplitBatches cuts imp into consecutive batches of at most size chunks,
// beginning at chunk start and covering at most limit chunks (0 means all).
// Size is clamped to 1..MaxBatchSize.
func SplitBatches(imp *Import, start, limit, size int) []Batch {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	if start < 0 {
		start = 0
	}
	end := len(imp.Chunks)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var batches []Batch
	for i := start; i < end; i += size {
		j := i + size
		if j > end {
			j = end
		}
		batches = append(batches, Batch{
			ConversationID: imp.Name,
			StartIndex:     i,
			Chunks:         imp.Chunks[i:j],
		})
	}
	return batches
}
