package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/chunkwise/internal/analysis"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/kv"
)

// Cache maps (conversation, chunk index) to a stored analysis result.
// Conversation IDs go through PartitionKey on every path.
type Cache struct {
	store kv.Store
}

// New returns a cache backed by store.
func New(store kv.Store) *Cache {
	return &Cache{store: store}
}

// PartitionKey maps a conversation ID to its storage partition name.
// Path separators and characters unsafe in file names become '_'.
// Distinct IDs such as "a/b" and "a_b" share a partition.
func PartitionKey(conversationID string) string {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, conversationID)
	if key == "" || key == "." || key == ".." {
		return "_"
	}
	return key
}

// Lookup returns the stored result for a chunk. A missing entry is reported
// with found=false, not an error.
func (c *Cache) Lookup(ctx context.Context, conversationID string, index int) (analysis.Result, bool, error) {
	data, found, err := c.store.Get(ctx, PartitionKey(conversationID), index)
	if err != nil {
		return nil, false, errors.NewStorage(conversationID, index, err)
	}
	if !found {
		return nil, false, nil
	}
	r, err := decode(data)
	if err != nil {
		return nil, false, errors.NewStorage(conversationID, index, err)
	}
	return r, true, nil
}

// Store persists a result. It returns only after the write is durable.
func (c *Cache) Store(ctx context.Context, conversationID string, index int, result analysis.Result) error {
	if !json.Valid(result) {
		return errors.NewStorage(conversationID, index, fmt.Errorf("refusing to store invalid JSON"))
	}
	if err := c.store.Put(ctx, PartitionKey(conversationID), index, result.Bytes()); err != nil {
		return errors.NewStorage(conversationID, index, err)
	}
	return nil
}

// IndexedResult is a stored result together with its chunk index.
type IndexedResult struct {
	Index  int             `json:"index"`
	Result analysis.Result `json:"result"`
}

// Entries returns every stored result of a conversation with its chunk
// index, by ascending index. Indices may have gaps.
func (c *Cache) Entries(ctx context.Context, conversationID string) ([]IndexedResult, error) {
	entries, err := c.store.Scan(ctx, PartitionKey(conversationID))
	if err != nil {
		return nil, errors.NewStorage(conversationID, -1, err)
	}
	out := make([]IndexedResult, 0, len(entries))
	for _, e := range entries {
		r, err := decode(e.Value)
		if err != nil {
			return nil, errors.NewStorage(conversationID, e.Index, err)
		}
		out = append(out, IndexedResult{Index: e.Index, Result: r})
	}
	return out, nil
}

// ListOrdered returns every stored result of a conversation by ascending index.
func (c *Cache) ListOrdered(ctx context.Context, conversationID string) ([]analysis.Result, error) {
	entries, err := c.Entries(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	results := make([]analysis.Result, len(entries))
	for i, e := range entries {
		results[i] = e.Result
	}
	return results, nil
}

// FirstMissing returns the lowest index in [0, total) with no stored result,
// or total when every chunk in that range is cached.
func (c *Cache) FirstMissing(ctx context.Context, conversationID string, total int) (int, error) {
	entries, err := c.store.Scan(ctx, PartitionKey(conversationID))
	if err != nil {
		return 0, errors.NewStorage(conversationID, -1, err)
	}
	next := 0
	for _, e := range entries {
		if next >= total || e.Index > next {
			break
		}
		if e.Index == next {
			next++
		}
	}
	return min(next, total), nil
}

// Count returns how many results are stored for a conversation.
func (c *Cache) Count(ctx context.Context, conversationID string) (int, error) {
	entries, err := c.store.Scan(ctx, PartitionKey(conversationID))
	if err != nil {
		return 0, errors.NewStorage(conversationID, -1, err)
	}
	return len(entries), nil
}

// Purge deletes every stored result of a conversation. It is idempotent.
func (c *Cache) Purge(ctx context.Context, conversationID string) error {
	if err := c.store.DropPartition(ctx, PartitionKey(conversationID)); err != nil {
		return errors.NewStorage(conversationID, -1, err)
	}
	return nil
}

// Conversations lists the partitions that hold results.
// Names are partition keys, which may differ from the original IDs.
func (c *Cache) Conversations(ctx context.Context) ([]string, error) {
	parts, err := c.store.Partitions(ctx)
	if err != nil {
		return nil, errors.NewStorage("", -1, err)
	}
	return parts, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// decode validates stored bytes and compacts them, so a hit is byte-identical
// to the value produced on the miss that stored it.
func decode(data []byte) (analysis.Result, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("corrupt entry: %w", err)
	}
	return analysis.Result(buf.Bytes()), nil
}
