package ops

import (
	"context"

	"github.com/hpungsan/chunkwise/internal/analysis"
	"github.com/hpungsan/chunkwise/internal/cache"
	"github.com/hpungsan/chunkwise/internal/errors"
	"go.uber.org/zap"
)

// LoadCacheInput names the conversation to read.
type LoadCacheInput struct {
	Name string `json:"name"`
}

// LoadCacheOutput holds a conversation's cached results by ascending chunk index.
type LoadCacheOutput struct {
	Name    string            `json:"name"`
	Count   int               `json:"count"`
	Scenes  int               `json:"scenes"`
	Results []analysis.Result `json:"results"`

	// Indices holds the chunk index of each entry in Results.
	Indices []int `json:"indices"`

	// Issues lists the results that do not follow the scene schema.
	Issues []ResultIssue `json:"issues,omitempty"`
}

// ResultIssue is the lint report of one cached result.
type ResultIssue struct {
	Index int `json:"index"`
	*analysis.LintResult
}

// LoadCache returns everything cached for a conversation.
// An unknown conversation has no results; it is not an error.
func LoadCache(ctx context.Context, d *Deps, input LoadCacheInput) (*LoadCacheOutput, error) {
	name, err := requireName(input.Name)
	if err != nil {
		return nil, err
	}
	entries, err := d.Cache.Entries(ctx, name)
	if err != nil {
		return nil, err
	}
	results := make([]analysis.Result, len(entries))
	indices := make([]int, len(entries))
	for i, e := range entries {
		results[i] = e.Result
		indices[i] = e.Index
	}
	out := &LoadCacheOutput{
		Name:    name,
		Count:   len(results),
		Scenes:  analysis.CountScenes(results),
		Results: results,
		Indices: indices,
	}
	for _, e := range entries {
		if lint := analysis.Lint(e.Result); !lint.Valid {
			out.Issues = append(out.Issues, ResultIssue{Index: e.Index, LintResult: lint})
		}
	}
	return out, nil
}

// ChatSummary describes one known conversation.
type ChatSummary struct {
	Name string `json:"name"`

	// Chunks is the number of day chunks in the saved import, 0 if none is saved.
	Chunks int `json:"chunks"`

	// Cached is the number of chunk results in the cache.
	Cached int `json:"cached"`

	Imported bool `json:"imported"`
}

// ListChatsOutput lists saved imports first, in saved order, then
// conversations that only exist in the cache, by partition name.
type ListChatsOutput struct {
	Chats []ChatSummary `json:"chats"`
}

// ListChats reports every conversation known to the library or the cache.
func ListChats(ctx context.Context, d *Deps) (*ListChatsOutput, error) {
	imports, err := d.Library.LoadImports()
	if err != nil {
		return nil, err
	}

	chats := make([]ChatSummary, 0, len(imports))
	seen := make(map[string]bool, len(imports))
	for _, imp := range imports {
		n, err := d.Cache.Count(ctx, imp.Name)
		if err != nil {
			return nil, err
		}
		seen[cache.PartitionKey(imp.Name)] = true
		chats = append(chats, ChatSummary{
			Name:     imp.Name,
			Chunks:   len(imp.Chunks),
			Cached:   n,
			Imported: true,
		})
	}

	partitions, err := d.Cache.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range partitions {
		if seen[p] {
			continue
		}
		n, err := d.Cache.Count(ctx, p)
		if err != nil {
			return nil, err
		}
		chats = append(chats, ChatSummary{Name: p, Cached: n})
	}

	return &ListChatsOutput{Chats: chats}, nil
}

// DeleteChatInput names the conversation to forget.
type DeleteChatInput struct {
	Name string `json:"name"`

	// KeepImport purges only the cached results and leaves the saved import.
	KeepImport bool `json:"keep_import,omitempty"`
}

// DeleteChatOutput reports what was removed.
type DeleteChatOutput struct {
	Name          string `json:"name"`
	Purged        int    `json:"purged"`
	ImportRemoved bool   `json:"import_removed"`
}

// DeleteChat purges a conversation's cache partition and, unless KeepImport
// is set, its saved import. Other conversations are untouched.
// Deleting an unknown conversation succeeds with nothing purged.
func DeleteChat(ctx context.Context, d *Deps, input DeleteChatInput) (*DeleteChatOutput, error) {
	name, err := requireName(input.Name)
	if err != nil {
		return nil, err
	}

	n, err := d.Cache.Count(ctx, name)
	if err != nil {
		return nil, err
	}

	imported := false
	if _, err := d.Library.FindImport(name); err == nil {
		imported = true
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	if err := d.Cache.Purge(ctx, name); err != nil {
		return nil, err
	}

	out := &DeleteChatOutput{Name: name, Purged: n}
	if imported && !input.KeepImport {
		if out.ImportRemoved, err = d.Library.RemoveImport(name); err != nil {
			return nil, err
		}
	}

	d.Logger.Info("chat deleted",
		zap.String("conversation", name),
		zap.Int("purged", n),
		zap.Bool("import_removed", out.ImportRemoved),
	)
	return out, nil
}
