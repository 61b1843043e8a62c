package pipeline

import (
	"context"

	"github.com/hpungsan/chunkwise/internal/analysis"
	"github.com/hpungsan/chunkwise/internal/chat"
	"go.uber.org/zap"
)

// BackfillOptions controls ProcessImport.
type BackfillOptions struct {
	// Start is the first chunk index to process. Ignored when Resume is set.
	Start int

	// Resume starts at the first chunk with no cached result.
	Resume bool

	// Limit caps how many chunks are walked; 0 means all remaining.
	Limit int

	// BatchSize is the number of chunks per batch, clamped to 1..chat.MaxBatchSize.
	BatchSize int

	// MinScenes stops the run once the cached results hold at least this many scenes.
	// 0 disables the check.
	MinScenes int
}

// BackfillResult reports how far ProcessImport got.
type BackfillResult struct {
	Name     string   `json:"name"`
	Start    int      `json:"start"`
	Next     int      `json:"next"`
	Total    int      `json:"total"`
	Batches  int      `json:"batches"`
	Cached   int      `json:"cached"`
	Analyzed int      `json:"analyzed"`
	Scenes   int      `json:"scenes"`
	RunIDs   []string `json:"run_ids"`
	Complete bool     `json:"complete"`
}

// ProcessImport walks an import in consecutive batches. It stops at the
// first failing batch and returns the progress made with the error; every
// chunk before Next is cached.
func (p *Processor) ProcessImport(ctx context.Context, imp *chat.Import, opts BackfillOptions) (*BackfillResult, error) {
	start := opts.Start
	if opts.Resume {
		n, err := p.cache.FirstMissing(ctx, imp.Name, len(imp.Chunks))
		if err != nil {
			return nil, err
		}
		start = n
	}
	if start < 0 {
		start = 0
	}

	res := &BackfillResult{
		Name:   imp.Name,
		Start:  start,
		Next:   start,
		Total:  len(imp.Chunks),
		RunIDs: []string{},
	}

	enough := func() (bool, error) {
		if opts.MinScenes <= 0 {
			return false, nil
		}
		results, err := p.cache.ListOrdered(ctx, imp.Name)
		if err != nil {
			return false, err
		}
		res.Scenes = analysis.CountScenes(results)
		return res.Scenes >= opts.MinScenes, nil
	}

	done, err := enough()
	if err != nil {
		return res, err
	}

	for _, batch := range chat.SplitBatches(imp, start, opts.Limit, opts.BatchSize) {
		if done {
			break
		}
		br, err := p.Process(ctx, &batch)
		if br != nil {
			res.Batches++
			res.RunIDs = append(res.RunIDs, br.RunID)
			res.Cached += br.Cached
			res.Analyzed += br.Analyzed
			res.Next = batch.StartIndex + len(br.Results)
		}
		if err != nil {
			return res, err
		}
		if done, err = enough(); err != nil {
			return res, err
		}
	}

	if opts.MinScenes <= 0 {
		results, err := p.cache.ListOrdered(ctx, imp.Name)
		if err != nil {
			return res, err
		}
		res.Scenes = analysis.CountScenes(results)
	}
	res.Complete = res.Next >= res.Total
	p.logger.Info("backfill finished",
		zap.String("conversation", imp.Name),
		zap.Int("start", res.Start),
		zap.Int("next", res.Next),
		zap.Int("batches", res.Batches),
		zap.Int("analyzed", res.Analyzed),
		zap.Int("scenes", res.Scenes),
	)
	return res, nil
}
