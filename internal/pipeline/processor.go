package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/hpungsan/chunkwise/internal/analysis"
	"github.com/hpungsan/chunkwise/internal/cache"
	"github.com/hpungsan/chunkwise/internal/chat"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/llm"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Completer sends a chat request to the analysis service and returns the
// completion text. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Processor runs batches through the cache and the analysis service.
type Processor struct {
	cache        *cache.Cache
	service      Completer
	systemPrompt string
	logger       *zap.Logger
}

// New returns a Processor. service may be nil when only cached chunks will
// be requested; a cache miss then fails with CONFIGURATION_ERROR.
func New(c *cache.Cache, service Completer, systemPrompt string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Processor{
		cache:        c,
		service:      service,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// BatchResult is the outcome of one batch. Results[i] belongs to chunk i.
type BatchResult struct {
	RunID    string            `json:"run_id"`
	Name     string            `json:"name"`
	Start    int               `json:"start"`
	Results  []analysis.Result `json:"choices"`
	Cached   int               `json:"cached"`
	Analyzed int               `json:"analyzed"`
}

// Process analyses the chunks of batch in order. Cached chunks are returned
// as stored without calling the service; misses are analysed, normalized and
// stored before being appended.
//
// The batch is not atomic. On error the returned BatchResult holds the
// results completed so far, all of which are already cached, so resubmitting
// the same batch only redoes the failed remainder.
func (p *Processor) Process(ctx context.Context, batch *chat.Batch) (*BatchResult, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	res := &BatchResult{
		RunID:   newRunID(),
		Name:    batch.ConversationID,
		Start:   batch.StartIndex,
		Results: make([]analysis.Result, 0, len(batch.Chunks)),
	}
	log := p.logger.With(
		zap.String("run_id", res.RunID),
		zap.String("conversation", batch.ConversationID),
		zap.Int("start", batch.StartIndex),
	)
	log.Info("batch started", zap.Int("size", len(batch.Chunks)))

	for i := range batch.Chunks {
		g := batch.GlobalIndex(i)
		if err := ctx.Err(); err != nil {
			log.Warn("batch cancelled", zap.Int("index", g), zap.Error(err))
			return res, errors.NewCancelled("batch", err)
		}

		result, err := p.processChunk(ctx, log, batch.ConversationID, g, &batch.Chunks[i])
		if err != nil {
			log.Error("batch failed", zap.Int("index", g), zap.Int("completed", len(res.Results)), zap.Error(err))
			return res, err
		}
		if result.cached {
			res.Cached++
		} else {
			res.Analyzed++
		}
		res.Results = append(res.Results, result.value)
	}

	log.Info("batch finished", zap.Int("cached", res.Cached), zap.Int("analyzed", res.Analyzed))
	return res, nil
}

type chunkResult struct {
	value  analysis.Result
	cached bool
}

func (p *Processor) processChunk(ctx context.Context, log *zap.Logger, conversation string, index int, chunk *chat.DayChunk) (chunkResult, error) {
	if cached, found, err := p.cache.Lookup(ctx, conversation, index); err != nil {
		return chunkResult{}, err
	} else if found {
		log.Debug("cache hit", zap.Int("index", index))
		return chunkResult{value: cached, cached: true}, nil
	}

	if p.service == nil {
		return chunkResult{}, errors.NewConfiguration("OPENROUTER_API_KEY", "analysis service is not configured")
	}

	payload, err := json.Marshal(chunk)
	if err != nil {
		return chunkResult{}, errors.NewInternal(err)
	}

	log.Info("analysing chunk", zap.Int("index", index), zap.String("date", chunk.Date), zap.Int("messages", len(chunk.Messages)))
	started := time.Now()
	text, err := p.service.Complete(ctx, []llm.Message{
		{Role: "system", Content: p.systemPrompt},
		{Role: "user", Content: string(payload)},
	})
	if err != nil {
		return chunkResult{}, err
	}

	value := analysis.Normalize(text)
	if value.IsString() {
		log.Warn("completion is not JSON, keeping it as text", zap.Int("index", index), zap.Int("chars", len(text)))
	}
	if err := p.cache.Store(ctx, conversation, index, value); err != nil {
		return chunkResult{}, err
	}
	log.Debug("chunk stored", zap.Int("index", index), zap.Duration("took", time.Since(started)))
	return chunkResult{value: value}, nil
}

func newRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}
