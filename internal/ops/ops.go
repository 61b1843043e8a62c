package ops

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/chunkwise/internal/cache"
	"github.com/hpungsan/chunkwise/internal/config"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/kv"
	"github.com/hpungsan/chunkwise/internal/library"
	"github.com/hpungsan/chunkwise/internal/llm"
	"github.com/hpungsan/chunkwise/internal/pipeline"
	"go.uber.org/zap"
)

// Import collision modes.
const (
	ModeError   = "error"
	ModeReplace = "replace"
)

// Deps are the collaborators every operation works against.
type Deps struct {
	DataDir   string
	Config    *config.Config
	Cache     *cache.Cache
	Library   *library.Library
	Processor *pipeline.Processor
	Logger    *zap.Logger
}

// Open wires the cache backend, the library and the processor for dataDir.
// The analysis service is only attached when an API key is configured, so
// read-only commands work without one.
func Open(ctx context.Context, cfg *config.Config, dataDir string, logger *zap.Logger) (*Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompt, err := pipeline.LoadSystemPrompt(cfg.SystemPromptPath)
	if err != nil {
		return nil, errors.NewConfiguration("system_prompt_path", err.Error())
	}

	store, err := kv.Open(ctx, cfg, dataDir)
	if err != nil {
		return nil, errors.NewStorage("cache", -1, err)
	}

	var service pipeline.Completer
	if strings.TrimSpace(cfg.Service.APIKey) != "" {
		service = llm.NewClient(llm.Options{
			BaseURL:  cfg.Service.BaseURL,
			APIKey:   cfg.Service.APIKey,
			Model:    cfg.Service.Model,
			SiteURL:  cfg.Service.SiteURL,
			SiteName: cfg.Service.SiteName,
			Timeout:  time.Duration(cfg.Service.TimeoutSeconds) * time.Second,
		})
	}

	return NewDeps(cfg, dataDir, store, service, prompt, logger), nil
}

// NewDeps assembles Deps from an already opened store. service may be nil.
func NewDeps(cfg *config.Config, dataDir string, store kv.Store, service pipeline.Completer, prompt string, logger *zap.Logger) *Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cache.New(store)
	return &Deps{
		DataDir:   dataDir,
		Config:    cfg,
		Cache:     c,
		Library:   library.New(dataDir),
		Processor: pipeline.New(c, service, prompt, logger.Named("pipeline")),
		Logger:    logger,
	}
}

// Close releases the cache backend.
func (d *Deps) Close() error {
	return d.Cache.Close()
}

// requireName rejects a blank conversation name. Names are used as given.
func requireName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.NewInvalidRequest("name is required")
	}
	return name, nil
}
