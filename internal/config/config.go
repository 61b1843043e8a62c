package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/chunkwise/internal/chat"
	cwerrors "github.com/hpungsan/chunkwise/internal/errors"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMinio  = "minio"
)

// Defaults for the analysis service.
const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "gpt-4.1-2025-04-14"
)

// Config holds application configuration.
type Config struct {
	// DataDir holds the cache, import list and analysis document.
	// Empty means the global directory (~/.chunkwise).
	DataDir string `json:"data_dir,omitempty"`

	// CacheBackend selects where chunk results are kept: file, sqlite, redis or minio.
	CacheBackend string `json:"cache_backend,omitempty"`

	// BatchSize is the default number of chunks per batch for backfill runs (1..10).
	BatchSize int `json:"batch_size,omitempty"`

	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "console" or "json".
	LogFormat string `json:"log_format,omitempty"`

	// SystemPromptPath replaces the built-in analysis prompt with the file's contents.
	SystemPromptPath string `json:"system_prompt_path,omitempty"`

	Service ServiceConfig `json:"service"`
	Redis   RedisConfig   `json:"redis"`
	Minio   MinioConfig   `json:"minio"`

	// DBMaxOpenConns limits the maximum number of open database connections (sqlite backend).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// AllowedPaths are extra directories export files may be imported from,
	// besides <data dir>/exports. Relative entries are ignored.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths lifts the directory restriction on imports.
	// Symlinks are still refused.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// ServiceConfig configures the OpenAI-compatible analysis endpoint.
type ServiceConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`

	// SiteURL and SiteName are sent as HTTP-Referer and X-Title attribution headers.
	SiteURL  string `json:"site_url,omitempty"`
	SiteName string `json:"site_name,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// MinioConfig configures the object-store cache backend.
type MinioConfig struct {
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	UseSSL          bool   `json:"use_ssl,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheBackend: BackendFile,
		BatchSize:    chat.MaxBatchSize,
		LogLevel:     "info",
		LogFormat:    "console",
		Service: ServiceConfig{
			BaseURL:        DefaultBaseURL,
			Model:          DefaultModel,
			TimeoutSeconds: 120,
		},
		Redis: RedisConfig{Prefix: "chunkwise"},
		Minio: MinioConfig{Bucket: "chunkwise"},
	}
}

// Load resolves the full configuration: defaults, global and repo config
// files, then .env files next to startDir and its parent, then the process
// environment.
func Load(globalDir, startDir string) (*Config, error) {
	cfg, err := LoadWithRepo(globalDir, startDir)
	if err != nil {
		return nil, err
	}

	sources := []Source{EnvSource{}}
	for _, dir := range []string{startDir, filepath.Dir(startDir)} {
		dotenv, err := LoadDotenv(filepath.Join(dir, ".env"))
		if err != nil {
			return nil, err
		}
		if dotenv != nil {
			sources = append(sources, dotenv)
		}
	}

	ApplyEnv(cfg, sources)
	cfg.BatchSize = ClampBatchSize(cfg.BatchSize)
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.chunkwise) and repo (.chunkwise) directories.
// Repo config is found by walking upward from startDir to find the nearest .chunkwise/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .chunkwise/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".chunkwise", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		DataDir:          pick(overlay.DataDir, base.DataDir),
		CacheBackend:     pick(overlay.CacheBackend, base.CacheBackend),
		BatchSize:        pickInt(overlay.BatchSize, base.BatchSize),
		LogLevel:         pick(overlay.LogLevel, base.LogLevel),
		LogFormat:        pick(overlay.LogFormat, base.LogFormat),
		SystemPromptPath: pick(overlay.SystemPromptPath, base.SystemPromptPath),
		Service: ServiceConfig{
			BaseURL:        pick(overlay.Service.BaseURL, base.Service.BaseURL),
			APIKey:         pick(overlay.Service.APIKey, base.Service.APIKey),
			Model:          pick(overlay.Service.Model, base.Service.Model),
			SiteURL:        pick(overlay.Service.SiteURL, base.Service.SiteURL),
			SiteName:       pick(overlay.Service.SiteName, base.Service.SiteName),
			TimeoutSeconds: pickInt(overlay.Service.TimeoutSeconds, base.Service.TimeoutSeconds),
		},
		Redis: RedisConfig{
			Addr:     pick(overlay.Redis.Addr, base.Redis.Addr),
			Password: pick(overlay.Redis.Password, base.Redis.Password),
			DB:       pickInt(overlay.Redis.DB, base.Redis.DB),
			Prefix:   pick(overlay.Redis.Prefix, base.Redis.Prefix),
		},
		Minio: MinioConfig{
			Endpoint:        pick(overlay.Minio.Endpoint, base.Minio.Endpoint),
			AccessKeyID:     pick(overlay.Minio.AccessKeyID, base.Minio.AccessKeyID),
			SecretAccessKey: pick(overlay.Minio.SecretAccessKey, base.Minio.SecretAccessKey),
			// Booleans: overlay wins if true, else base
			UseSSL: base.Minio.UseSSL || overlay.Minio.UseSSL,
			Bucket: pick(overlay.Minio.Bucket, base.Minio.Bucket),
		},
		DBMaxOpenConns: pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns: pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		AllowedPaths:   mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths),
		// Booleans: overlay wins if true, else base
		AllowUnsafePaths: base.AllowUnsafePaths || overlay.AllowUnsafePaths,
		DisabledTools:    mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
	}
}

func pick(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// ClampBatchSize keeps n within 1..chat.MaxBatchSize, defaulting to the maximum.
func ClampBatchSize(n int) int {
	if n <= 0 || n > chat.MaxBatchSize {
		return chat.MaxBatchSize
	}
	return n
}

// Validate checks settings needed by every command.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case BackendFile, BackendSQLite:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return cwerrors.NewConfiguration("redis.addr", "required for the redis cache backend")
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" {
			return cwerrors.NewConfiguration("minio.endpoint", "required for the minio cache backend")
		}
		if c.Minio.Bucket == "" {
			return cwerrors.NewConfiguration("minio.bucket", "required for the minio cache backend")
		}
	default:
		return cwerrors.NewConfiguration("cache_backend", "unknown backend "+`"`+c.CacheBackend+`"`)
	}
	return nil
}

// ValidateService checks the settings needed to reach the analysis service.
// Commands that call the service run this at startup.
func (c *Config) ValidateService() error {
	if strings.TrimSpace(c.Service.APIKey) == "" {
		return cwerrors.NewConfiguration("OPENROUTER_API_KEY", "analysis service API key is not set")
	}
	if strings.TrimSpace(c.Service.BaseURL) == "" {
		return cwerrors.NewConfiguration("OPENROUTER_BASE_URL", "analysis service base URL is not set")
	}
	return nil
}
