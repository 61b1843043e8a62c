package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Source yields raw values for environment-style keys.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads the process environment.
type EnvSource struct{}

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed set of values, mostly useful in tests.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// DotenvSource holds the values of one .env file.
type DotenvSource struct {
	v *viper.Viper
}

// LoadDotenv parses a .env file. A missing file yields a nil source and no error.
func LoadDotenv(path string) (*DotenvSource, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &DotenvSource{v: v}, nil
}

// Lookup implements Source. Keys are matched case-insensitively.
func (d *DotenvSource) Lookup(key string) (string, bool) {
	k := strings.ToLower(key)
	if !d.v.IsSet(k) {
		return "", false
	}
	return d.v.GetString(k), true
}

// Resolve returns the first non-empty value for keys. Keys are ranked first,
// so a preferred key in a lower source beats a fallback key in a higher one.
func Resolve(sources []Source, keys ...string) (string, bool) {
	for _, key := range keys {
		for _, src := range sources {
			if v, ok := src.Lookup(key); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v, true
				}
			}
		}
	}
	return "", false
}

type stringSetting struct {
	dst  *string
	keys []string
}

// ApplyEnv overrides cfg with values resolved from sources.
func ApplyEnv(cfg *Config, sources []Source) {
	strs := []stringSetting{
		{&cfg.Service.APIKey, []string{"OPENROUTER_API_KEY", "VITE_OPENROUTER_API_KEY"}},
		{&cfg.Service.BaseURL, []string{"OPENROUTER_BASE_URL", "VITE_OPENROUTER_BASE_URL"}},
		{&cfg.Service.Model, []string{"OPENROUTER_MODEL", "VITE_OPENROUTER_MODEL"}},
		{&cfg.Service.SiteURL, []string{"OPENROUTER_SITE_URL", "VITE_SITE_URL"}},
		{&cfg.Service.SiteName, []string{"OPENROUTER_SITE_NAME", "VITE_SITE_NAME"}},
		{&cfg.DataDir, []string{"CHUNKWISE_DATA_DIR"}},
		{&cfg.CacheBackend, []string{"CHUNKWISE_CACHE_BACKEND"}},
		{&cfg.LogLevel, []string{"CHUNKWISE_LOG_LEVEL"}},
		{&cfg.LogFormat, []string{"CHUNKWISE_LOG_FORMAT"}},
		{&cfg.SystemPromptPath, []string{"CHUNKWISE_SYSTEM_PROMPT"}},
		{&cfg.Redis.Addr, []string{"CHUNKWISE_REDIS_ADDR", "REDIS_ADDR"}},
		{&cfg.Redis.Password, []string{"CHUNKWISE_REDIS_PASSWORD", "REDIS_PASSWORD"}},
		{&cfg.Minio.Endpoint, []string{"CHUNKWISE_MINIO_ENDPOINT"}},
		{&cfg.Minio.AccessKeyID, []string{"CHUNKWISE_MINIO_ACCESS_KEY"}},
		{&cfg.Minio.SecretAccessKey, []string{"CHUNKWISE_MINIO_SECRET_KEY"}},
		{&cfg.Minio.Bucket, []string{"CHUNKWISE_MINIO_BUCKET"}},
	}
	for _, s := range strs {
		if v, ok := Resolve(sources, s.keys...); ok {
			*s.dst = v
		}
	}

	if v, ok := Resolve(sources, "CHUNKWISE_BATCH_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v, ok := Resolve(sources, "CHUNKWISE_TIMEOUT_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Service.TimeoutSeconds = n
		}
	}
}
