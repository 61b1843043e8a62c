package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/hpungsan/chunkwise/internal/config"
	"github.com/hpungsan/chunkwise/internal/db"
)

// Entry is one stored value and its index within a partition.
type Entry struct {
	Index int
	Value []byte
}

// Store is a key-value store keyed by (partition, index).
// Values are opaque bytes; callers own their encoding.
type Store interface {
	// Get returns the value at (partition, index). The bool is false when absent.
	Get(ctx context.Context, partition string, index int) ([]byte, bool, error)

	// Put writes the value at (partition, index), creating the partition if needed.
	Put(ctx context.Context, partition string, index int, value []byte) error

	// Scan returns every entry of a partition by ascending index.
	// A partition that does not exist yields no entries.
	Scan(ctx context.Context, partition string) ([]Entry, error)

	// DropPartition deletes a partition and all its entries. Dropping a
	// missing partition is not an error.
	DropPartition(ctx context.Context, partition string) error

	// Partitions lists the partitions holding at least one entry, sorted.
	Partitions(ctx context.Context) ([]string, error)

	Close() error
}

// Open returns the store selected by cfg.CacheBackend.
// The file and sqlite backends keep their data under baseDir.
func Open(ctx context.Context, cfg *config.Config, baseDir string) (Store, error) {
	switch cfg.CacheBackend {
	case "", config.BackendFile:
		return NewFileStore(filepath.Join(baseDir, "cache")), nil
	case config.BackendSQLite:
		conn, err := db.Init(baseDir)
		if err != nil {
			return nil, err
		}
		db.ConfigurePool(conn, cfg)
		return NewSQLiteStore(conn), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(client, cfg.Redis.Prefix), nil
	case config.BackendMinio:
		return OpenMinioStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// checkPartition rejects names that cannot be used as a single path segment.
func checkPartition(partition string) error {
	if partition == "" || partition == "." || partition == ".." || strings.ContainsAny(partition, `/\`) {
		return fmt.Errorf("invalid partition name %q", partition)
	}
	return nil
}
