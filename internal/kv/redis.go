package kv

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps one hash per partition at <prefix>:cache:<partition>,
// with the chunk index as the field.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "chunkwise"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(partition string) string {
	return s.prefix + ":cache:" + partition
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, partition string, index int) ([]byte, bool, error) {
	data, err := s.client.HGet(ctx, s.key(partition), strconv.Itoa(index)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, partition string, index int, value []byte) error {
	return s.client.HSet(ctx, s.key(partition), strconv.Itoa(index), value).Err()
}

// Scan implements Store.
func (s *RedisStore) Scan(ctx context.Context, partition string) ([]Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.key(partition)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(fields))
	for field, value := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil || idx < 0 {
			continue
		}
		entries = append(entries, Entry{Index: idx, Value: []byte(value)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}

// DropPartition implements Store.
func (s *RedisStore) DropPartition(ctx context.Context, partition string) error {
	return s.client.Del(ctx, s.key(partition)).Err()
}

// Partitions implements Store.
func (s *RedisStore) Partitions(ctx context.Context) ([]string, error) {
	base := s.prefix + ":cache:"
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, base+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan partitions: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, base))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(out)
	return dedupSorted(out), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// dedupSorted drops repeats; SCAN may return a key more than once.
func dedupSorted(in []string) []string {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
