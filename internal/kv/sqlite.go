package kv

import (
	"context"
	"database/sql"

	"github.com/hpungsan/chunkwise/internal/db"
)

// SQLiteStore keeps entries in the chunk_results table.
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore wraps a database opened with db.Init.
func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{conn: conn}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, partition string, index int) ([]byte, bool, error) {
	return db.GetChunk(ctx, s.conn, partition, index)
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, partition string, index int, value []byte) error {
	return db.PutChunk(ctx, s.conn, partition, index, value)
}

// Scan implements Store.
func (s *SQLiteStore) Scan(ctx context.Context, partition string) ([]Entry, error) {
	rows, err := db.ScanChunks(ctx, s.conn, partition)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{Index: r.Index, Value: r.Value}
	}
	return entries, nil
}

// DropPartition implements Store.
func (s *SQLiteStore) DropPartition(ctx context.Context, partition string) error {
	_, err := db.DeletePartition(ctx, s.conn, partition)
	return err
}

// Partitions implements Store.
func (s *SQLiteStore) Partitions(ctx context.Context) ([]string, error) {
	return db.ListPartitions(ctx, s.conn)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
