package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"
)

// ChunkRow is one cached chunk result.
type ChunkRow struct {
	Index     int
	Value     []byte
	CreatedAt int64
}

// PutChunk stores the value for (partition, index), replacing any previous row.
func PutChunk(ctx context.Context, db *sql.DB, partition string, index int, value []byte) error {
	query := `
		INSERT INTO chunk_results (conversation, chunk_index, value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (conversation, chunk_index) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at
	`
	if _, err := db.ExecContext(ctx, query, partition, index, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("put chunk: %w", err)
	}
	return nil
}

// GetChunk returns the value for (partition, index).
// The bool is false when no row exists.
func GetChunk(ctx context.Context, db *sql.DB, partition string, index int) ([]byte, bool, error) {
	var value []byte
	err := db.QueryRowContext(ctx,
		`SELECT value FROM chunk_results WHERE conversation = ? AND chunk_index = ?`,
		partition, index,
	).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get chunk: %w", err)
	}
	return value, true, nil
}

// ScanChunks returns every row of a partition by ascending index.
func ScanChunks(ctx context.Context, db *sql.DB, partition string) ([]ChunkRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT chunk_index, value, created_at FROM chunk_results
		WHERE conversation = ? ORDER BY chunk_index ASC`,
		partition,
	)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		if err := rows.Scan(&r.Index, &r.Value, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunks: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	return out, nil
}

// DeletePartition removes all rows of a partition and returns how many were removed.
func DeletePartition(ctx context.Context, db *sql.DB, partition string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM chunk_results WHERE conversation = ?`, partition)
	if err != nil {
		return 0, fmt.Errorf("delete partition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete partition: %w", err)
	}
	return n, nil
}

// ListPartitions returns the distinct partitions, sorted.
func ListPartitions(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT conversation FROM chunk_results ORDER BY conversation ASC`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("list partitions: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	return out, nil
}
