package db

import (
	"context"
	"database/sql"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutAndGetChunk(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, found, err := GetChunk(ctx, db, "alice", 0); err != nil || found {
		t.Fatalf("GetChunk on empty db = found %v, err %v", found, err)
	}

	if err := PutChunk(ctx, db, "alice", 0, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("PutChunk failed: %v", err)
	}
	value, found, err := GetChunk(ctx, db, "alice", 0)
	if err != nil {
		t.Fatalf("GetChunk failed: %v", err)
	}
	if !found {
		t.Fatal("expected row to be found")
	}
	if string(value) != `{"a":1}` {
		t.Errorf("value = %s, want {\"a\":1}", value)
	}

	// Upsert replaces in place
	if err := PutChunk(ctx, db, "alice", 0, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("PutChunk (replace) failed: %v", err)
	}
	value, _, _ = GetChunk(ctx, db, "alice", 0)
	if string(value) != `{"a":2}` {
		t.Errorf("value after replace = %s", value)
	}
}

func TestScanChunks_Ordered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, idx := range []int{10, 2, 7, 0} {
		if err := PutChunk(ctx, db, "alice", idx, []byte(`1`)); err != nil {
			t.Fatalf("PutChunk(%d) failed: %v", idx, err)
		}
	}
	if err := PutChunk(ctx, db, "bob", 1, []byte(`1`)); err != nil {
		t.Fatalf("PutChunk(bob) failed: %v", err)
	}

	rows, err := ScanChunks(ctx, db, "alice")
	if err != nil {
		t.Fatalf("ScanChunks failed: %v", err)
	}
	want := []int{0, 2, 7, 10}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if r.Index != want[i] {
			t.Errorf("rows[%d].Index = %d, want %d", i, r.Index, want[i])
		}
		if r.CreatedAt == 0 {
			t.Errorf("rows[%d].CreatedAt not set", i)
		}
	}

	empty, err := ScanChunks(ctx, db, "nobody")
	if err != nil {
		t.Fatalf("ScanChunks(nobody) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no rows, got %d", len(empty))
	}
}

func TestDeletePartition(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = PutChunk(ctx, db, "alice", 0, []byte(`1`))
	_ = PutChunk(ctx, db, "alice", 1, []byte(`1`))
	_ = PutChunk(ctx, db, "bob", 0, []byte(`1`))

	n, err := DeletePartition(ctx, db, "alice")
	if err != nil {
		t.Fatalf("DeletePartition failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}

	// Idempotent
	n, err = DeletePartition(ctx, db, "alice")
	if err != nil {
		t.Fatalf("second DeletePartition failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second delete removed %d rows, want 0", n)
	}

	if _, found, _ := GetChunk(ctx, db, "bob", 0); !found {
		t.Error("bob's row should survive alice's purge")
	}
}

func TestListPartitions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = PutChunk(ctx, db, "carol", 0, []byte(`1`))
	_ = PutChunk(ctx, db, "alice", 0, []byte(`1`))
	_ = PutChunk(ctx, db, "alice", 1, []byte(`1`))

	got, err := ListPartitions(ctx, db)
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(got) != 2 || got[0] != "alice" || got[1] != "carol" {
		t.Errorf("ListPartitions() = %v, want [alice carol]", got)
	}
}
