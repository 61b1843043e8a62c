package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FileStore keeps each entry as dir/<partition>/<index>.json.
// Values that are valid JSON are written pretty-printed.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. Nothing is created until the first Put.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) entryPath(partition string, index int) string {
	return filepath.Join(s.dir, partition, strconv.Itoa(index)+".json")
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, partition string, index int) ([]byte, bool, error) {
	if err := checkPartition(partition); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.entryPath(partition, index))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put implements Store. The write goes through a temp file and rename so a
// crash never leaves a half-written entry.
func (s *FileStore) Put(_ context.Context, partition string, index int, value []byte) error {
	if err := checkPartition(partition); err != nil {
		return err
	}
	dir := filepath.Join(s.dir, partition)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create partition: %w", err)
	}

	data := value
	var buf bytes.Buffer
	if err := json.Indent(&buf, value, "", "  "); err == nil {
		data = buf.Bytes()
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close entry: %w", err)
	}
	if err := os.Rename(tmpName, s.entryPath(partition, index)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename entry: %w", err)
	}
	return nil
}

// Scan implements Store. Files whose stem is not a non-negative integer are ignored.
func (s *FileStore) Scan(_ context.Context, partition string) ([]Entry, error) {
	if err := checkPartition(partition); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.dir, partition)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(f.Name(), ".json"))
		if err != nil || idx < 0 {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		entries = append(entries, Entry{Index: idx, Value: data})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}

// DropPartition implements Store.
func (s *FileStore) DropPartition(_ context.Context, partition string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.dir, partition))
}

// Partitions implements Store.
func (s *FileStore) Partitions(_ context.Context) ([]string, error) {
	dirs, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, d := range dirs {
		if d.IsDir() {
			out = append(out, d.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
