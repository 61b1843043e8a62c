package kv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/hpungsan/chunkwise/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectRoot = "cache/"

// MinioStore keeps each entry as the object cache/<partition>/<index>.json.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// OpenMinioStore connects to the object store and creates the bucket if it is missing.
func OpenMinioStore(ctx context.Context, cfg config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func objectName(partition string, index int) string {
	return fmt.Sprintf("%s%s/%d.json", objectRoot, partition, index)
}

// Get implements Store.
func (s *MinioStore) Get(ctx context.Context, partition string, index int) ([]byte, bool, error) {
	if err := checkPartition(partition); err != nil {
		return nil, false, err
	}
	return s.read(ctx, objectName(partition, index))
}

func (s *MinioStore) read(ctx context.Context, name string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put implements Store.
func (s *MinioStore) Put(ctx context.Context, partition string, index int, value []byte) error {
	if err := checkPartition(partition); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName(partition, index),
		bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// Scan implements Store.
func (s *MinioStore) Scan(ctx context.Context, partition string) ([]Entry, error) {
	if err := checkPartition(partition); err != nil {
		return nil, err
	}
	var entries []Entry
	opts := minio.ListObjectsOptions{Prefix: objectRoot + partition + "/", Recursive: true}
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return nil, info.Err
		}
		base := path.Base(info.Key)
		idx, err := strconv.Atoi(strings.TrimSuffix(base, ".json"))
		if err != nil || idx < 0 || !strings.HasSuffix(base, ".json") {
			continue
		}
		data, found, err := s.read(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		if found {
			entries = append(entries, Entry{Index: idx, Value: data})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}

// DropPartition implements Store.
func (s *MinioStore) DropPartition(ctx context.Context, partition string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Prefix: objectRoot + partition + "/", Recursive: true}
	objects := s.client.ListObjects(ctx, s.bucket, opts)
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return fmt.Errorf("remove %s: %w", rErr.ObjectName, rErr.Err)
		}
	}
	return nil
}

// Partitions implements Store.
func (s *MinioStore) Partitions(ctx context.Context) ([]string, error) {
	var out []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objectRoot}) {
		if info.Err != nil {
			return nil, info.Err
		}
		name := strings.TrimSuffix(strings.TrimPrefix(info.Key, objectRoot), "/")
		if name != "" && strings.HasSuffix(info.Key, "/") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close implements Store.
func (s *MinioStore) Close() error { return nil }
