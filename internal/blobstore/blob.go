package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
)

// ReadBlob reads the object at key from bucket.
func ReadBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: reading %s: %w", key, err)
	}
	defer r.Close()
	if _, err := io.Copy(&b, r); err != nil {
		return nil, fmt.Errorf("blobstore: reading %s: %w", key, err)
	}
	return b.Bytes(), nil
}

// WriteBlob writes data to key in bucket.
func WriteBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("blobstore: opening writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("blobstore: writing %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("blobstore: closing %s: %w", key, err)
	}
	return nil
}

// DeletePrefix deletes every object under prefix in bucket. Used to clear a
// submodel's previous upload before a re-run replaces it.
func DeletePrefix(ctx context.Context, bucket *blob.Bucket, prefix string) error {
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("blobstore: listing %s: %w", prefix, err)
		}
		if err := bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("blobstore: deleting %s: %w", obj.Key, err)
		}
	}
	return nil
}

// SyncSubModelDir uploads every file under localDir to bucket, keyed under
// prefix, preserving the sub-model directory layout described in spec.md
// §6 (project, geopackage, sidecar, Terrain/, rating-curve db, depth
// grids). No other package in this module calls it.
func SyncSubModelDir(ctx context.Context, bucket *blob.Bucket, localDir, prefix string) error {
	return filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := prefix + "/" + filepath.ToSlash(rel)
		key = strings.TrimLeft(key, "/")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("blobstore: reading %s: %w", path, err)
		}
		return WriteBlob(ctx, bucket, key, data)
	})
}
