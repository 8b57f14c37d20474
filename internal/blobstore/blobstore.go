// Package blobstore provides filesystem-backed object storage. Each bucket
// is a directory configured in Paths; keys are slash-separated paths under
// the bucket and map directly to files on disk.
package blobstore

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound indicates the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// FS is a filesystem-backed object store.
type FS struct{}

// NewFS returns a filesystem object store.
func NewFS() *FS {
	return &FS{}
}

func objectPath(bucket, key string) string {
	return filepath.Join(bucket, filepath.FromSlash(path.Clean("/"+key)))
}

// Exists reports whether an object is present in a bucket.
func (f *FS) Exists(bucket, key string) (bool, error) {
	info, err := os.Stat(objectPath(bucket, key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Head returns object metadata without reading its content.
func (f *FS) Head(bucket, key string) (ObjectInfo, error) {
	info, err := os.Stat(objectPath(bucket, key))
	if errors.Is(err, os.ErrNotExist) {
		return ObjectInfo{}, fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat object %s: %w", key, err)
	}
	if info.IsDir() {
		return ObjectInfo{}, fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	return ObjectInfo{Key: key, Size: info.Size()}, nil
}

// GetContent reads an object's full content.
func (f *FS) GetContent(bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(objectPath(bucket, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Put writes an object, creating parent directories as needed.
func (f *FS) Put(bucket, key string, data []byte) error {
	target := objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

// Copy duplicates an object, possibly across buckets.
func (f *FS) Copy(srcBucket, srcKey, dstBucket, dstKey string) error {
	src, err := os.Open(objectPath(srcBucket, srcKey))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("object %s: %w", srcKey, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("open source %s: %w", srcKey, err)
	}
	defer src.Close()

	target := objectPath(dstBucket, dstKey)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create target %s: %w", dstKey, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("copy object %s: %w", srcKey, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close target %s: %w", dstKey, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (f *FS) Delete(bucket, key string) error {
	err := os.Remove(objectPath(bucket, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Move copies an object to a new location, verifies the copy by size, then
// removes the source.
func (f *FS) Move(srcBucket, srcKey, dstBucket, dstKey string) error {
	if err := f.Copy(srcBucket, srcKey, dstBucket, dstKey); err != nil {
		return err
	}
	srcInfo, err := f.Head(srcBucket, srcKey)
	if err != nil {
		return err
	}
	dstInfo, err := f.Head(dstBucket, dstKey)
	if err != nil {
		return err
	}
	if srcInfo.Size != dstInfo.Size {
		return fmt.Errorf("move object %s: size mismatch after copy (%d != %d)", srcKey, srcInfo.Size, dstInfo.Size)
	}
	return f.Delete(srcBucket, srcKey)
}

// List returns keys of objects under a prefix, sorted lexicographically.
// Keys always use forward slashes.
func (f *FS) List(bucket, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(bucket, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bucket, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// VerifyAndDeleteFolder removes every object under srcPrefix in the source
// bucket once each one is confirmed present in the destination bucket at the
// same key with srcPrefix replaced by dstPrefix. If any copy is missing,
// nothing is deleted and false is returned.
func (f *FS) VerifyAndDeleteFolder(srcBucket, srcPrefix, dstBucket, dstPrefix string) (bool, error) {
	keys, err := f.List(srcBucket, srcPrefix)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return true, nil
	}
	for _, key := range keys {
		dstKey := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		ok, err := f.Exists(dstBucket, dstKey)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	for _, key := range keys {
		if err := f.Delete(srcBucket, key); err != nil {
			return false, err
		}
	}
	return true, nil
}

// MD5Checksum computes the hex MD5 digest of an object's content.
func (f *FS) MD5Checksum(bucket, key string) (string, error) {
	src, err := os.Open(objectPath(bucket, key))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("open object %s: %w", key, err)
	}
	defer src.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, src); err != nil {
		return "", fmt.Errorf("checksum object %s: %w", key, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
