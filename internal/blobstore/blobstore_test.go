package blobstore_test

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"manifold/internal/blobstore"
	"manifold/internal/testsupport"
)

func TestPutGetHeadExists(t *testing.T) {
	bucket := t.TempDir()
	fs := blobstore.NewFS()

	if err := fs.Put(bucket, "Feature/Video/file.mov", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := fs.Exists(bucket, "Feature/Video/file.mov")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	info, err := fs.Head(bucket, "Feature/Video/file.mov")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if info.Size != int64(len("payload")) {
		t.Fatalf("Head size: got %d", info.Size)
	}
	content, err := fs.GetContent(bucket, "Feature/Video/file.mov")
	if err != nil || string(content) != "payload" {
		t.Fatalf("GetContent: %q err=%v", content, err)
	}

	if _, err := fs.Head(bucket, "missing.bin"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err = fs.Exists(bucket, "missing.bin")
	if err != nil || ok {
		t.Fatalf("Exists on missing: ok=%v err=%v", ok, err)
	}
}

func TestKeyTraversalStaysInBucket(t *testing.T) {
	base := t.TempDir()
	bucket := filepath.Join(base, "bucket")
	fs := blobstore.NewFS()

	if err := fs.Put(bucket, "../escape.txt", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := fs.Exists(bucket, "escape.txt")
	if err != nil || !ok {
		t.Fatalf("expected traversal key confined to bucket: ok=%v err=%v", ok, err)
	}
}

func TestCopyMoveDelete(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	fs := blobstore.NewFS()

	testsupport.WriteObject(t, src, "a/file.txt", []byte("content"))

	if err := fs.Copy(src, "a/file.txt", dst, "b/file.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if ok, _ := fs.Exists(dst, "b/file.txt"); !ok {
		t.Fatal("expected copy present")
	}
	if ok, _ := fs.Exists(src, "a/file.txt"); !ok {
		t.Fatal("expected source intact after copy")
	}

	if err := fs.Move(src, "a/file.txt", dst, "c/file.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if ok, _ := fs.Exists(src, "a/file.txt"); ok {
		t.Fatal("expected source removed after move")
	}
	if ok, _ := fs.Exists(dst, "c/file.txt"); !ok {
		t.Fatal("expected moved object present")
	}

	if err := fs.Delete(dst, "c/file.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := fs.Delete(dst, "c/file.txt"); err != nil {
		t.Fatalf("Delete of missing object should be nil, got %v", err)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	bucket := t.TempDir()
	fs := blobstore.NewFS()

	testsupport.WriteObject(t, bucket, "Upload/pkg/b.txt", []byte("b"))
	testsupport.WriteObject(t, bucket, "Upload/pkg/a.txt", []byte("a"))
	testsupport.WriteObject(t, bucket, "Other/c.txt", []byte("c"))

	keys, err := fs.List(bucket, "Upload/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"Upload/pkg/a.txt", "Upload/pkg/b.txt"}
	if len(keys) != len(want) {
		t.Fatalf("List returned %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("List order: got %v want %v", keys, want)
		}
	}

	keys, err = fs.List(filepath.Join(bucket, "does-not-exist"), "")
	if err != nil || len(keys) != 0 {
		t.Fatalf("List on missing bucket: keys=%v err=%v", keys, err)
	}
}

func TestVerifyAndDeleteFolder(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	fs := blobstore.NewFS()

	testsupport.WriteObject(t, src, "Upload/pkg/a.txt", []byte("a"))
	testsupport.WriteObject(t, src, "Upload/pkg/b.txt", []byte("b"))
	testsupport.WriteObject(t, dst, "pkg/a.txt", []byte("a"))

	// One copy missing: nothing may be deleted.
	ok, err := fs.VerifyAndDeleteFolder(src, "Upload/pkg/", dst, "pkg/")
	if err != nil {
		t.Fatalf("VerifyAndDeleteFolder: %v", err)
	}
	if ok {
		t.Fatal("expected verification to fail with a missing copy")
	}
	if present, _ := fs.Exists(src, "Upload/pkg/a.txt"); !present {
		t.Fatal("source deleted despite failed verification")
	}

	testsupport.WriteObject(t, dst, "pkg/b.txt", []byte("b"))
	ok, err = fs.VerifyAndDeleteFolder(src, "Upload/pkg/", dst, "pkg/")
	if err != nil || !ok {
		t.Fatalf("VerifyAndDeleteFolder after full copy: ok=%v err=%v", ok, err)
	}
	for _, key := range []string{"Upload/pkg/a.txt", "Upload/pkg/b.txt"} {
		if present, _ := fs.Exists(src, key); present {
			t.Fatalf("expected %s removed", key)
		}
	}
}

func TestMD5Checksum(t *testing.T) {
	bucket := t.TempDir()
	fs := blobstore.NewFS()

	testsupport.WriteObject(t, bucket, "file.bin", []byte("checksum me"))

	sum := md5.Sum([]byte("checksum me"))
	want := hex.EncodeToString(sum[:])
	got, err := fs.MD5Checksum(bucket, "file.bin")
	if err != nil {
		t.Fatalf("MD5Checksum: %v", err)
	}
	if got != want {
		t.Fatalf("MD5Checksum: got %q want %q", got, want)
	}
}
