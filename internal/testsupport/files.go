package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteObject places content at a key under a bucket directory, creating
// parent directories as needed.
func WriteObject(t testing.TB, bucket, key string, content []byte) {
	t.Helper()

	target := filepath.Join(bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", key, err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", key, err)
	}
}
