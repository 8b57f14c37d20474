package testsupport

import (
	"path/filepath"
	"testing"

	"manifold/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.IngestBucket = filepath.Join(base, "ingest")
	cfg.Paths.AssetRepoBucket = filepath.Join(base, "asset-repo")
	cfg.Paths.WatermarkBucket = filepath.Join(base, "watermark-cache")
	cfg.Paths.LicenseeBucket = filepath.Join(base, "licensee-cache")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithChecksumEnforced toggles ingest checksum validation on the test config.
func WithChecksumEnforced(enforced bool) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Delivery.ChecksumEnforced = enforced
	}
}

// WithDefaultStudio sets the fallback studio on the test config.
func WithDefaultStudio(studioID string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Delivery.DefaultStudioID = studioID
	}
}
