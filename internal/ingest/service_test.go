package ingest_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"manifold/internal/blobstore"
	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/ingest"
	"manifold/internal/logging"
	"manifold/internal/records"
	"manifold/internal/testsupport"
)

func newIngestEnv(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, *records.Store, *blobstore.FS, *ingest.Service) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS()
	svc := ingest.NewService(store, blobs, cfg, logging.NewNop())
	return cfg, store, blobs, svc
}

// seedPackage records a structurally valid package old enough to clear
// the settling cutoff.
func seedPackage(t *testing.T, store *records.Store, ingestID, assetPath string) *records.IngestPackage {
	t.Helper()

	pkg := &records.IngestPackage{
		IngestID:      ingestID,
		AssetPath:     assetPath,
		ProcessStatus: records.ProcessValidStructure,
		CreatedAt:     dates.Format(time.Now().UTC().Add(-time.Hour)),
	}
	if err := store.PutIngestPackage(context.Background(), pkg); err != nil {
		t.Fatalf("PutIngestPackage: %v", err)
	}
	return pkg
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func assetRow(filename, checksum, folderPath string) string {
	return fmt.Sprintf("2024-05-01,%s,%s,%s,,,SA-1,MediaVault", filename, checksum, folderPath)
}

func packageStatus(t *testing.T, store *records.Store, ingestID string) records.ProcessStatus {
	t.Helper()

	pkg, err := store.GetIngestPackage(context.Background(), ingestID)
	if err != nil {
		t.Fatalf("GetIngestPackage %s: %v", ingestID, err)
	}
	return pkg.ProcessStatus
}

func mustExist(t *testing.T, blobs *blobstore.FS, bucket, key string, want bool) {
	t.Helper()

	ok, err := blobs.Exists(bucket, key)
	if err != nil {
		t.Fatalf("Exists %s: %v", key, err)
	}
	if ok != want {
		t.Fatalf("Exists(%s) = %v, want %v", key, ok, want)
	}
}

func TestProcessPackagePromotes(t *testing.T) {
	ctx := context.Background()
	cfg, store, blobs, svc := newIngestEnv(t)

	content := []byte("feature reel bits")
	fileKey := "Upload/TTL1.V1/Feature/Video/feature.mov"
	manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
		assetRow("feature.mov", md5Hex(content), "TTL1.V1/Feature/Video/feature.mov"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, fileKey, content)
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}

	if got := packageStatus(t, store, "ING1"); got != records.ProcessSuccess {
		t.Fatalf("status = %s, want SUCCESS", got)
	}
	mustExist(t, blobs, cfg.Paths.AssetRepoBucket, "TTL1.V1/Feature/Video/feature.mov", true)
	mustExist(t, blobs, cfg.Paths.AssetRepoBucket, "TTL1.V1/manifest.csv", true)
	mustExist(t, blobs, cfg.Paths.IngestBucket, fileKey, false)

	title, err := store.GetTitle(ctx, "TTL1", "V1")
	if err != nil {
		t.Fatalf("GetTitle: %v", err)
	}
	if title.TitleName != "Glass Harbor" || title.Uploader != "ops@studio.test" {
		t.Fatalf("unexpected title record: %+v", title)
	}

	assets, err := store.AssetsByFolder(ctx, "TTL1.V1/Feature/Video/feature.mov")
	if err != nil || len(assets) != 1 {
		t.Fatalf("AssetsByFolder: n=%d err=%v", len(assets), err)
	}
	if assets[0].Version != 1 || assets[0].Checksum != md5Hex(content) {
		t.Fatalf("unexpected asset record: %+v", assets[0])
	}
}

func TestProcessPackageNoManifest(t *testing.T) {
	ctx := context.Background()
	cfg, store, blobs, svc := newIngestEnv(t)

	fileKey := "Upload/TTL1.V1/Feature/Video/feature.mov"
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, fileKey, []byte("orphan"))
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}
	if got := packageStatus(t, store, "ING1"); got != records.ProcessFailed {
		t.Fatalf("status = %s, want FAILED", got)
	}
	mustExist(t, blobs, cfg.Paths.IngestBucket, "Error/TTL1.V1/Feature/Video/feature.mov", true)
}

func TestProcessPackageInvalidManifest(t *testing.T) {
	ctx := context.Background()
	cfg, store, blobs, svc := newIngestEnv(t)

	kv := defaultTitleKV()
	kv[5] = [2]string{"Release Year", ""}
	manifest := buildManifest(kv, manifestHeader, []string{
		assetRow("feature.mov", "abc123", "TTL1.V1/Feature/feature.mov"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}
	if got := packageStatus(t, store, "ING1"); got != records.ProcessInvalidCSV {
		t.Fatalf("status = %s, want INVALID_CSV", got)
	}
	mustExist(t, blobs, cfg.Paths.IngestBucket, "Error/TTL1.V1/manifest.csv", true)
}

func TestProcessPackageMissingFiles(t *testing.T) {
	ctx := context.Background()
	cfg, store, _, svc := newIngestEnv(t)

	content := []byte("only file present")
	manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
		assetRow("feature.mov", md5Hex(content), "TTL1.V1/Feature/Video/feature.mov"),
		assetRow("poster.jpg", "def456", "TTL1.V1/Artwork/poster.jpg"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", content)
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}
	if got := packageStatus(t, store, "ING1"); got != records.ProcessMissingFiles {
		t.Fatalf("status = %s, want MISSING_FILES", got)
	}
}

func TestProcessPackageWaitsForFiles(t *testing.T) {
	ctx := context.Background()
	cfg, store, blobs, svc := newIngestEnv(t)

	manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
		assetRow("feature.mov", "abc123", "TTL1.V1/Feature/Video/feature.mov"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}
	if got := packageStatus(t, store, "ING1"); got != records.ProcessValidStructure {
		t.Fatalf("status = %s, want VALID_STRUCTURE", got)
	}
	mustExist(t, blobs, cfg.Paths.AssetRepoBucket, "TTL1.V1/manifest.csv", false)
	mustExist(t, blobs, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", true)
}

func TestProcessPackageQuarantinesExtras(t *testing.T) {
	ctx := context.Background()
	cfg, store, blobs, svc := newIngestEnv(t)

	content := []byte("feature reel bits")
	manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
		assetRow("feature.mov", md5Hex(content), "TTL1.V1/Feature/Video/feature.mov"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", content)
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Stray/rogue.bin", []byte("unlisted"))
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")
	seedPackage(t, store, "ING2", "TTL1.V1/Stray/rogue.bin")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}

	mustExist(t, blobs, cfg.Paths.IngestBucket, "Error/TTL1.V1/Stray/rogue.bin", true)
	mustExist(t, blobs, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Stray/rogue.bin", false)
	mustExist(t, blobs, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", true)

	if got := packageStatus(t, store, "ING2"); got != records.ProcessExtraFiles {
		t.Fatalf("extra file status = %s, want EXTRA_FILES", got)
	}
	// The package itself stays validatable and is retried next sweep.
	if got := packageStatus(t, store, "ING1"); got != records.ProcessValidStructure {
		t.Fatalf("package status = %s, want VALID_STRUCTURE", got)
	}
}

func TestProcessPackageChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	cfg, store, blobs, svc := newIngestEnv(t)

	manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
		assetRow("feature.mov", "deadbeef", "TTL1.V1/Feature/Video/feature.mov"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", []byte("tampered"))
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}

	if got := packageStatus(t, store, "ING1"); got != records.ProcessMismatchChecksum {
		t.Fatalf("status = %s, want MISMATCH_CHECKSUM", got)
	}
	mustExist(t, blobs, cfg.Paths.IngestBucket, "Error/TTL1.V1/Feature/Video/feature.mov", true)
	mustExist(t, blobs, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", false)
}

func TestProcessPackageChecksumNotEnforced(t *testing.T) {
	ctx := context.Background()
	cfg, store, _, svc := newIngestEnv(t, testsupport.WithChecksumEnforced(false))

	manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
		assetRow("feature.mov", "deadbeef", "TTL1.V1/Feature/Video/feature.mov"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", []byte("tampered"))
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	pkg := seedPackage(t, store, "ING1", "TTL1.V1")

	if err := svc.ProcessPackage(ctx, pkg); err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}
	if got := packageStatus(t, store, "ING1"); got != records.ProcessSuccess {
		t.Fatalf("status = %s, want SUCCESS", got)
	}
}

func TestRepeatIngestAssignsVersions(t *testing.T) {
	ctx := context.Background()
	cfg, store, _, svc := newIngestEnv(t)

	ingestRound := func(content []byte) {
		t.Helper()
		manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
			assetRow("feature.mov", md5Hex(content), "TTL1.V1/Feature/Video/feature.mov"),
		})
		testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", content)
		testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
		pkg := seedPackage(t, store, "ING1", "TTL1.V1")
		if err := svc.ProcessPackage(ctx, pkg); err != nil {
			t.Fatalf("ProcessPackage: %v", err)
		}
	}

	ingestRound([]byte("first delivery"))
	ingestRound([]byte("revised delivery"))

	assets, err := store.AssetsByFolder(ctx, "TTL1.V1/Feature/Video/feature.mov")
	if err != nil || len(assets) != 2 {
		t.Fatalf("after revision: n=%d err=%v", len(assets), err)
	}
	if assets[0].Version != 2 {
		t.Fatalf("newest version = %d, want 2", assets[0].Version)
	}

	// Re-delivering identical content is a no-op on the catalog.
	ingestRound([]byte("revised delivery"))
	assets, err = store.AssetsByFolder(ctx, "TTL1.V1/Feature/Video/feature.mov")
	if err != nil || len(assets) != 2 {
		t.Fatalf("after duplicate: n=%d err=%v", len(assets), err)
	}
}

func TestRunValidationSweep(t *testing.T) {
	ctx := context.Background()
	cfg, store, _, svc := newIngestEnv(t)

	content := []byte("feature reel bits")
	manifest := buildManifest(defaultTitleKV(), manifestHeader, []string{
		assetRow("feature.mov", md5Hex(content), "TTL1.V1/Feature/Video/feature.mov"),
	})
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/Feature/Video/feature.mov", content)
	testsupport.WriteObject(t, cfg.Paths.IngestBucket, "Upload/TTL1.V1/manifest.csv", manifest)
	seedPackage(t, store, "ING1", "TTL1.V1")

	// Empty asset path cannot be located in storage.
	seedPackage(t, store, "ING2", "")

	fresh := &records.IngestPackage{
		IngestID:      "ING3",
		AssetPath:     "TTL2.V1",
		ProcessStatus: records.ProcessValidStructure,
		CreatedAt:     dates.Now(),
	}
	if err := store.PutIngestPackage(ctx, fresh); err != nil {
		t.Fatalf("PutIngestPackage: %v", err)
	}

	result, err := svc.RunValidationSweep(ctx)
	if err != nil {
		t.Fatalf("RunValidationSweep: %v", err)
	}
	if result.Processed != 1 || result.Failed != 1 || result.Skipped != 1 {
		t.Fatalf("sweep result = %+v", result)
	}

	if got := packageStatus(t, store, "ING1"); got != records.ProcessSuccess {
		t.Fatalf("processed package status = %s, want SUCCESS", got)
	}
	if got := packageStatus(t, store, "ING3"); got != records.ProcessValidStructure {
		t.Fatalf("fresh package status = %s, want VALID_STRUCTURE", got)
	}
}
