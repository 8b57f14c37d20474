package manifest_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"manifold/internal/blobstore"
	"manifold/internal/dates"
	"manifold/internal/manifest"
	"manifold/internal/records"
	"manifold/internal/services"
	"manifold/internal/testsupport"
)

func seedDelivery(t *testing.T, store *records.Store) {
	t.Helper()
	ctx := context.Background()

	testsupport.NewDA(t, store, "DA1", "TTL1", "V1", "LIC1")
	if err := store.CreateTitle(ctx, &records.Title{
		TitleID:     "TTL1",
		VersionID:   "V1",
		TitleName:   "Glass Harbor",
		VersionName: "Theatrical",
		ReleaseYear: "2024",
		Uploader:    "SYSTEM",
		CreatedAt:   dates.Now(),
	}); err != nil {
		t.Fatalf("CreateTitle: %v", err)
	}
	if err := store.PutLicensee(ctx, &records.Licensee{
		LicenseeID:        "LIC1",
		LicenseeName:      "Northwind Streaming",
		ManifestFrequency: 1800,
		QueueName:         "licensee-northwind",
	}); err != nil {
		t.Fatalf("PutLicensee: %v", err)
	}
	if err := store.PutComponentConfig(ctx, &records.ComponentConfig{
		ComponentID:     "COMP-VIDEO",
		FolderStructure: "Feature/Video",
	}); err != nil {
		t.Fatalf("PutComponentConfig: %v", err)
	}
	if err := store.PutComponent(ctx, &records.Component{
		DAID:           "DA1",
		ComponentID:    "COMP-VIDEO",
		TitleID:        "TTL1",
		VersionID:      "V1",
		Required:       true,
		DeliveryStatus: records.DeliveryPending,
		CreatedAt:      dates.Now(),
	}); err != nil {
		t.Fatalf("PutComponent: %v", err)
	}
}

func TestGenerateBuildsManifestFromCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedDelivery(t, store)
	ctx := context.Background()

	// A watermarked video and a plain document.
	if err := store.PutAsset(ctx, &records.Asset{
		AssetID:    "A1",
		TitleID:    "TTL1",
		VersionID:  "V1",
		Filename:   "feature.mov",
		Checksum:   "sum-a1",
		FolderPath: "TTL1.V1/Feature/Video/feature.mov",
		Version:    1,
	}); err != nil {
		t.Fatalf("PutAsset: %v", err)
	}
	if err := store.PutAsset(ctx, &records.Asset{
		AssetID:    "A2",
		TitleID:    "TTL1",
		VersionID:  "V1",
		Filename:   "subs.srt",
		Checksum:   "sum-a2",
		FolderPath: "TTL1.V1/Feature/Video/subs.srt",
		Version:    1,
	}); err != nil {
		t.Fatalf("PutAsset: %v", err)
	}
	// An asset in the catalog but absent from storage stays out.
	if err := store.PutAsset(ctx, &records.Asset{
		AssetID:    "A3",
		TitleID:    "TTL1",
		VersionID:  "V1",
		Filename:   "missing.srt",
		Checksum:   "sum-a3",
		FolderPath: "TTL1.V1/Feature/Video/missing.srt",
		Version:    1,
	}); err != nil {
		t.Fatalf("PutAsset: %v", err)
	}

	// Watermark variants WM2 and WM1: the lowest one is the deliverable.
	testsupport.WriteObject(t, cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM2.mov", []byte("wm2"))
	testsupport.WriteObject(t, cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM1.mov", bytes.Repeat([]byte("x"), 2*1024*1024))
	testsupport.WriteObject(t, cfg.Paths.AssetRepoBucket, "TTL1.V1/Feature/Video/subs.srt", []byte("1\n00:00:01\nhi\n"))

	generator := manifest.NewGenerator(store, blobstore.NewFS(), cfg, nil)
	m, err := generator.Generate(ctx, "DA1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if m.MainBody.DistributionAuthorizationID != "DA1" {
		t.Fatalf("main body da: %q", m.MainBody.DistributionAuthorizationID)
	}
	if m.MainBody.TitleName != "Glass Harbor" || m.MainBody.LicenseeName != "Northwind Streaming" {
		t.Fatalf("main body join: %+v", m.MainBody)
	}
	if m.MainBody.ReleaseYear == nil || *m.MainBody.ReleaseYear != 2024 {
		t.Fatalf("release year: %v", m.MainBody.ReleaseYear)
	}
	if len(m.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d: %+v", len(m.Assets), m.Assets)
	}

	var video *manifest.AssetEntry
	for i := range m.Assets {
		if m.Assets[i].AssetID == "A1" {
			video = &m.Assets[i]
		}
	}
	if video == nil {
		t.Fatal("video asset missing from manifest")
	}
	if video.FileStatus != manifest.StatusNew {
		t.Fatalf("untracked asset status: %q", video.FileStatus)
	}
	if video.FilePath != "TTL1.V1/Feature/Video/feature.mov" {
		t.Fatalf("file path: %q", video.FilePath)
	}
	// Size comes from the lowest watermark variant (2 MiB).
	if video.FileSizeMB != 2 {
		t.Fatalf("file size: %v", video.FileSizeMB)
	}
}

func TestGenerateFileStatusFollowsTracker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedDelivery(t, store)
	ctx := context.Background()

	if err := store.PutAsset(ctx, &records.Asset{
		AssetID:    "A2",
		TitleID:    "TTL1",
		VersionID:  "V1",
		Filename:   "subs.srt",
		Checksum:   "sum-a2",
		FolderPath: "TTL1.V1/Feature/Video/subs.srt",
		Version:    3,
	}); err != nil {
		t.Fatalf("PutAsset: %v", err)
	}
	testsupport.WriteObject(t, cfg.Paths.AssetRepoBucket, "TTL1.V1/Feature/Video/subs.srt", []byte("srt"))

	// Tracker behind the catalog version reads as Revised.
	if err := store.PutTracker(ctx, &records.Tracker{
		DAID:       "DA1",
		AssetID:    "A2",
		Filename:   "subs.srt",
		Version:    2,
		FileStatus: records.FileNoChange,
	}); err != nil {
		t.Fatalf("PutTracker: %v", err)
	}

	generator := manifest.NewGenerator(store, blobstore.NewFS(), cfg, nil)
	m, err := generator.Generate(ctx, "DA1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(m.Assets) != 1 || m.Assets[0].FileStatus != manifest.StatusRevised {
		t.Fatalf("expected Revised entry, got %+v", m.Assets)
	}
	if m.ChangedAssetCount() != 1 {
		t.Fatalf("changed count: %d", m.ChangedAssetCount())
	}

	// Tracker caught up reads as No Change.
	if err := store.PutTracker(ctx, &records.Tracker{
		DAID:       "DA1",
		AssetID:    "A2",
		Filename:   "subs.srt",
		Version:    3,
		FileStatus: records.FileNoChange,
	}); err != nil {
		t.Fatalf("PutTracker update: %v", err)
	}
	m, err = generator.Generate(ctx, "DA1")
	if err != nil {
		t.Fatalf("Generate second: %v", err)
	}
	if m.Assets[0].FileStatus != manifest.StatusNoChange {
		t.Fatalf("expected No Change, got %q", m.Assets[0].FileStatus)
	}
	if m.ChangedAssetCount() != 0 {
		t.Fatalf("changed count after catch-up: %d", m.ChangedAssetCount())
	}
}

func TestGenerateMissingRecordsAreIntegrityFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	generator := manifest.NewGenerator(store, blobstore.NewFS(), cfg, nil)
	if _, err := generator.Generate(context.Background(), "missing"); !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("missing da: expected integrity error, got %v", err)
	}

	// DA present but title absent.
	testsupport.NewDA(t, store, "DA1", "TTL1", "V1", "LIC1")
	if _, err := generator.Generate(context.Background(), "DA1"); !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("missing title: expected integrity error, got %v", err)
	}
}
