package watermark_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"manifold/internal/blobstore"
	"manifold/internal/config"
	"manifold/internal/logging"
	"manifold/internal/manifest"
	"manifold/internal/records"
	"manifold/internal/services"
	"manifold/internal/testsupport"
	"manifold/internal/watermark"
)

func newCacheEnv(t *testing.T, client *watermark.Client) (*config.Config, *records.Store, *blobstore.FS, *watermark.Cache) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Watermark.PresetID = "preset-9"
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS()
	cache := watermark.NewCache(store, blobs, client, cfg, logging.NewNop())
	return cfg, store, blobs, cache
}

func TestNextWatermarkVersion(t *testing.T) {
	cfg, _, _, cache := newCacheEnv(t, nil)

	next, err := cache.NextWatermarkVersion(cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM")
	if err != nil {
		t.Fatalf("NextWatermarkVersion: %v", err)
	}
	if next != 1 {
		t.Fatalf("empty pool next = %d, want 1", next)
	}

	testsupport.WriteObject(t, cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM1.mov", []byte("wm1"))
	testsupport.WriteObject(t, cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM3.mov", []byte("wm3"))

	next, err = cache.NextWatermarkVersion(cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM")
	if err != nil {
		t.Fatalf("NextWatermarkVersion: %v", err)
	}
	if next != 4 {
		t.Fatalf("next = %d, want 4", next)
	}
}

func TestMoveMovFilesPromotesLowestVariant(t *testing.T) {
	cfg, _, blobs, cache := newCacheEnv(t, nil)

	// WM10 sorts after WM2 numerically, not lexically.
	testsupport.WriteObject(t, cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM2.mov", []byte("wm2"))
	testsupport.WriteObject(t, cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM10.mov", []byte("wm10"))

	m := &manifest.Manifest{
		MainBody: manifest.MainBody{LicenseeID: "LIC1"},
		Assets: []manifest.AssetEntry{
			{FileName: "feature.mov", FilePath: "TTL1.V1/Feature/Video/feature.mov", FileStatus: manifest.StatusNew},
			{FileName: "subs.srt", FilePath: "TTL1.V1/Feature/Video/subs.srt", FileStatus: manifest.StatusNew},
			{FileName: "recap.mov", FilePath: "TTL1.V1/Feature/Video/recap.mov", FileStatus: manifest.StatusNoChange},
			{FileName: "ghost.mov", FilePath: "TTL1.V1/Feature/Video/ghost.mov", FileStatus: manifest.StatusRevised},
		},
	}

	moved := cache.MoveMovFiles(context.Background(), m)
	if len(moved) != 1 {
		t.Fatalf("moved = %+v, want 1 entry", moved)
	}
	if moved[0].BaseFile != "feature.mov" || moved[0].Version != 2 {
		t.Fatalf("moved = %+v", moved[0])
	}

	promoted, err := blobs.Exists(cfg.Paths.LicenseeBucket, "LIC1/TTL1.V1/Feature/Video/feature_WM2.mov")
	if err != nil || !promoted {
		t.Fatalf("promoted variant: present=%v err=%v", promoted, err)
	}
	remaining, err := blobs.Exists(cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM2.mov")
	if err != nil || remaining {
		t.Fatalf("consumed variant still cached: present=%v err=%v", remaining, err)
	}
	untouched, err := blobs.Exists(cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM10.mov")
	if err != nil || !untouched {
		t.Fatalf("higher variant should stay: present=%v err=%v", untouched, err)
	}
}

func TestGenerateNextWatermarkWithoutClient(t *testing.T) {
	_, _, _, cache := newCacheEnv(t, nil)

	variant, err := cache.GenerateNextWatermark(context.Background(), "asset-repo", "TTL1.V1/Feature/Video/feature.mov")
	if err != nil {
		t.Fatalf("GenerateNextWatermark: %v", err)
	}
	if variant != "" {
		t.Fatalf("variant = %q, want empty without a client", variant)
	}
}

func jobRecord(t *testing.T, store *records.Store) *records.WatermarkJob {
	t.Helper()

	var jobID string
	row := store.DB().QueryRowContext(context.Background(), `SELECT job_id FROM watermark_jobs`)
	if err := row.Scan(&jobID); err != nil {
		t.Fatalf("scan job id: %v", err)
	}
	job, err := store.GetWatermarkJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetWatermarkJob: %v", err)
	}
	return job
}

func TestSubmitJobRecordsOutcome(t *testing.T) {
	var (
		gotPath  string
		gotAuth  string
		gotInput string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Input struct {
				URI string `json:"uri"`
			} `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotInput = req.Input.URI
		_ = json.NewEncoder(w).Encode(watermark.JobResponse{
			ID:      "api-77",
			Status:  "submitted",
			Outputs: []watermark.JobOutput{{URI: "file:///out", WMID: "wmid-9"}},
		})
	}))
	defer server.Close()

	client := watermark.NewClient(config.Watermark{
		APIURL:      server.URL,
		BearerToken: "tok-123",
		PresetID:    "preset-9",
	})
	_, store, _, cache := newCacheEnv(t, client)

	err := cache.SubmitJob(context.Background(), "asset-repo", "TTL1.V1/Feature/Video/feature.mov", "WM1")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	if gotPath != "/api/v3/jobs?autostart=true" {
		t.Fatalf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if !strings.HasSuffix(gotInput, "TTL1.V1/Feature/Video/feature.mov") {
		t.Fatalf("input uri = %q", gotInput)
	}

	job := jobRecord(t, store)
	if job.Status != "submitted" || job.APIJobID != "api-77" || job.WMID != "wmid-9" {
		t.Fatalf("job record = %+v", job)
	}
	if job.WatermarkType != "WM1" || job.PresetID != "preset-9" {
		t.Fatalf("job metadata = %+v", job)
	}
	if job.OutputKey != "TTL1.V1/Feature/Video/feature_WM1.mov" {
		t.Fatalf("output key = %q", job.OutputKey)
	}
}

func TestSubmitJobAPIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "preset unknown", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := watermark.NewClient(config.Watermark{APIURL: server.URL, PresetID: "preset-9"})
	_, store, _, cache := newCacheEnv(t, client)

	err := cache.SubmitJob(context.Background(), "asset-repo", "TTL1.V1/Feature/Video/feature.mov", "WM1")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}

	job := jobRecord(t, store)
	if job.Status != "failed" || job.Error == "" {
		t.Fatalf("job record = %+v", job)
	}
}

func TestGenerateNextWatermarkSubmitsNextIndex(t *testing.T) {
	var outputURI string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Outputs []struct {
				URI string `json:"uri"`
			} `json:"outputs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Outputs) == 1 {
			outputURI = req.Outputs[0].URI
		}
		_ = json.NewEncoder(w).Encode(watermark.JobResponse{ID: "api-78", Status: "submitted"})
	}))
	defer server.Close()

	client := watermark.NewClient(config.Watermark{APIURL: server.URL, PresetID: "preset-9"})
	cfg, _, _, cache := newCacheEnv(t, client)

	testsupport.WriteObject(t, cfg.Paths.WatermarkBucket, "TTL1.V1/Feature/Video/feature_WM1.mov", []byte("wm1"))

	variant, err := cache.GenerateNextWatermark(context.Background(), "asset-repo", "TTL1.V1/Feature/Video/feature.mov")
	if err != nil {
		t.Fatalf("GenerateNextWatermark: %v", err)
	}
	if variant != "feature_WM2.mov" {
		t.Fatalf("variant = %q, want feature_WM2.mov", variant)
	}
	if !strings.HasSuffix(outputURI, "TTL1.V1/Feature/Video/feature_WM2.mov") {
		t.Fatalf("output uri = %q", outputURI)
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if client := watermark.NewClient(config.Watermark{APIURL: "  "}); client != nil {
		t.Fatal("expected nil client without an endpoint")
	}
}
