package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"manifold/internal/blobstore"
	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/manifest"
	"manifold/internal/pathutil"
	"manifold/internal/records"
	"manifold/internal/services"
)

var wmSuffix = regexp.MustCompile(`(?i)_WM(\d+)\.mov$`)

// MovedFile describes one watermarked variant promoted to the licensee
// cache.
type MovedFile struct {
	BaseFile string
	Key      string
	Version  int
}

// Cache manages the watermarked variant pool.
type Cache struct {
	store  *records.Store
	blobs  *blobstore.FS
	client *Client
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewCache wires the watermark cache service. The API client may be nil
// when watermarking is not configured; variant regeneration is then
// skipped with a warning.
func NewCache(store *records.Store, blobs *blobstore.FS, client *Client, cfg *config.Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		store:  store,
		blobs:  blobs,
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the cache clock. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// NextWatermarkVersion scans a folder for `_WM<n>.mov` variants and
// returns the next free index, starting at 1.
func (c *Cache) NextWatermarkVersion(bucket, folderPrefix string) (int, error) {
	keys, err := c.blobs.List(bucket, folderPrefix)
	if err != nil {
		return 0, fmt.Errorf("scan watermark versions: %w", err)
	}
	maxIndex := 0
	for _, key := range keys {
		if m := wmSuffix.FindStringSubmatch(key); m != nil {
			if idx, err := strconv.Atoi(m[1]); err == nil && idx > maxIndex {
				maxIndex = idx
			}
		}
	}
	return maxIndex + 1, nil
}

// GenerateNextWatermark submits a job producing the next `_WM<n>`
// variant of a source file, keeping the variant pool replenished after
// a delivery consumed one. Returns the new variant filename.
func (c *Cache) GenerateNextWatermark(ctx context.Context, sourceBucket, sourceKey string) (string, error) {
	if c.client == nil {
		c.logger.Warn("watermark api not configured, skipping regeneration",
			logging.String(logging.FieldComponent, "watermark"),
			logging.String("source_key", sourceKey))
		return "", nil
	}

	filename := pathutil.BaseName(sourceKey)
	baseName := strings.TrimSuffix(filename, ".mov")
	folderPrefix := pathutil.FolderOf(sourceKey)

	nextIndex, err := c.NextWatermarkVersion(c.cfg.Paths.WatermarkBucket, pathutil.Join(folderPrefix, baseName+"_WM"))
	if err != nil {
		return "", err
	}

	newFilename := fmt.Sprintf("%s_WM%d.mov", baseName, nextIndex)
	if err := c.SubmitJob(ctx, sourceBucket, sourceKey, fmt.Sprintf("WM%d", nextIndex)); err != nil {
		return "", err
	}
	c.logger.Info("watermark variant job submitted",
		logging.String(logging.FieldComponent, "watermark"),
		logging.String("variant", newFilename))
	return newFilename, nil
}

// SubmitJob records a watermark job and submits it to the API. The
// record is written before the API call; a failed submission leaves the
// record in a failed state for inspection.
func (c *Cache) SubmitJob(ctx context.Context, sourceBucket, sourceKey, wmType string) error {
	jobID := uuid.NewString()

	filename := pathutil.BaseName(sourceKey)
	base := filename
	extension := "mov"
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		base = filename[:idx]
		extension = filename[idx+1:]
	}
	outputKey := pathutil.Join(pathutil.FolderOf(sourceKey), fmt.Sprintf("%s_%s.%s", base, wmType, extension))

	inputURI := "file://" + pathutil.Join(sourceBucket, sourceKey)
	outputURI := "file://" + pathutil.Join(c.cfg.Paths.WatermarkBucket, outputKey)

	job := &records.WatermarkJob{
		JobID:         jobID,
		SourceBucket:  sourceBucket,
		SourceKey:     sourceKey,
		WatermarkType: wmType,
		PresetID:      c.cfg.Watermark.PresetID,
		Status:        "created",
		OutputKey:     outputKey,
		OutputURI:     outputURI,
		CreatedAt:     dates.Format(c.now()),
	}
	if err := c.store.CreateWatermarkJob(ctx, job); err != nil {
		return services.Wrap(services.ErrTransient, "watermark", "submit_job", "job record create", err)
	}

	resp, err := c.client.SubmitJob(ctx, inputURI, outputURI, c.cfg.Watermark.PresetID)
	if err != nil {
		if updateErr := c.store.UpdateWatermarkJob(ctx, jobID, "", "", "failed", err.Error(), dates.Format(c.now())); updateErr != nil {
			c.logger.Error("failed-state update failed",
				logging.String(logging.FieldComponent, "watermark"),
				logging.String("job_id", jobID),
				logging.Error(updateErr))
		}
		return services.Wrap(services.ErrTransient, "watermark", "submit_job", "api submission", err)
	}

	wmid := ""
	if len(resp.Outputs) > 0 {
		wmid = resp.Outputs[0].WMID
	}
	if err := c.store.UpdateWatermarkJob(ctx, jobID, resp.ID, wmid, resp.Status, "", dates.Format(c.now())); err != nil {
		return services.Wrap(services.ErrTransient, "watermark", "submit_job", "job record update", err)
	}
	c.logger.Info("watermark job submitted",
		logging.String(logging.FieldComponent, "watermark"),
		logging.String("job_id", jobID),
		logging.String("api_job_id", resp.ID),
		logging.String("status", resp.Status))
	return nil
}

// MoveMovFiles promotes the lowest-numbered watermarked variant of every
// new or revised .mov manifest asset into the licensee cache under
// `{licensee}/{folder}/{file}`. Per-asset failures are logged and
// skipped.
func (c *Cache) MoveMovFiles(ctx context.Context, m *manifest.Manifest) []MovedFile {
	var moved []MovedFile
	for _, entry := range m.Assets {
		if !strings.HasSuffix(strings.ToLower(entry.FileName), ".mov") {
			continue
		}
		if entry.FileStatus != manifest.StatusNew && entry.FileStatus != manifest.StatusRevised {
			continue
		}

		baseName := strings.TrimSuffix(entry.FileName, ".mov")
		folder := pathutil.FolderOf(entry.FilePath)
		prefix := pathutil.Join(folder, baseName+"_WM")

		version, key, ok := c.lowestVariant(prefix)
		if !ok {
			c.logger.Warn("no watermarked variant available",
				logging.String(logging.FieldComponent, "watermark"),
				logging.String("file_name", entry.FileName))
			continue
		}

		destKey := pathutil.Join(m.MainBody.LicenseeID, key)
		if err := c.blobs.Copy(c.cfg.Paths.WatermarkBucket, key, c.cfg.Paths.LicenseeBucket, destKey); err != nil {
			c.logger.Error("variant copy failed",
				logging.String(logging.FieldComponent, "watermark"),
				logging.String("key", key),
				logging.Error(err))
			continue
		}
		if err := c.blobs.Delete(c.cfg.Paths.WatermarkBucket, key); err != nil {
			c.logger.Error("variant delete failed",
				logging.String(logging.FieldComponent, "watermark"),
				logging.String("key", key),
				logging.Error(err))
			continue
		}

		c.logger.Info("watermarked variant promoted",
			logging.String(logging.FieldComponent, "watermark"),
			logging.String("key", key),
			logging.String("dest_key", destKey))
		moved = append(moved, MovedFile{
			BaseFile: entry.FileName,
			Key:      key,
			Version:  version,
		})
	}
	return moved
}

// lowestVariant finds the lowest-numbered `_WM<n>.mov` key under a
// prefix in the watermark bucket.
func (c *Cache) lowestVariant(prefix string) (int, string, bool) {
	keys, err := c.blobs.List(c.cfg.Paths.WatermarkBucket, prefix)
	if err != nil {
		c.logger.Error("variant scan failed",
			logging.String(logging.FieldComponent, "watermark"),
			logging.String("prefix", prefix),
			logging.Error(err))
		return 0, "", false
	}

	type variant struct {
		version int
		key     string
	}
	var variants []variant
	for _, key := range keys {
		if m := wmSuffix.FindStringSubmatch(key); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				variants = append(variants, variant{v, key})
			}
		}
	}
	if len(variants) == 0 {
		return 0, "", false
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].version < variants[j].version })
	return variants[0].version, variants[0].key, true
}
