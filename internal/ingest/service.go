// Package ingest validates uploaded asset packages and promotes them
// into the asset repository.
//
// Studios drop a folder of files plus a CSV manifest under Upload/ in
// the ingest bucket. Once a package has sat past the settling cutoff it
// is checked for manifest presence, file-count agreement, extra files,
// and checksums; clean packages move to the asset repository with
// catalog records written, anything else is quarantined under Error/.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"manifold/internal/blobstore"
	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/pathutil"
	"manifold/internal/records"
	"manifold/internal/services"
)

const (
	uploadPrefix = "Upload/"
	errorPrefix  = "Error/"
)

// SweepResult counts the outcome of one validation sweep.
type SweepResult struct {
	Processed int
	Failed    int
	Skipped   int
}

// Service runs the package validation state machine.
type Service struct {
	store  *records.Store
	blobs  *blobstore.FS
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a package validation service.
func NewService(store *records.Store, blobs *blobstore.FS, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  store,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RunValidationSweep processes every structurally valid package older
// than the settling cutoff. Per-package failures are isolated.
func (s *Service) RunValidationSweep(ctx context.Context) (*SweepResult, error) {
	packages, err := s.store.IngestPackagesByStatus(ctx, records.ProcessValidStructure)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "validation_sweep", "package scan", err)
	}

	cutoffMinutes := s.cfg.Workers.ValidationCutoffMin
	if cutoffMinutes <= 0 {
		cutoffMinutes = 1
	}
	cutoff := s.now().Add(-time.Duration(cutoffMinutes) * time.Minute)

	result := &SweepResult{}
	for _, pkg := range packages {
		created, err := dates.Parse(pkg.CreatedAt)
		if err != nil {
			s.logger.Warn("package has unparseable creation time, skipping",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("asset_path", pkg.AssetPath),
				logging.Error(err))
			result.Skipped++
			continue
		}
		if created.After(cutoff) {
			result.Skipped++
			continue
		}
		if err := s.ProcessPackage(ctx, pkg); err != nil {
			s.logger.Error("package processing failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("asset_path", pkg.AssetPath),
				logging.Error(err))
			result.Failed++
			continue
		}
		result.Processed++
	}
	s.logger.Info("validation sweep complete",
		logging.String(logging.FieldComponent, "ingest"),
		logging.Int("processed", result.Processed),
		logging.Int("failed", result.Failed),
		logging.Int("skipped", result.Skipped))
	return result, nil
}

// ProcessPackage runs one package through manifest, count, extra-file,
// and checksum validation, ending in promotion or quarantine.
func (s *Service) ProcessPackage(ctx context.Context, pkg *records.IngestPackage) error {
	folderPrefix := strings.Trim(pathutil.Normalize(pkg.AssetPath), "/")
	if folderPrefix == "" {
		return services.Wrap(services.ErrIntegrity, "ingest", "process_package", "package has empty asset path", nil)
	}
	titleFolder := strings.SplitN(folderPrefix, "/", 2)[0]

	keys, err := s.blobs.List(s.cfg.Paths.IngestBucket, uploadPrefix+titleFolder)
	if err != nil {
		return services.Wrap(services.ErrTransient, "ingest", "process_package", "list package files", err)
	}

	csvKey := findManifestKey(keys)
	if csvKey == "" {
		s.logger.Warn("no manifest csv in package, failing",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix))
		s.quarantine(ctx, keys, folderPrefix, records.ProcessFailed)
		return nil
	}

	content, err := s.blobs.GetContent(s.cfg.Paths.IngestBucket, csvKey)
	if err != nil {
		return services.Wrap(services.ErrTransient, "ingest", "process_package", "read manifest", err)
	}
	if err := ValidatePackageManifest(content); err != nil {
		s.logger.Error("manifest validation failed",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix),
			logging.Error(err))
		s.quarantine(ctx, keys, folderPrefix, records.ProcessInvalidCSV)
		return nil
	}
	manifest, err := ParsePackageManifest(content)
	if err != nil {
		s.quarantine(ctx, keys, folderPrefix, records.ProcessInvalidCSV)
		return nil
	}

	s.registerCatalog(ctx, manifest)

	assetKeys := withoutManifest(keys, csvKey)
	switch {
	case len(manifest.Rows) == 0:
		s.logger.Error("manifest has no data rows",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix))
		s.quarantine(ctx, keys, folderPrefix, records.ProcessInvalidCSV)
		s.verifyAndCleanError(titleFolder)
		return nil

	case len(assetKeys) == 0:
		// Files have not arrived yet. Leave the package at
		// VALID_STRUCTURE so the next sweep re-examines it.
		s.logger.Info("manifest present but no asset files yet",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix),
			logging.Int("manifest_rows", len(manifest.Rows)))
		return nil

	case len(assetKeys) < len(manifest.Rows):
		s.logger.Warn("package has fewer files than manifest lists",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix),
			logging.Int("files", len(assetKeys)),
			logging.Int("manifest_rows", len(manifest.Rows)))
		s.quarantine(ctx, keys, folderPrefix, records.ProcessMissingFiles)
		return nil

	case len(assetKeys) > len(manifest.Rows):
		extras := extraFiles(manifest.Rows, assetKeys)
		if len(extras) > 0 {
			s.quarantineExtras(ctx, extras)
			return nil
		}
		// All folder paths still match the manifest; fall through.
	}

	if s.cfg.Delivery.ChecksumEnforced {
		mismatched, err := s.mismatchedChecksums(manifest.Rows, assetKeys)
		if err != nil {
			return err
		}
		if len(mismatched) > 0 {
			s.logger.Error("checksum mismatches detected",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("asset_path", folderPrefix),
				logging.Int("mismatched", len(mismatched)))
			s.quarantine(ctx, append(mismatched, csvKey), folderPrefix, records.ProcessMismatchChecksum)
			s.verifyAndCleanError(titleFolder)
			return nil
		}
	}

	return s.promote(ctx, keys, folderPrefix, titleFolder)
}

// registerCatalog writes the title record and versioned asset records
// from the manifest. The title create is idempotent; failures here are
// logged rather than failing the package, the next sweep converges.
func (s *Service) registerCatalog(ctx context.Context, manifest *PackageManifest) {
	title := manifest.Title
	title.CreatedAt = dates.Format(s.now())
	if err := s.store.CreateTitle(ctx, &title); err != nil {
		if errors.Is(err, records.ErrAlreadyExists) {
			s.logger.Debug("title already exists",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("title_id", title.TitleID))
		} else {
			s.logger.Error("title create failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("title_id", title.TitleID),
				logging.Error(err))
		}
	}

	for _, row := range manifest.Rows {
		if row.FolderPath == "" || row.Checksum == "" {
			s.logger.Warn("skipping manifest row with missing folder path or checksum",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("filename", row.Filename))
			continue
		}
		version, err := s.nextAssetVersion(ctx, row)
		if err != nil {
			s.logger.Error("asset version lookup failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("filename", row.Filename),
				logging.Error(err))
			continue
		}
		if version == 0 {
			s.logger.Debug("duplicate asset content, skipping",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("filename", row.Filename))
			continue
		}
		creationDate := row.CreationDate
		if creationDate == "" {
			creationDate = dates.Format(s.now())
		}
		asset := &records.Asset{
			AssetID:               uuid.NewString(),
			TitleID:               manifest.Title.TitleID,
			VersionID:             manifest.Title.VersionID,
			Filename:              row.Filename,
			Checksum:              row.Checksum,
			FolderPath:            row.FolderPath,
			Version:               version,
			CreationDate:          creationDate,
			StudioAssetID:         row.StudioAssetID,
			StudioRevisionNotes:   row.RevisionNotes,
			StudioRevisionUrgency: row.RevisionUrgency,
			StudioSystemName:      row.StudioSystemName,
		}
		if err := s.store.PutAsset(ctx, asset); err != nil {
			s.logger.Error("asset record write failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("filename", row.Filename),
				logging.Error(err))
		}
	}
}

// nextAssetVersion returns the version to assign a manifest row, or 0
// when the row duplicates already-cataloged content.
func (s *Service) nextAssetVersion(ctx context.Context, row AssetRow) (int, error) {
	existing, err := s.store.AssetsByFolder(ctx, row.FolderPath)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 1, nil
	}
	for _, asset := range existing {
		if asset.Filename == row.Filename && asset.Checksum == row.Checksum {
			return 0, nil
		}
	}
	latest := existing[0]
	for _, asset := range existing[1:] {
		if asset.Version > latest.Version {
			latest = asset
		}
	}
	if latest.Checksum == row.Checksum {
		return 0, nil
	}
	return latest.Version + 1, nil
}

// mismatchedChecksums compares each uploaded file's MD5 against its
// manifest row, matched by folder and filename.
func (s *Service) mismatchedChecksums(rows []AssetRow, assetKeys []string) ([]string, error) {
	type rowKey struct{ folder, filename string }
	expected := make(map[rowKey]string, len(rows))
	for _, row := range rows {
		folder := strings.Trim(pathutil.StripFilename(row.FolderPath, row.Filename), "/")
		expected[rowKey{folder, row.Filename}] = row.Checksum
	}

	var mismatched []string
	for _, key := range assetKeys {
		stripped := strings.TrimPrefix(key, uploadPrefix)
		want, ok := expected[rowKey{pathutil.FolderOf(stripped), pathutil.BaseName(stripped)}]
		if !ok {
			s.logger.Warn("uploaded file has no manifest row, skipping checksum",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("key", key))
			continue
		}
		actual, err := s.blobs.MD5Checksum(s.cfg.Paths.IngestBucket, key)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "ingest", "validate_checksums", "checksum "+key, err)
		}
		if !strings.EqualFold(actual, want) {
			s.logger.Warn("checksum mismatch",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("key", key),
				logging.String("expected", want),
				logging.String("actual", actual))
			mismatched = append(mismatched, key)
		}
	}
	return mismatched, nil
}

// promote copies every package file into the asset repository with the
// Upload/ prefix stripped, marks the package SUCCESS, then removes the
// verified source files.
func (s *Service) promote(ctx context.Context, keys []string, folderPrefix, titleFolder string) error {
	for _, key := range keys {
		dstKey := strings.TrimPrefix(key, uploadPrefix)
		if err := s.blobs.Copy(s.cfg.Paths.IngestBucket, key, s.cfg.Paths.AssetRepoBucket, dstKey); err != nil {
			return services.Wrap(services.ErrTransient, "ingest", "promote", "copy "+key, err)
		}
	}
	s.setPackageStatus(ctx, folderPrefix, records.ProcessSuccess)

	deleted, err := s.blobs.VerifyAndDeleteFolder(
		s.cfg.Paths.IngestBucket, uploadPrefix+titleFolder+"/",
		s.cfg.Paths.AssetRepoBucket, titleFolder+"/")
	if err != nil {
		return services.Wrap(services.ErrTransient, "ingest", "promote", "verify and delete source", err)
	}
	if !deleted {
		s.logger.Warn("not all files verified in asset repository, source kept",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix))
	}
	s.logger.Info("package promoted",
		logging.String(logging.FieldComponent, "ingest"),
		logging.String("asset_path", folderPrefix))
	return nil
}

// quarantine copies the named files to Error/ and moves the package to
// the terminal status. Copy failures are logged; the package status is
// recorded regardless so the sweep does not loop on a broken package.
func (s *Service) quarantine(ctx context.Context, keys []string, folderPrefix string, status records.ProcessStatus) {
	for _, key := range keys {
		dstKey := errorPrefix + strings.TrimPrefix(key, uploadPrefix)
		if err := s.blobs.Copy(s.cfg.Paths.IngestBucket, key, s.cfg.Paths.IngestBucket, dstKey); err != nil {
			s.logger.Error("quarantine copy failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("key", key),
				logging.Error(err))
		}
	}
	s.setPackageStatus(ctx, folderPrefix, status)
}

// quarantineExtras removes files the manifest does not list, marking
// each path so operators can trace what was rejected. The package keeps
// its current status and is re-examined on the next sweep.
func (s *Service) quarantineExtras(ctx context.Context, extras []string) {
	for _, key := range extras {
		dstKey := errorPrefix + strings.TrimPrefix(key, uploadPrefix)
		if err := s.blobs.Copy(s.cfg.Paths.IngestBucket, key, s.cfg.Paths.IngestBucket, dstKey); err != nil {
			s.logger.Error("extra file copy failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("key", key),
				logging.Error(err))
			continue
		}
		if err := s.blobs.Delete(s.cfg.Paths.IngestBucket, key); err != nil {
			s.logger.Error("extra file delete failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("key", key),
				logging.Error(err))
		}
		path := strings.TrimPrefix(key, uploadPrefix)
		if _, err := s.store.UpdateIngestStatusByPath(ctx, path, records.ProcessExtraFiles); err != nil {
			s.logger.Error("extra file status update failed",
				logging.String(logging.FieldComponent, "ingest"),
				logging.String("key", key),
				logging.Error(err))
		}
		s.logger.Warn("quarantined extra file",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("key", key))
	}
}

func (s *Service) setPackageStatus(ctx context.Context, folderPrefix string, status records.ProcessStatus) {
	changed, err := s.store.UpdateIngestStatusByPath(ctx, folderPrefix, status)
	if err != nil {
		s.logger.Error("package status update failed",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix),
			logging.Error(err))
		return
	}
	if changed == 0 {
		s.logger.Warn("no package records matched for status update",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("asset_path", folderPrefix))
	}
}

// verifyAndCleanError removes Upload/ originals once their copies are
// confirmed present under Error/.
func (s *Service) verifyAndCleanError(titleFolder string) {
	deleted, err := s.blobs.VerifyAndDeleteFolder(
		s.cfg.Paths.IngestBucket, uploadPrefix+titleFolder+"/",
		s.cfg.Paths.IngestBucket, errorPrefix+titleFolder+"/")
	if err != nil {
		s.logger.Error("error folder cleanup failed",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("title_folder", titleFolder),
			logging.Error(err))
		return
	}
	if !deleted {
		s.logger.Warn("not all files verified under error prefix, originals kept",
			logging.String(logging.FieldComponent, "ingest"),
			logging.String("title_folder", titleFolder))
	}
}

func findManifestKey(keys []string) string {
	for _, key := range keys {
		if strings.HasSuffix(strings.ToLower(key), ".csv") {
			return key
		}
	}
	return ""
}

func withoutManifest(keys []string, csvKey string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == csvKey || strings.HasSuffix(strings.ToLower(key), ".csv") {
			continue
		}
		out = append(out, key)
	}
	return out
}

// extraFiles returns uploaded asset keys whose folder is not listed in
// any manifest row.
func extraFiles(rows []AssetRow, assetKeys []string) []string {
	listed := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		folder := strings.Trim(pathutil.StripFilename(row.FolderPath, row.Filename), "/")
		listed[folder] = struct{}{}
	}
	var extras []string
	for _, key := range assetKeys {
		folder := pathutil.FolderOf(strings.TrimPrefix(key, uploadPrefix))
		if _, ok := listed[folder]; !ok {
			extras = append(extras, key)
		}
	}
	return extras
}
