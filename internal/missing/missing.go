// Package missing audits a DA's required components against the asset
// store and builds the exception report sent to studio operations.
package missing

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"manifold/internal/blobstore"
	"manifold/internal/config"
	"manifold/internal/logging"
	"manifold/internal/pathutil"
	"manifold/internal/records"
	"manifold/internal/services"
	"manifold/internal/tracker"
)

// MissingAsset identifies one expected file absent from storage.
type MissingAsset struct {
	AssetID    string `json:"asset_id"`
	Filename   string `json:"filename"`
	FolderPath string `json:"folder_path"`
	FullPath   string `json:"full_path"`
}

// MissingComponent groups absent files under their component.
type MissingComponent struct {
	ComponentID   string         `json:"component_id"`
	MissingAssets []MissingAsset `json:"missing_assets"`
}

// Report is the full missing-assets audit for one DA.
type Report struct {
	DAID                string             `json:"da_id"`
	TitleID             string             `json:"title_id"`
	TitleName           string             `json:"title_name"`
	VersionID           string             `json:"version_id"`
	VersionName         string             `json:"version_name"`
	LicenseeID          string             `json:"licensee_id"`
	ExceptionRecipients string             `json:"exception_recipients"`
	HasMissingAssets    bool               `json:"has_missing_assets"`
	MissingComponents   []MissingComponent `json:"missing_components"`
	TotalMissingCount   int                `json:"total_missing_count"`
}

// Service performs the audit.
type Service struct {
	store   *records.Store
	blobs   *blobstore.FS
	tracker *tracker.Service
	cfg     *config.Config
	logger  *slog.Logger
}

// NewService wires a missing-assets auditor.
func NewService(store *records.Store, blobs *blobstore.FS, trk *tracker.Service, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, blobs: blobs, tracker: trk, cfg: cfg, logger: logger}
}

// CheckMissingAssetsForDA audits every required component of the DA.
// Optional components are skipped. A component whose asset check fails
// contributes nothing rather than failing the whole report.
func (s *Service) CheckMissingAssetsForDA(ctx context.Context, daID string) (*Report, error) {
	da, err := s.store.GetDA(ctx, daID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, services.Wrap(services.ErrIntegrity, "missing", "check_assets", "da not found: "+daID, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "missing", "check_assets", "da lookup", err)
	}

	title, err := s.store.GetTitle(ctx, da.TitleID, da.VersionID)
	if err != nil {
		if !errors.Is(err, records.ErrNotFound) {
			return nil, services.Wrap(services.ErrTransient, "missing", "check_assets", "title lookup", err)
		}
		title = &records.Title{TitleID: da.TitleID, VersionID: da.VersionID}
	}

	components, err := s.store.ComponentsForDA(ctx, daID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "missing", "check_assets", "component query", err)
	}

	var missingComponents []MissingComponent
	total := 0
	for _, component := range components {
		if !component.Required {
			s.logger.Debug("skipping non-required component",
				logging.String(logging.FieldComponent, "missing"),
				logging.String("component_id", component.ComponentID))
			continue
		}
		absent := s.checkComponentAssets(ctx, da.TitleID, da.VersionID, component.ComponentID)
		if len(absent) == 0 {
			continue
		}
		missingComponents = append(missingComponents, MissingComponent{
			ComponentID:   component.ComponentID,
			MissingAssets: absent,
		})
		total += len(absent)
		s.logger.Warn("component has missing assets",
			logging.String(logging.FieldComponent, "missing"),
			logging.String(logging.FieldDAID, daID),
			logging.String("component_id", component.ComponentID),
			logging.Int("missing", len(absent)))
	}

	report := &Report{
		DAID:                daID,
		TitleID:             da.TitleID,
		TitleName:           title.TitleName,
		VersionID:           da.VersionID,
		VersionName:         title.VersionName,
		LicenseeID:          da.LicenseeID,
		ExceptionRecipients: da.ExceptionRecipients,
		HasMissingAssets:    len(missingComponents) > 0,
		MissingComponents:   missingComponents,
		TotalMissingCount:   total,
	}
	s.logger.Info("missing assets audit complete",
		logging.String(logging.FieldComponent, "missing"),
		logging.String(logging.FieldDAID, daID),
		logging.Int("total_missing", total),
		logging.Int("components_with_missing", len(missingComponents)))
	return report, nil
}

// checkComponentAssets returns the expected assets of one component
// that are absent from storage.
func (s *Service) checkComponentAssets(ctx context.Context, titleID, versionID, componentID string) []MissingAsset {
	expected, err := s.tracker.ExpectedAssetsForComponent(ctx, titleID, versionID, componentID)
	if err != nil {
		s.logger.Error("expected asset lookup failed",
			logging.String(logging.FieldComponent, "missing"),
			logging.String("component_id", componentID),
			logging.Error(err))
		return nil
	}
	if len(expected) == 0 {
		s.logger.Info("no expected assets for component",
			logging.String(logging.FieldComponent, "missing"),
			logging.String("component_id", componentID))
		return nil
	}

	var absent []MissingAsset
	for _, asset := range expected {
		folderPath := strings.Trim(pathutil.Normalize(asset.FolderPath), "/")
		folderPath = strings.Trim(pathutil.StripFilename(folderPath, asset.Filename), "/")
		exists, err := s.assetExists(asset.Filename, folderPath)
		if err != nil {
			s.logger.Error("existence check failed",
				logging.String(logging.FieldComponent, "missing"),
				logging.String(logging.FieldAssetID, asset.AssetID),
				logging.Error(err))
			continue
		}
		if exists {
			continue
		}
		fullPath := asset.Filename
		if folderPath != "" {
			fullPath = folderPath + "/" + asset.Filename
		}
		absent = append(absent, MissingAsset{
			AssetID:    asset.AssetID,
			Filename:   asset.Filename,
			FolderPath: folderPath,
			FullPath:   fullPath,
		})
		s.logger.Warn("missing asset",
			logging.String(logging.FieldComponent, "missing"),
			logging.String("filename", asset.Filename))
	}
	return absent
}

// assetExists probes the exact stored key. Finished video lives in the
// watermark bucket, everything else in the asset repository.
func (s *Service) assetExists(filename, folderPath string) (bool, error) {
	bucket := s.cfg.Paths.AssetRepoBucket
	if strings.HasSuffix(strings.ToLower(filename), ".mov") {
		bucket = s.cfg.Paths.WatermarkBucket
	}
	key := filename
	if folderPath != "" {
		key = folderPath + "/" + filename
	}
	return s.blobs.Exists(bucket, key)
}
