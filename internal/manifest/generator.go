package manifest

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"manifold/internal/blobstore"
	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/pathutil"
	"manifold/internal/records"
	"manifold/internal/services"
)

var watermarkSuffix = regexp.MustCompile(`(?i)_WM(\d+)\.mov$`)

// Generator assembles manifests from the record store and blob storage.
type Generator struct {
	store  *records.Store
	blobs  *blobstore.FS
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewGenerator wires the manifest generator.
func NewGenerator(store *records.Store, blobs *blobstore.FS, cfg *config.Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		store:  store,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the generator clock. Intended for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the manifest for a DA. A missing DA, title, or
// licensee record is an integrity failure; a missing studio config falls
// back to a placeholder. Assets that map to no component folder or are
// absent from storage are silently excluded.
func (g *Generator) Generate(ctx context.Context, daID string) (*Manifest, error) {
	da, err := g.store.GetDA(ctx, daID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, services.Wrap(services.ErrIntegrity, "manifest", "generate", "da not found: "+daID, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "manifest", "generate", "da lookup", err)
	}

	title, err := g.store.GetTitle(ctx, da.TitleID, da.VersionID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, services.Wrap(services.ErrIntegrity, "manifest", "generate",
				"title not found: "+da.TitleID+"/"+da.VersionID, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "manifest", "generate", "title lookup", err)
	}

	licensee, err := g.store.GetLicensee(ctx, da.LicenseeID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, services.Wrap(services.ErrIntegrity, "manifest", "generate", "licensee not found: "+da.LicenseeID, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "manifest", "generate", "licensee lookup", err)
	}

	studio := g.studioConfig(ctx, da.InternalStudioID)

	components, err := g.store.ComponentsForDA(ctx, daID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "manifest", "generate", "component query", err)
	}
	folders := g.componentFolders(ctx, components)

	assets, err := g.filterAssets(ctx, da.TitleID, da.VersionID, folders)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		g.logger.Warn("no assets available for da",
			logging.String(logging.FieldComponent, "manifest"),
			logging.String(logging.FieldDAID, daID))
	}

	m := &Manifest{
		MainBody: MainBody{
			DistributionAuthorizationID: da.ID,
			PayloadCreation:             dates.Format(g.now()),
			StudioID:                    studio.StudioID,
			StudioName:                  studio.StudioName,
			LicenseeID:                  da.LicenseeID,
			LicenseeName:                licensee.LicenseeName,
			DADescription:               da.Description,
			DueDate:                     da.DueDate,
			EarliestDeliveryDate:        da.EarliestDeliveryDate,
			DeliveryEndDate:             da.LicensePeriodEnd,
			TitleID:                     title.TitleID,
			TitleName:                   title.TitleName,
			TitleEIDRID:                 title.TitleEIDRID,
			VersionID:                   title.VersionID,
			VersionName:                 title.VersionName,
			VersionEIDRID:               title.VersionEIDRID,
			ReleaseYear:                 parseReleaseYear(title.ReleaseYear),
		},
	}
	for _, asset := range assets {
		m.Assets = append(m.Assets, g.buildAssetEntry(ctx, daID, asset))
	}
	return m, nil
}

// studioConfig resolves the studio record, substituting a placeholder
// when none is configured. Missing studio config is never an error.
func (g *Generator) studioConfig(ctx context.Context, studioID string) *records.StudioConfig {
	if studioID == "" {
		studioID = g.cfg.Delivery.DefaultStudioID
	}
	studio, err := g.store.GetStudioConfig(ctx, studioID)
	if err != nil {
		g.logger.Warn("no studio config, using fallback",
			logging.String(logging.FieldComponent, "manifest"),
			logging.String("studio_id", studioID))
		return &records.StudioConfig{StudioID: studioID, StudioName: "Unknown Studio"}
	}
	return studio
}

func (g *Generator) componentFolders(ctx context.Context, components []*records.Component) []string {
	var folders []string
	for _, component := range components {
		cc, err := g.store.GetComponentConfig(ctx, component.ComponentID)
		if err != nil {
			g.logger.Warn("component config not found",
				logging.String(logging.FieldComponent, "manifest"),
				logging.String("component_id", component.ComponentID))
			continue
		}
		folder := strings.Trim(pathutil.Normalize(cc.FolderStructure), "/")
		if folder == "" {
			g.logger.Warn("component has empty folder configuration",
				logging.String(logging.FieldComponent, "manifest"),
				logging.String("component_id", component.ComponentID))
			continue
		}
		folders = append(folders, folder)
	}
	return folders
}

// filterAssets keeps catalog assets whose normalized folder falls under a
// component folder and whose file is confirmed present in storage.
func (g *Generator) filterAssets(ctx context.Context, titleID, versionID string, componentFolders []string) ([]*records.Asset, error) {
	all, err := g.store.AssetsForTitle(ctx, titleID, versionID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "manifest", "generate", "asset query", err)
	}

	var filtered []*records.Asset
	for _, asset := range all {
		folderPath := strings.Trim(pathutil.Normalize(asset.FolderPath), "/")
		normalized := pathutil.StripTitlePrefix(folderPath, titleID, versionID)

		matched := false
		for _, folder := range componentFolders {
			if strings.HasPrefix(normalized, folder) {
				matched = true
				break
			}
		}
		if !matched {
			g.logger.Debug("asset outside component folders",
				logging.String(logging.FieldComponent, "manifest"),
				logging.String(logging.FieldAssetID, asset.AssetID),
				logging.String("folder_path", asset.FolderPath))
			continue
		}
		if !g.assetExists(asset) {
			g.logger.Debug("asset absent from storage",
				logging.String(logging.FieldComponent, "manifest"),
				logging.String(logging.FieldAssetID, asset.AssetID),
				logging.String("folder_path", asset.FolderPath))
			continue
		}
		filtered = append(filtered, asset)
	}
	return filtered, nil
}

// assetExists routes the existence check by extension: a .mov deliverable
// counts as present when its lowest-numbered watermark variant sits in
// the watermark cache, anything else is checked directly in the asset
// repository.
func (g *Generator) assetExists(asset *records.Asset) bool {
	key := storageKey(asset)
	if isMov(asset.Filename) {
		_, found := g.lowestWatermarkKey(asset)
		return found
	}
	present, err := g.blobs.Exists(g.cfg.Paths.AssetRepoBucket, key)
	if err != nil {
		g.logger.Error("existence check failed",
			logging.String(logging.FieldComponent, "manifest"),
			logging.String("key", key),
			logging.Error(err))
		return false
	}
	return present
}

// lowestWatermarkKey finds the lowest-numbered _WM<n>.mov sibling of a
// video asset in the watermark cache. The lowest version is the
// most-processed deliverable.
func (g *Generator) lowestWatermarkKey(asset *records.Asset) (string, bool) {
	folder := strings.Trim(pathutil.Normalize(pathutil.StripFilename(
		strings.Trim(pathutil.Normalize(asset.FolderPath), "/"), asset.Filename)), "/")
	base := strings.TrimSuffix(asset.Filename, ".mov")
	base = strings.TrimSuffix(base, ".MOV")
	prefix := pathutil.Join(folder, base+"_WM")

	keys, err := g.blobs.List(g.cfg.Paths.WatermarkBucket, prefix)
	if err != nil {
		g.logger.Error("watermark listing failed",
			logging.String(logging.FieldComponent, "manifest"),
			logging.String("prefix", prefix),
			logging.Error(err))
		return "", false
	}

	type variant struct {
		version int
		key     string
	}
	var variants []variant
	for _, key := range keys {
		match := watermarkSuffix.FindStringSubmatch(key)
		if match == nil {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		variants = append(variants, variant{version: version, key: key})
	}
	if len(variants) == 0 {
		return "", false
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].version < variants[j].version })
	return variants[0].key, true
}

func (g *Generator) buildAssetEntry(ctx context.Context, daID string, asset *records.Asset) AssetEntry {
	folderPath := strings.Trim(pathutil.Normalize(asset.FolderPath), "/")
	folderPath = strings.Trim(pathutil.StripFilename(folderPath, asset.Filename), "/")

	return AssetEntry{
		AssetID:               asset.AssetID,
		FileStatus:            g.fileStatus(ctx, daID, asset),
		FileName:              asset.Filename,
		FolderPath:            folderPath,
		FilePath:              pathutil.Join(folderPath, asset.Filename),
		Checksum:              asset.Checksum,
		FileSizeMB:            g.fileSizeMB(asset),
		StudioAssetID:         asset.StudioAssetID,
		StudioRevisionNumber:  asset.StudioRevisionNumber,
		StudioRevisionNotes:   asset.StudioRevisionNotes,
		StudioRevisionUrgency: asset.StudioRevisionUrgency,
		RevisionID:            asset.Version,
	}
}

// fileStatus maps tracker state to the licensee vocabulary. No tracker
// row or a row still in NEW reads as "New"; a version increase since the
// tracked value is "Revised"; anything else is "No Change".
func (g *Generator) fileStatus(ctx context.Context, daID string, asset *records.Asset) string {
	row, err := g.store.GetTracker(ctx, daID, asset.AssetID)
	if err != nil {
		if !errors.Is(err, records.ErrNotFound) {
			g.logger.Warn("tracker lookup failed, treating as new",
				logging.String(logging.FieldComponent, "manifest"),
				logging.String(logging.FieldAssetID, asset.AssetID),
				logging.Error(err))
		}
		return StatusNew
	}
	if row.FileStatus == records.FileNew {
		return StatusNew
	}
	if asset.Version > row.Version {
		return StatusRevised
	}
	return StatusNoChange
}

// fileSizeMB heads the resolved storage object and reports its size in
// megabytes, rounded to two decimals. Unavailable sizes read as zero.
func (g *Generator) fileSizeMB(asset *records.Asset) float64 {
	bucket := g.cfg.Paths.AssetRepoBucket
	key := storageKey(asset)
	if isMov(asset.Filename) {
		wmKey, found := g.lowestWatermarkKey(asset)
		if !found {
			return 0
		}
		bucket = g.cfg.Paths.WatermarkBucket
		key = wmKey
	}
	info, err := g.blobs.Head(bucket, key)
	if err != nil {
		g.logger.Warn("size lookup failed",
			logging.String(logging.FieldComponent, "manifest"),
			logging.String("key", key),
			logging.Error(err))
		return 0
	}
	return math.Round(float64(info.Size)/(1024*1024)*100) / 100
}

// storageKey returns the full object key for an asset, tolerating folder
// paths that already include the filename.
func storageKey(asset *records.Asset) string {
	folderPath := strings.Trim(pathutil.Normalize(asset.FolderPath), "/")
	folderPath = strings.Trim(pathutil.StripFilename(folderPath, asset.Filename), "/")
	return pathutil.Join(folderPath, asset.Filename)
}

func isMov(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".mov")
}

func parseReleaseYear(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	year, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil
	}
	return &year
}
