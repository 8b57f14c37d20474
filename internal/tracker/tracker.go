// Package tracker maintains per-asset delivery state for each DA and
// rolls it up into component and DA level delivery status.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/pathutil"
	"manifold/internal/records"
	"manifold/internal/services"
)

// UnknownComponent is assigned when no configured folder prefix matches
// an asset's path.
const UnknownComponent = "UNKNOWN"

// TrackResult reports the outcome of one tracked sighting.
type TrackResult struct {
	AssetID     string
	FileStatus  records.FileStatus
	DeliveredAt string
}

// Service owns tracker row lifecycle and status aggregation.
type Service struct {
	store  *records.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the delivery tracker.
func NewService(store *records.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the tracker clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TrackFileDelivery records one sighting of an asset for a DA. A first
// sighting creates a NEW row; later sightings compare versions: a higher
// incoming version is REVISED (revision count incremented), anything else
// is NO_CHANGE. Checksum, version, and last-delivered are always
// refreshed. An empty asset id is an integrity failure, never persisted.
func (s *Service) TrackFileDelivery(ctx context.Context, daID string, asset *records.Asset) (*TrackResult, error) {
	if asset == nil || asset.AssetID == "" {
		return nil, services.Wrap(services.ErrIntegrity, "tracker", "track_file_delivery",
			"empty asset id for da "+daID, nil)
	}

	currentTime := dates.Format(s.now())
	existing, err := s.store.GetTracker(ctx, daID, asset.AssetID)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, services.Wrap(services.ErrTransient, "tracker", "track_file_delivery", "tracker lookup", err)
	}

	if existing != nil {
		status := records.FileNoChange
		revisionCount := existing.RevisionCount
		if asset.Version > existing.Version {
			status = records.FileRevised
			revisionCount++
		}

		existing.FileStatus = status
		existing.RevisionCount = revisionCount
		existing.Checksum = asset.Checksum
		existing.Version = asset.Version
		existing.DateLastDelivered = currentTime
		if err := s.store.PutTracker(ctx, existing); err != nil {
			return nil, services.Wrap(services.ErrTransient, "tracker", "track_file_delivery", "tracker update", err)
		}

		s.logger.Info("tracked delivery",
			logging.String(logging.FieldComponent, "tracker"),
			logging.String(logging.FieldDAID, daID),
			logging.String(logging.FieldAssetID, asset.AssetID),
			logging.String("file_status", string(status)),
			logging.Int("version", asset.Version))
		return &TrackResult{AssetID: asset.AssetID, FileStatus: status, DeliveredAt: currentTime}, nil
	}

	row := &records.Tracker{
		DAID:                  daID,
		AssetID:               asset.AssetID,
		Filename:              asset.Filename,
		Checksum:              asset.Checksum,
		Version:               asset.Version,
		FileStatus:            records.FileNew,
		OriginalDeliveryDate:  currentTime,
		DateLastDelivered:     currentTime,
		RevisionCount:         0,
		ComponentID:           s.InferComponentID(ctx, asset),
		LicenseeID:            s.licenseeForDA(ctx, daID),
		FolderPath:            asset.FolderPath,
		TitleID:               asset.TitleID,
		VersionID:             asset.VersionID,
		StudioAssetID:         asset.StudioAssetID,
		StudioRevisionNotes:   asset.StudioRevisionNotes,
		StudioRevisionUrgency: asset.StudioRevisionUrgency,
	}
	if err := s.store.PutTracker(ctx, row); err != nil {
		return nil, services.Wrap(services.ErrTransient, "tracker", "track_file_delivery", "tracker create", err)
	}

	s.logger.Info("tracked first delivery",
		logging.String(logging.FieldComponent, "tracker"),
		logging.String(logging.FieldDAID, daID),
		logging.String(logging.FieldAssetID, asset.AssetID),
		logging.String("component_id", row.ComponentID),
		logging.Int("version", asset.Version))
	return &TrackResult{AssetID: asset.AssetID, FileStatus: records.FileNew, DeliveredAt: currentTime}, nil
}

// InferComponentID resolves which configured component an asset's folder
// belongs to. The title/version prefix and trailing filename are stripped,
// then the configured component with the longest matching folder prefix
// wins, disambiguating nested folder configurations.
func (s *Service) InferComponentID(ctx context.Context, asset *records.Asset) string {
	folderPath := trimSlashes(asset.FolderPath)
	folderPath = trimSlashes(pathutil.StripFilename(folderPath, asset.Filename))
	folderPath = pathutil.StripTitlePrefix(folderPath, asset.TitleID, asset.VersionID)

	configs, err := s.store.ComponentConfigs(ctx)
	if err != nil {
		s.logger.Error("component config scan failed",
			logging.String(logging.FieldComponent, "tracker"),
			logging.Error(err))
		return UnknownComponent
	}

	bestMatch := ""
	bestLength := -1
	for _, cc := range configs {
		structure := trimSlashes(cc.FolderStructure)
		if structure == "" {
			continue
		}
		if folderPath == structure || strings.HasPrefix(folderPath, structure+"/") {
			if len(structure) > bestLength {
				bestMatch = cc.ComponentID
				bestLength = len(structure)
			}
		}
	}
	if bestMatch == "" {
		s.logger.Warn("no component match for path",
			logging.String(logging.FieldComponent, "tracker"),
			logging.String("folder_path", folderPath))
		return UnknownComponent
	}
	return bestMatch
}

// ExpectedAssetsForComponent returns the catalog assets whose folder
// (after title/version prefix stripping) falls under the component's
// configured folder structure.
func (s *Service) ExpectedAssetsForComponent(ctx context.Context, titleID, versionID, componentID string) ([]*records.Asset, error) {
	cc, err := s.store.GetComponentConfig(ctx, componentID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			s.logger.Warn("no component config",
				logging.String(logging.FieldComponent, "tracker"),
				logging.String("component_id", componentID))
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "tracker", "expected_assets", "component config lookup", err)
	}

	structure := trimSlashes(cc.FolderStructure)
	assets, err := s.store.AssetsForTitle(ctx, titleID, versionID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tracker", "expected_assets", "asset query", err)
	}

	var matched []*records.Asset
	for _, asset := range assets {
		folderPath := trimSlashes(asset.FolderPath)
		folderPath = pathutil.StripTitlePrefix(folderPath, titleID, versionID)
		if strings.HasPrefix(folderPath, structure) {
			matched = append(matched, asset)
		}
	}
	return matched, nil
}

// UpdateComponentDeliveryStatus recomputes one component's delivery state
// from its tracker rows and expected asset set. A component with no
// expected assets is left unchanged.
func (s *Service) UpdateComponentDeliveryStatus(ctx context.Context, daID, componentID, titleID, versionID string) error {
	component, err := s.store.GetComponent(ctx, daID, componentID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			s.logger.Warn("component not found",
				logging.String(logging.FieldComponent, "tracker"),
				logging.String(logging.FieldDAID, daID),
				logging.String("component_id", componentID))
			return nil
		}
		return services.Wrap(services.ErrTransient, "tracker", "component_status", "component lookup", err)
	}

	delivered, err := s.trackersForComponent(ctx, daID, componentID)
	if err != nil {
		return err
	}
	expected, err := s.ExpectedAssetsForComponent(ctx, titleID, versionID, componentID)
	if err != nil {
		return err
	}
	if len(expected) == 0 {
		s.logger.Warn("no expected assets, leaving component status unchanged",
			logging.String(logging.FieldComponent, "tracker"),
			logging.String(logging.FieldDAID, daID),
			logging.String("component_id", componentID))
		return nil
	}

	deliveredIDs := make(map[string]struct{}, len(delivered))
	for _, row := range delivered {
		deliveredIDs[row.AssetID] = struct{}{}
	}
	allDelivered := true
	for _, asset := range expected {
		if _, ok := deliveredIDs[asset.AssetID]; !ok {
			allDelivered = false
			break
		}
	}

	isActive := s.daIsActive(ctx, daID)
	var status records.DeliveryStatus
	switch {
	case len(deliveredIDs) == 0:
		status = records.DeliveryPending
	case allDelivered && isActive:
		status = records.DeliveryCompleted
	default:
		status = records.DeliveryPartial
	}

	currentTime := dates.Format(s.now())
	originalDelivery := component.OriginalDeliveryDate
	if originalDelivery == "" && len(deliveredIDs) > 0 {
		originalDelivery = currentTime
	}

	if err := s.store.UpdateComponentDelivery(ctx, daID, componentID, status, originalDelivery, currentTime); err != nil {
		return services.Wrap(services.ErrTransient, "tracker", "component_status", "component update", err)
	}

	s.logger.Info("component status updated",
		logging.String(logging.FieldComponent, "tracker"),
		logging.String(logging.FieldDAID, daID),
		logging.String("component_id", componentID),
		logging.String("delivery_status", string(status)),
		logging.Int("expected", len(expected)),
		logging.Int("delivered", len(delivered)))
	return nil
}

// UpdateDADeliveryStatus rolls component statuses up to the DA: all
// PENDING stays PENDING, all COMPLETED on an active DA is COMPLETED,
// anything else is PARTIAL.
func (s *Service) UpdateDADeliveryStatus(ctx context.Context, daID string) error {
	components, err := s.store.ComponentsForDA(ctx, daID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tracker", "da_status", "component query", err)
	}
	if len(components) == 0 {
		s.logger.Warn("no components for da",
			logging.String(logging.FieldComponent, "tracker"),
			logging.String(logging.FieldDAID, daID))
		return nil
	}

	da, err := s.store.GetDA(ctx, daID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tracker", "da_status", "da lookup", err)
	}

	allCompleted := true
	allPending := true
	for _, component := range components {
		if component.DeliveryStatus != records.DeliveryCompleted {
			allCompleted = false
		}
		if component.DeliveryStatus != records.DeliveryPending {
			allPending = false
		}
	}

	var status records.DeliveryStatus
	switch {
	case allPending:
		status = records.DeliveryPending
	case allCompleted && da.IsActive:
		status = records.DeliveryCompleted
	default:
		status = records.DeliveryPartial
	}

	currentTime := dates.Format(s.now())
	originalDelivery := da.OriginalDeliveryDate
	if originalDelivery == "" && !allPending {
		originalDelivery = currentTime
	}

	if err := s.store.UpdateDADelivery(ctx, daID, status, originalDelivery, currentTime); err != nil {
		return services.Wrap(services.ErrTransient, "tracker", "da_status", "da update", err)
	}

	s.logger.Info("da status updated",
		logging.String(logging.FieldComponent, "tracker"),
		logging.String(logging.FieldDAID, daID),
		logging.String("delivery_status", string(status)),
		logging.Bool("is_active", da.IsActive))
	return nil
}

func (s *Service) trackersForComponent(ctx context.Context, daID, componentID string) ([]*records.Tracker, error) {
	all, err := s.store.TrackersForDA(ctx, daID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tracker", "component_status", "tracker query", err)
	}
	var matched []*records.Tracker
	for _, row := range all {
		if row.ComponentID == componentID {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func (s *Service) licenseeForDA(ctx context.Context, daID string) string {
	da, err := s.store.GetDA(ctx, daID)
	if err != nil {
		return ""
	}
	return da.LicenseeID
}

func (s *Service) daIsActive(ctx context.Context, daID string) bool {
	da, err := s.store.GetDA(ctx, daID)
	if err != nil {
		return false
	}
	return da.IsActive
}

func trimSlashes(path string) string {
	return strings.Trim(pathutil.Normalize(path), "/")
}
