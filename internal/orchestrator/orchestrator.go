// Package orchestrator decides, per delivery tick, whether a DA's
// manifest should be sent to its licensee: window gating, change
// detection, frequency throttling, and the send itself.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/manifest"
	"manifold/internal/mqueue"
	"manifold/internal/records"
	"manifold/internal/services"
	"manifold/internal/tracker"
)

// Outcome reasons for a delivery cycle that did not transmit.
const (
	ReasonOutsideWindow  = "outside_delivery_window"
	ReasonNoAssets       = "no_assets"
	ReasonNoChanges      = "no_changes"
	ReasonFrequencyLimit = "frequency_limit"
	ReasonSendFailed     = "sqs_send_failed"
)

// Outcome summarizes one delivery cycle for a DA.
type Outcome struct {
	Success           bool
	DAID              string
	Reason            string
	ManifestSent      bool
	NewOrRevisedFiles int
	TotalFiles        int
}

// Service drives the delivery decision for a DA.
type Service struct {
	store     *records.Store
	generator *manifest.Generator
	tracker   *tracker.Service
	queue     *mqueue.Queue
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the delivery orchestrator.
func NewService(store *records.Store, generator *manifest.Generator, trk *tracker.Service, queue *mqueue.Queue, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     store,
		generator: generator,
		tracker:   trk,
		queue:     queue,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the orchestrator clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ProcessDeliveryForDA runs one delivery cycle. Status bookkeeping
// happens whenever a manifest is generated, even when nothing is sent;
// per-asset tracking failures are isolated so sibling assets still
// complete.
func (s *Service) ProcessDeliveryForDA(ctx context.Context, daID string) (*Outcome, error) {
	da, err := s.store.GetDA(ctx, daID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, services.Wrap(services.ErrIntegrity, "orchestrator", "process_delivery", "da not found: "+daID, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "process_delivery", "da lookup", err)
	}

	if !s.withinDeliveryWindow(da) {
		s.logger.Info("da outside delivery window",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID))
		return &Outcome{DAID: daID, Reason: ReasonOutsideWindow}, nil
	}

	m, err := s.generator.Generate(ctx, daID)
	if err != nil {
		return nil, err
	}
	if len(m.Assets) == 0 {
		s.logger.Info("no assets to deliver",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID))
		return &Outcome{DAID: daID, Reason: ReasonNoAssets}, nil
	}

	s.trackAssets(ctx, daID, m)
	s.recomputeStatuses(ctx, daID)

	changed := m.ChangedAssetCount()
	if changed == 0 {
		s.logger.Info("no new or revised files, skipping send",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID))
		return &Outcome{Success: true, DAID: daID, Reason: ReasonNoChanges, TotalFiles: len(m.Assets)}, nil
	}

	if !s.frequencyAllows(da) {
		s.logger.Info("manifest send gated by frequency",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID),
			logging.String("next_manifest_check", da.NextManifestCheck))
		return &Outcome{Success: true, DAID: daID, Reason: ReasonFrequencyLimit, NewOrRevisedFiles: changed, TotalFiles: len(m.Assets)}, nil
	}

	enriched := s.enrichWithTrackedStatus(ctx, daID, m)
	if err := s.sendToLicensee(ctx, da.LicenseeID, enriched); err != nil {
		s.logger.Error("manifest send failed",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID),
			logging.Error(err))
		return &Outcome{DAID: daID, Reason: ReasonSendFailed, NewOrRevisedFiles: changed, TotalFiles: len(m.Assets)}, nil
	}

	s.updateNextManifestCheck(ctx, daID, da.LicenseeID)
	s.logger.Info("manifest sent",
		logging.String(logging.FieldComponent, "orchestrator"),
		logging.String(logging.FieldDAID, daID),
		logging.Int("new_or_revised", changed),
		logging.Int("total_files", len(m.Assets)))
	return &Outcome{
		Success:           true,
		DAID:              daID,
		ManifestSent:      true,
		NewOrRevisedFiles: changed,
		TotalFiles:        len(m.Assets),
	}, nil
}

// withinDeliveryWindow checks now against [earliest delivery, license
// end], inclusive at both boundaries. Missing window dates gate delivery.
func (s *Service) withinDeliveryWindow(da *records.DA) bool {
	if da.EarliestDeliveryDate == "" || da.LicensePeriodEnd == "" {
		s.logger.Warn("missing delivery window dates",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, da.ID))
		return false
	}
	earliest, err := dates.Parse(da.EarliestDeliveryDate)
	if err != nil {
		return false
	}
	end, err := dates.Parse(da.LicensePeriodEnd)
	if err != nil {
		return false
	}
	now := s.now()
	return !now.Before(earliest) && !now.After(end)
}

// trackAssets records each manifest asset with the tracker. Failures are
// logged and skipped so one bad asset cannot block the rest.
func (s *Service) trackAssets(ctx context.Context, daID string, m *manifest.Manifest) {
	for _, entry := range m.Assets {
		if entry.AssetID == "" {
			s.logger.Error("skipping manifest asset with missing id",
				logging.String(logging.FieldComponent, "orchestrator"),
				logging.String(logging.FieldDAID, daID),
				logging.String("file_name", entry.FileName))
			continue
		}
		asset := &records.Asset{
			AssetID:               entry.AssetID,
			TitleID:               m.MainBody.TitleID,
			VersionID:             m.MainBody.VersionID,
			Filename:              entry.FileName,
			Checksum:              entry.Checksum,
			FolderPath:            entry.FilePath,
			Version:               entry.RevisionID,
			StudioAssetID:         entry.StudioAssetID,
			StudioRevisionNotes:   entry.StudioRevisionNotes,
			StudioRevisionUrgency: entry.StudioRevisionUrgency,
		}
		if _, err := s.tracker.TrackFileDelivery(ctx, daID, asset); err != nil {
			s.logger.Error("asset tracking failed",
				logging.String(logging.FieldComponent, "orchestrator"),
				logging.String(logging.FieldDAID, daID),
				logging.String(logging.FieldAssetID, entry.AssetID),
				logging.Error(err))
		}
	}
}

// recomputeStatuses refreshes every component status then the DA rollup.
// Each update is isolated; a crash mid-sequence is reconciled by the
// next tick's recomputation.
func (s *Service) recomputeStatuses(ctx context.Context, daID string) {
	components, err := s.store.ComponentsForDA(ctx, daID)
	if err != nil {
		s.logger.Error("component query failed",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID),
			logging.Error(err))
		return
	}
	for _, component := range components {
		if err := s.tracker.UpdateComponentDeliveryStatus(ctx, daID, component.ComponentID, component.TitleID, component.VersionID); err != nil {
			s.logger.Error("component status update failed",
				logging.String(logging.FieldComponent, "orchestrator"),
				logging.String(logging.FieldDAID, daID),
				logging.String("component_id", component.ComponentID),
				logging.Error(err))
		}
	}
	if err := s.tracker.UpdateDADeliveryStatus(ctx, daID); err != nil {
		s.logger.Error("da status update failed",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID),
			logging.Error(err))
	}
}

// frequencyAllows reports whether the frequency gate permits a send. An
// absent or unparseable Next_Manifest_Check always allows.
func (s *Service) frequencyAllows(da *records.DA) bool {
	if da.NextManifestCheck == "" {
		return true
	}
	next, err := dates.Parse(da.NextManifestCheck)
	if err != nil {
		return true
	}
	return !s.now().Before(next)
}

// enrichWithTrackedStatus remaps each asset's status to the licensee
// vocabulary from the freshly written tracker rows.
func (s *Service) enrichWithTrackedStatus(ctx context.Context, daID string, m *manifest.Manifest) *manifest.Manifest {
	rows, err := s.store.TrackersForDA(ctx, daID)
	if err != nil {
		s.logger.Warn("tracker query failed, sending manifest statuses as generated",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID),
			logging.Error(err))
		return m
	}
	statusByAsset := make(map[string]records.FileStatus, len(rows))
	for _, row := range rows {
		statusByAsset[row.AssetID] = row.FileStatus
	}

	enriched := *m
	enriched.Assets = make([]manifest.AssetEntry, len(m.Assets))
	for i, entry := range m.Assets {
		switch statusByAsset[entry.AssetID] {
		case records.FileNoChange:
			entry.FileStatus = manifest.StatusNoChange
		case records.FileRevised:
			entry.FileStatus = manifest.StatusRevised
		default:
			entry.FileStatus = manifest.StatusNew
		}
		enriched.Assets[i] = entry
	}
	return &enriched
}

// sendToLicensee transmits the manifest on the licensee's configured
// queue. A licensee without a queue cannot be sent to.
func (s *Service) sendToLicensee(ctx context.Context, licenseeID string, m *manifest.Manifest) error {
	licensee, err := s.store.GetLicensee(ctx, licenseeID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "send_manifest", "licensee lookup", err)
	}
	if licensee.QueueName == "" {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "send_manifest",
			"no queue configured for licensee "+licenseeID, nil)
	}
	return s.queue.SendJSON(ctx, licensee.QueueName, m)
}

// updateNextManifestCheck schedules the next allowed send from the
// licensee's manifest frequency. Failures are logged only; the worst
// case is an extra send on the next tick.
func (s *Service) updateNextManifestCheck(ctx context.Context, daID, licenseeID string) {
	frequency := s.cfg.Delivery.DefaultManifestFrequency
	licensee, err := s.store.GetLicensee(ctx, licenseeID)
	if err == nil && licensee.ManifestFrequency > 0 {
		frequency = licensee.ManifestFrequency
	} else if err != nil {
		s.logger.Warn("licensee not found, using default frequency",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String("licensee_id", licenseeID))
	}

	next := dates.Format(s.now().Add(time.Duration(frequency) * time.Second))
	if err := s.store.SetNextManifestCheck(ctx, daID, next); err != nil {
		s.logger.Error("next manifest check update failed",
			logging.String(logging.FieldComponent, "orchestrator"),
			logging.String(logging.FieldDAID, daID),
			logging.Error(err))
		return
	}
	s.logger.Info("next manifest check set",
		logging.String(logging.FieldComponent, "orchestrator"),
		logging.String(logging.FieldDAID, daID),
		logging.String("next_manifest_check", next))
}
