// Package submission turns raw DA submissions (CSV or JSON) into
// persisted DA, title, and component records with their delivery and
// exception schedules in place.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/normalize"
	"manifold/internal/records"
	"manifold/internal/scheduler"
	"manifold/internal/services"
)

// Result summarizes a processed submission.
type Result struct {
	ID              string
	TitleID         string
	VersionID       string
	LicenseeID      string
	ComponentsCount int
}

// Service persists submissions and registers their schedules.
type Service struct {
	store  *records.Store
	sched  *scheduler.Scheduler
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the submission pipeline.
func NewService(store *records.Store, sched *scheduler.Scheduler, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  store,
		sched:  sched,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the submission clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitCSV processes a CSV-form submission end to end.
func (s *Service) SubmitCSV(ctx context.Context, content string) (*Result, error) {
	rec, components, err := ParseCSV(content)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, rec, components)
}

// SubmitJSON processes a JSON-form submission end to end.
func (s *Service) SubmitJSON(ctx context.Context, payload []byte) (*Result, error) {
	rec, components, err := ParseJSON(payload)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, rec, components)
}

func (s *Service) submit(ctx context.Context, rec *normalize.Record, components []ComponentInput) (*Result, error) {
	studioID := rec.InternalStudioID
	if studioID == "" {
		studioID = s.cfg.Delivery.DefaultStudioID
	}
	studio, err := s.store.GetStudioConfig(ctx, studioID)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, services.Wrap(services.ErrTransient, "submission", "studio_config", "lookup failed", err)
	}

	if err := normalize.ApplyDefaults(rec, studio); err != nil {
		return nil, err
	}
	if err := validateNormalized(rec); err != nil {
		return nil, err
	}

	now := dates.Format(s.now())

	title := &records.Title{
		TitleID:       rec.TitleID,
		VersionID:     rec.VersionID,
		TitleName:     rec.TitleName,
		TitleEIDRID:   rec.TitleEIDRID,
		VersionName:   rec.VersionName,
		VersionEIDRID: rec.VersionEIDRID,
		ReleaseYear:   rec.ReleaseYear,
		Uploader:      "SYSTEM",
		CreatedAt:     now,
	}
	if err := s.store.CreateTitle(ctx, title); err != nil {
		if !errors.Is(err, records.ErrAlreadyExists) {
			return nil, services.Wrap(services.ErrTransient, "submission", "create_title", "store failed", err)
		}
		s.logger.Debug("title already exists",
			logging.String(logging.FieldComponent, "submission"),
			logging.String("title_id", rec.TitleID),
			logging.String("version_id", rec.VersionID))
	}

	daID := uuid.NewString()
	da := &records.DA{
		ID:                        daID,
		TitleID:                   rec.TitleID,
		VersionID:                 rec.VersionID,
		LicenseeID:                rec.LicenseeID,
		Description:               rec.Description,
		DueDate:                   rec.DueDate,
		EarliestDeliveryDate:      rec.EarliestDeliveryDate,
		LicensePeriodStart:        rec.LicensePeriodStart,
		LicensePeriodEnd:          rec.LicensePeriodEnd,
		Territories:               rec.Territories,
		ExceptionNotificationDate: rec.ExceptionNotificationDate,
		ExceptionRecipients:       rec.ExceptionRecipients,
		InternalStudioID:          studioID,
		IsActive:                  false,
		DeliveryStatus:            records.DeliveryPending,
		CreatedAt:                 now,
	}
	if err := s.store.PutDA(ctx, da); err != nil {
		return nil, services.Wrap(services.ErrTransient, "submission", "create_da", "store failed", err)
	}

	for _, component := range components {
		record := &records.Component{
			DAID:              daID,
			ComponentID:       component.ComponentID,
			TitleID:           rec.TitleID,
			VersionID:         rec.VersionID,
			Required:          component.Required,
			WatermarkRequired: component.WatermarkRequired,
			DeliveryStatus:    records.DeliveryPending,
			CreatedAt:         now,
		}
		if err := s.store.PutComponent(ctx, record); err != nil {
			return nil, services.Wrap(services.ErrTransient, "submission", "create_component", component.ComponentID, err)
		}
	}

	s.registerSchedules(ctx, da)

	s.logger.Info("submission processed",
		logging.String(logging.FieldComponent, "submission"),
		logging.String(logging.FieldDAID, daID),
		logging.String("title_id", rec.TitleID),
		logging.Int("components", len(components)))

	return &Result{
		ID:              daID,
		TitleID:         rec.TitleID,
		VersionID:       rec.VersionID,
		LicenseeID:      rec.LicenseeID,
		ComponentsCount: len(components),
	}, nil
}

// registerSchedules creates the recurring delivery-check trigger and the
// one-shot exception trigger. Schedule failures are logged, not fatal:
// the DA is already persisted and schedules can be recreated.
func (s *Service) registerSchedules(ctx context.Context, da *records.DA) {
	if da.EarliestDeliveryDate != "" {
		start, err := dates.Parse(da.EarliestDeliveryDate)
		if err == nil {
			rateMinutes := s.manifestRateMinutes(ctx, da.LicenseeID)
			payload := scheduler.ManifestPayload{
				DAID:        da.ID,
				LicenseeID:  da.LicenseeID,
				TriggerType: scheduler.TriggerTypeManifest,
			}
			err = s.sched.CreateRecurringJSON(ctx, scheduler.ManifestTriggerName(da.ID), s.cfg.Queues.Manifest, payload, start, rateMinutes)
		}
		if err != nil {
			s.logger.Error("manifest schedule creation failed",
				logging.String(logging.FieldComponent, "submission"),
				logging.String(logging.FieldDAID, da.ID),
				logging.Error(err))
		}
	}

	if da.ExceptionNotificationDate != "" {
		fireAt, err := dates.Parse(da.ExceptionNotificationDate)
		if err == nil {
			payload := scheduler.ExceptionPayload{
				DAID:        da.ID,
				TriggerType: scheduler.TriggerTypeException,
			}
			err = s.sched.CreateOneShotJSON(ctx, scheduler.ExceptionTriggerName(da.ID), s.cfg.Queues.Exception, payload, fireAt)
		}
		if err != nil {
			s.logger.Error("exception schedule creation failed",
				logging.String(logging.FieldComponent, "submission"),
				logging.String(logging.FieldDAID, da.ID),
				logging.Error(err))
		}
	}
}

// manifestRateMinutes resolves the licensee's manifest frequency,
// falling back to the configured default when the licensee is unknown.
func (s *Service) manifestRateMinutes(ctx context.Context, licenseeID string) int {
	frequency := s.cfg.Delivery.DefaultManifestFrequency
	licensee, err := s.store.GetLicensee(ctx, licenseeID)
	if err == nil && licensee.ManifestFrequency > 0 {
		frequency = licensee.ManifestFrequency
	} else if err != nil && !errors.Is(err, records.ErrNotFound) {
		s.logger.Warn("licensee lookup failed, using default frequency",
			logging.String(logging.FieldComponent, "submission"),
			logging.String("licensee_id", licenseeID),
			logging.Error(err))
	}
	minutes := frequency / 60
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func validateNormalized(rec *normalize.Record) error {
	missing := make([]string, 0, 6)
	for name, value := range map[string]string{
		"Title ID":             rec.TitleID,
		"Version ID":           rec.VersionID,
		"Licensee ID":          rec.LicenseeID,
		"Release Year":         rec.ReleaseYear,
		"License Period Start": rec.LicensePeriodStart,
		"License Period End":   rec.LicensePeriodEnd,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return services.Wrap(services.ErrValidation, "submission", "validate",
			"required fields empty after processing: "+strings.Join(missing, ", "), nil)
	}
	return nil
}
