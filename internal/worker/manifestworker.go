package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/manifest"
	"manifold/internal/mqueue"
	"manifold/internal/records"
	"manifold/internal/scheduler"
	"manifold/internal/services"
	"manifold/internal/watermark"
)

// ManifestWorker reacts to scheduled manifest triggers: it manages DA
// activation across the license window, generates the manifest, queues
// a delivery-tracking tick, and keeps the watermarked variant pool
// stocked for changed video assets.
type ManifestWorker struct {
	store     *records.Store
	queue     *mqueue.Queue
	sched     *scheduler.Scheduler
	generator *manifest.Generator
	cache     *watermark.Cache
	cfg       *config.Config
	logger    *slog.Logger
	processor *mqueue.Processor
	now       func() time.Time
}

// NewManifestWorker wires the manifest generation worker.
func NewManifestWorker(store *records.Store, queue *mqueue.Queue, sched *scheduler.Scheduler, generator *manifest.Generator, cache *watermark.Cache, cfg *config.Config, logger *slog.Logger) *ManifestWorker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &ManifestWorker{
		store:     store,
		queue:     queue,
		sched:     sched,
		generator: generator,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	w.processor = mqueue.NewProcessor(queue, processorOptions(cfg, cfg.Queues.Manifest), w.handle, logger)
	return w
}

// WithClock overrides the worker clock. Intended for tests.
func (w *ManifestWorker) WithClock(now func() time.Time) *ManifestWorker {
	w.now = now
	return w
}

// Run polls the manifest queue until the context is canceled.
func (w *ManifestWorker) Run(ctx context.Context) error {
	w.logger.Info("manifest worker started",
		logging.String(logging.FieldComponent, "worker"))
	return w.processor.Run(ctx)
}

func (w *ManifestWorker) handle(ctx context.Context, body string) error {
	var payload scheduler.ManifestPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return services.Wrap(services.ErrValidation, "worker", "manifest", "decode trigger", err)
	}
	if payload.DAID == "" || payload.LicenseeID == "" {
		return services.Wrap(services.ErrValidation, "worker", "manifest", "trigger missing da_id or licensee_id", nil)
	}

	da, err := w.store.GetDA(ctx, payload.DAID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return services.Wrap(services.ErrIntegrity, "worker", "manifest", "da not found: "+payload.DAID, nil)
		}
		return services.Wrap(services.ErrTransient, "worker", "manifest", "da lookup", err)
	}

	now := w.now()

	// License end wins over everything else: deactivate and tear the
	// schedules down so the DA stops ticking.
	if end, parseErr := dates.Parse(da.LicensePeriodEnd); parseErr == nil && !now.Before(end) {
		w.logger.Info("license period ended, deactivating da",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, da.ID))
		if err := w.store.SetDAActive(ctx, da.ID, false); err != nil {
			return services.Wrap(services.ErrTransient, "worker", "manifest", "deactivate da", err)
		}
		w.deleteSchedule(ctx, scheduler.ManifestTriggerName(da.ID))
		w.deleteSchedule(ctx, scheduler.ExceptionTriggerName(da.ID))
		return nil
	}

	if earliest, parseErr := dates.Parse(da.EarliestDeliveryDate); parseErr == nil && now.Before(earliest) {
		w.logger.Info("before earliest delivery date, skipping",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, da.ID))
		return nil
	}

	if !da.IsActive {
		w.logger.Info("activating da, earliest delivery date reached",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, da.ID))
		if err := w.store.SetDAActive(ctx, da.ID, true); err != nil {
			return services.Wrap(services.ErrTransient, "worker", "manifest", "activate da", err)
		}
	}

	m, err := w.generator.Generate(ctx, da.ID)
	if err != nil {
		return err
	}
	w.logger.Info("manifest generated",
		logging.String(logging.FieldComponent, "worker"),
		logging.String(logging.FieldDAID, da.ID),
		logging.Int("assets", len(m.Assets)))
	if len(m.Assets) == 0 {
		return nil
	}

	// Delivery tracking runs every tick, changed assets or not; it owns
	// the status bookkeeping and the licensee send.
	if err := w.queue.SendJSON(ctx, w.cfg.Queues.Delivery, deliveryPayload{DAID: da.ID}); err != nil {
		w.logger.Error("delivery tick enqueue failed",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, da.ID),
			logging.Error(err))
	}

	if m.ChangedAssetCount() == 0 {
		w.logger.Info("no changed assets, variant pool untouched",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, da.ID))
		return nil
	}

	moved := w.cache.MoveMovFiles(ctx, m)
	w.logger.Info("watermarked variants promoted",
		logging.String(logging.FieldComponent, "worker"),
		logging.String(logging.FieldDAID, da.ID),
		logging.Int("moved", len(moved)))
	for _, file := range moved {
		variant, err := w.cache.GenerateNextWatermark(ctx, w.cfg.Paths.WatermarkBucket, file.Key)
		if err != nil {
			w.logger.Error("variant regeneration failed",
				logging.String(logging.FieldComponent, "worker"),
				logging.String("key", file.Key),
				logging.Error(err))
			continue
		}
		if variant != "" {
			w.logger.Info("replacement variant queued",
				logging.String(logging.FieldComponent, "worker"),
				logging.String("variant", variant))
		}
	}
	return nil
}

func (w *ManifestWorker) deleteSchedule(ctx context.Context, name string) {
	if err := w.sched.Delete(ctx, name); err != nil {
		w.logger.Error("schedule delete failed",
			logging.String(logging.FieldComponent, "worker"),
			logging.String("trigger", name),
			logging.Error(err))
	}
}
