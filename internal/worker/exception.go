package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"manifold/internal/config"
	"manifold/internal/logging"
	"manifold/internal/missing"
	"manifold/internal/mqueue"
	"manifold/internal/notifications"
	"manifold/internal/scheduler"
	"manifold/internal/services"
)

// ExceptionWorker audits a DA for missing assets when its one-shot
// exception trigger fires and emails studio operations if anything is
// absent. The trigger is removed afterwards either way.
type ExceptionWorker struct {
	missing   *missing.Service
	notifier  notifications.Service
	sched     *scheduler.Scheduler
	logger    *slog.Logger
	processor *mqueue.Processor
}

// NewExceptionWorker wires the exception notification worker.
func NewExceptionWorker(queue *mqueue.Queue, svc *missing.Service, notifier notifications.Service, sched *scheduler.Scheduler, cfg *config.Config, logger *slog.Logger) *ExceptionWorker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &ExceptionWorker{missing: svc, notifier: notifier, sched: sched, logger: logger}
	w.processor = mqueue.NewProcessor(queue, processorOptions(cfg, cfg.Queues.Exception), w.handle, logger)
	return w
}

// Run polls the exception queue until the context is canceled.
func (w *ExceptionWorker) Run(ctx context.Context) error {
	w.logger.Info("exception worker started",
		logging.String(logging.FieldComponent, "worker"))
	return w.processor.Run(ctx)
}

func (w *ExceptionWorker) handle(ctx context.Context, body string) error {
	var payload scheduler.ExceptionPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return services.Wrap(services.ErrValidation, "worker", "exception", "decode trigger", err)
	}
	if payload.DAID == "" {
		return services.Wrap(services.ErrValidation, "worker", "exception", "trigger missing da_id", nil)
	}

	report, err := w.missing.CheckMissingAssetsForDA(ctx, payload.DAID)
	if err != nil {
		return err
	}

	if report.HasMissingAssets {
		w.logger.Warn("missing assets detected",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, payload.DAID),
			logging.Int("total_missing", report.TotalMissingCount))
		if err := w.notifier.NotifyMissingAssets(ctx, report); err != nil {
			w.logger.Error("missing assets notification failed",
				logging.String(logging.FieldComponent, "worker"),
				logging.String(logging.FieldDAID, payload.DAID),
				logging.Error(err))
		} else {
			w.logger.Info("missing assets notification sent",
				logging.String(logging.FieldComponent, "worker"),
				logging.String(logging.FieldDAID, payload.DAID))
		}
	} else {
		w.logger.Info("all expected assets present",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, payload.DAID))
	}

	// One-shot: the trigger is done regardless of the audit result.
	if err := w.sched.Delete(ctx, scheduler.ExceptionTriggerName(payload.DAID)); err != nil {
		w.logger.Error("exception schedule delete failed",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, payload.DAID),
			logging.Error(err))
	}
	return nil
}
