package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"manifold/internal/config"
	"manifold/internal/ingest"
	"manifold/internal/logging"
	"manifold/internal/mqueue"
	"manifold/internal/services"
)

// ValidationWorker sweeps uploaded packages when the scheduler fires a
// validation trigger.
type ValidationWorker struct {
	processor *mqueue.Processor
	logger    *slog.Logger
}

// NewValidationWorker wires the package validation worker.
func NewValidationWorker(queue *mqueue.Queue, svc *ingest.Service, cfg *config.Config, logger *slog.Logger) *ValidationWorker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &ValidationWorker{logger: logger}
	handler := func(ctx context.Context, body string) error {
		return w.handle(ctx, svc, body)
	}
	w.processor = mqueue.NewProcessor(queue, processorOptions(cfg, cfg.Queues.Validation), handler, logger)
	return w
}

// Run polls the validation queue until the context is canceled.
func (w *ValidationWorker) Run(ctx context.Context) error {
	w.logger.Info("validation worker started",
		logging.String(logging.FieldComponent, "worker"))
	return w.processor.Run(ctx)
}

func (w *ValidationWorker) handle(ctx context.Context, svc *ingest.Service, body string) error {
	var payload ValidationPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return services.Wrap(services.ErrValidation, "worker", "validation", "decode trigger", err)
	}
	if payload.Trigger != TriggerValidationCheck {
		w.logger.Warn("unknown validation trigger",
			logging.String(logging.FieldComponent, "worker"),
			logging.String("trigger", payload.Trigger))
		return nil
	}

	result, err := svc.RunValidationSweep(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("validation check complete",
		logging.String(logging.FieldComponent, "worker"),
		logging.Int("processed", result.Processed),
		logging.Int("failed", result.Failed))
	return nil
}
