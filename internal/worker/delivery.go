package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"manifold/internal/config"
	"manifold/internal/logging"
	"manifold/internal/mqueue"
	"manifold/internal/orchestrator"
	"manifold/internal/services"
)

// DeliveryWorker runs one delivery cycle per queued tick.
type DeliveryWorker struct {
	orch      *orchestrator.Service
	logger    *slog.Logger
	processor *mqueue.Processor
}

// NewDeliveryWorker wires the delivery tracking worker.
func NewDeliveryWorker(queue *mqueue.Queue, orch *orchestrator.Service, cfg *config.Config, logger *slog.Logger) *DeliveryWorker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &DeliveryWorker{orch: orch, logger: logger}
	w.processor = mqueue.NewProcessor(queue, processorOptions(cfg, cfg.Queues.Delivery), w.handle, logger)
	return w
}

// Run polls the delivery queue until the context is canceled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	w.logger.Info("delivery worker started",
		logging.String(logging.FieldComponent, "worker"))
	return w.processor.Run(ctx)
}

func (w *DeliveryWorker) handle(ctx context.Context, body string) error {
	var payload deliveryPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return services.Wrap(services.ErrValidation, "worker", "delivery", "decode tick", err)
	}
	if payload.DAID == "" {
		return services.Wrap(services.ErrValidation, "worker", "delivery", "tick missing da_id", nil)
	}

	outcome, err := w.orch.ProcessDeliveryForDA(ctx, payload.DAID)
	if err != nil {
		return err
	}

	switch {
	case outcome.ManifestSent:
		w.logger.Info("manifest sent to licensee",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, outcome.DAID),
			logging.Int("new_or_revised", outcome.NewOrRevisedFiles))
	case outcome.Success:
		w.logger.Info("delivery cycle complete without send",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, outcome.DAID),
			logging.String("reason", outcome.Reason))
	default:
		w.logger.Warn("delivery not processed",
			logging.String(logging.FieldComponent, "worker"),
			logging.String(logging.FieldDAID, outcome.DAID),
			logging.String("reason", outcome.Reason))
	}
	return nil
}
