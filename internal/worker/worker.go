// Package worker hosts the poll-loop workers that drive the delivery
// lifecycle: package validation, manifest generation, delivery
// tracking, and exception notification. Each worker wraps a queue
// processor around a handler and shuts down cooperatively when its
// context is canceled.
package worker

import (
	"time"

	"manifold/internal/config"
	"manifold/internal/mqueue"
)

// Validation trigger vocabulary. The scheduler fires these on a fixed
// cadence rather than per DA.
const (
	TriggerValidationCheck = "asset_validation_check"
	ValidationTriggerName  = "asset-validation"
)

// ValidationPayload is the body of a recurring validation trigger.
type ValidationPayload struct {
	Trigger string `json:"trigger"`
}

// deliveryPayload is the body of a delivery-tracking tick.
type deliveryPayload struct {
	DAID string `json:"da_id"`
}

func processorOptions(cfg *config.Config, queue string) mqueue.ProcessorOptions {
	return mqueue.ProcessorOptions{
		Queue:             queue,
		DeadLetterQueue:   cfg.Queues.DeadLetter,
		PollWait:          time.Duration(cfg.Workers.PollWait) * time.Second,
		VisibilityTimeout: time.Duration(cfg.Workers.VisibilityTimeout) * time.Second,
		ErrorRetryWait:    time.Duration(cfg.Workers.ErrorRetryInterval) * time.Second,
	}
}
