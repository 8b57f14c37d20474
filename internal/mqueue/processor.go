package mqueue

import (
	"context"
	"log/slog"
	"time"

	"manifold/internal/logging"
	"manifold/internal/services"
)

// Handler processes one message body. The returned error's taxonomy
// marker decides whether the message is retried, dropped, or parked.
type Handler func(ctx context.Context, body string) error

// ProcessorOptions configures a queue poll loop.
type ProcessorOptions struct {
	Queue             string
	DeadLetterQueue   string
	PollWait          time.Duration
	VisibilityTimeout time.Duration
	ErrorRetryWait    time.Duration
}

// Processor drives a handler from a queue, one message at a time.
type Processor struct {
	queue   *Queue
	opts    ProcessorOptions
	handler Handler
	logger  *slog.Logger
}

// NewProcessor builds a poll loop over a queue.
func NewProcessor(queue *Queue, opts ProcessorOptions, handler Handler, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{queue: queue, opts: opts, handler: handler, logger: logger}
}

// Run polls until the context is canceled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := p.ProcessOne(ctx)
		if err != nil {
			p.logger.Error("queue receive failed",
				logging.String(logging.FieldComponent, "mqueue"),
				logging.String("queue", p.opts.Queue),
				logging.Error(err))
			if !sleepCtx(ctx, p.opts.ErrorRetryWait) {
				return ctx.Err()
			}
			continue
		}
		if !processed {
			if !sleepCtx(ctx, p.opts.PollWait) {
				return ctx.Err()
			}
		}
	}
}

// ProcessOne receives and handles at most one message. It reports whether
// a message was available.
func (p *Processor) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := p.queue.Receive(ctx, p.opts.Queue, p.opts.VisibilityTimeout)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	handlerErr := p.handler(ctx, msg.Body)
	if handlerErr == nil {
		if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			return true, err
		}
		return true, nil
	}

	switch services.Classify(handlerErr) {
	case services.DispositionDrop:
		p.logger.Warn("message dropped",
			logging.String(logging.FieldComponent, "mqueue"),
			logging.String("queue", p.opts.Queue),
			logging.Error(handlerErr))
		if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			return true, err
		}
	case services.DispositionDeadLetter:
		p.logger.Error("message dead-lettered",
			logging.String(logging.FieldComponent, "mqueue"),
			logging.String("queue", p.opts.Queue),
			logging.Error(handlerErr))
		if p.opts.DeadLetterQueue != "" {
			if err := p.queue.SendToDeadLetter(ctx, p.opts.DeadLetterQueue, msg.Body, handlerErr.Error()); err != nil {
				return true, err
			}
		}
		if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			return true, err
		}
	default:
		// Leave the lease to expire so the message is redelivered.
		p.logger.Warn("message left for retry",
			logging.String(logging.FieldComponent, "mqueue"),
			logging.String("queue", p.opts.Queue),
			logging.Error(handlerErr))
	}
	return true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
