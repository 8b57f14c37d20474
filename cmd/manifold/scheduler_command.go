package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"manifold/internal/config"
	"manifold/internal/mqueue"
	"manifold/internal/records"
	"manifold/internal/scheduler"
	"manifold/internal/worker"
)

func newSchedulerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the trigger dispatch loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerProcess(cmd.Context(), ctx, "scheduler", runScheduler)
		},
	}
}

func runScheduler(ctx context.Context, cfg *config.Config, store *records.Store, logger *slog.Logger) error {
	queue := mqueue.New(store)
	sched := scheduler.New(store, queue, logger)

	// The validation sweep has no per-DA trigger of its own, so the
	// dispatch loop owns its recurring schedule.
	rate := cfg.Workers.ValidationCutoffMin
	if rate < 1 {
		rate = 1
	}
	err := sched.CreateRecurringJSON(ctx, worker.ValidationTriggerName, cfg.Queues.Validation,
		worker.ValidationPayload{Trigger: worker.TriggerValidationCheck}, time.Now().UTC(), rate)
	if err != nil {
		return err
	}

	tick := time.Duration(cfg.Workers.SchedulerTickInterval) * time.Second
	return sched.Run(ctx, tick)
}
