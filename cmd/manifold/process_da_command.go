package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"manifold/internal/blobstore"
	"manifold/internal/logging"
	"manifold/internal/manifest"
	"manifold/internal/mqueue"
	"manifold/internal/orchestrator"
	"manifold/internal/records"
	"manifold/internal/tracker"
)

func newProcessDACommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process-da <da-id>",
		Short: "Run one delivery cycle for a DA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := records.Open(cfg)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer store.Close()

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			queue := mqueue.New(store)
			blobs := blobstore.NewFS()
			trk := tracker.NewService(store, logger)
			generator := manifest.NewGenerator(store, blobs, cfg, logger)
			orch := orchestrator.NewService(store, generator, trk, queue, cfg, logger)

			outcome, err := orch.ProcessDeliveryForDA(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DA %s\n", outcome.DAID)
			fmt.Fprintf(out, "  Success:       %s\n", yesNo(outcome.Success))
			fmt.Fprintf(out, "  Manifest sent: %s\n", yesNo(outcome.ManifestSent))
			if outcome.Reason != "" {
				fmt.Fprintf(out, "  Reason:        %s\n", outcome.Reason)
			}
			fmt.Fprintf(out, "  Files:         %d changed of %d\n", outcome.NewOrRevisedFiles, outcome.TotalFiles)
			return nil
		},
	}
}
