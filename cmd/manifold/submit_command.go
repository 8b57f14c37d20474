package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"manifold/internal/logging"
	"manifold/internal/mqueue"
	"manifold/internal/records"
	"manifold/internal/scheduler"
	"manifold/internal/submission"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a DA from a CSV or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read submission: %w", err)
			}

			kind := strings.ToLower(strings.TrimSpace(format))
			if kind == "" {
				switch strings.ToLower(filepath.Ext(args[0])) {
				case ".json":
					kind = "json"
				default:
					kind = "csv"
				}
			}

			store, err := records.Open(cfg)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer store.Close()

			logger := logging.NewNop()
			queue := mqueue.New(store)
			sched := scheduler.New(store, queue, logger)
			svc := submission.NewService(store, sched, cfg, logger)

			var result *submission.Result
			switch kind {
			case "csv":
				result, err = svc.SubmitCSV(cmd.Context(), string(content))
			case "json":
				result, err = svc.SubmitJSON(cmd.Context(), content)
			default:
				return fmt.Errorf("unsupported submission format %q", format)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted DA %s\n", result.ID)
			fmt.Fprintf(out, "  Title:      %s / %s\n", result.TitleID, result.VersionID)
			fmt.Fprintf(out, "  Licensee:   %s\n", result.LicenseeID)
			fmt.Fprintf(out, "  Components: %d\n", result.ComponentsCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Submission format (csv or json); inferred from the file extension when unset")
	return cmd
}
