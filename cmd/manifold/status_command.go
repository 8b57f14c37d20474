package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"manifold/internal/mqueue"
	"manifold/internal/records"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show DA delivery state and queue depths",
		Args:  cobra.NoArgs,
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

			das, err := store.ListDAs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list DAs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(das) == 0 {
				fmt.Fprintln(out, "No DAs submitted")
			} else {
				rows := make([][]string, 0, len(das))
				for _, da := range das {
					rows = append(rows, []string{
						da.ID,
						da.TitleID,
						da.LicenseeID,
						string(da.DeliveryStatus),
						yesNo(da.IsActive),
						da.DueDate,
						da.DateLastDelivered,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"DA", "Title", "Licensee", "Status", "Active", "Due", "Last Delivered"},
					rows,
					nil,
				))
			}

			queue := mqueue.New(store)
			queueRows := make([][]string, 0, 5)
			for _, name := range []string{
				cfg.Queues.Validation,
				cfg.Queues.Manifest,
				cfg.Queues.Delivery,
				cfg.Queues.Exception,
				cfg.Queues.DeadLetter,
			} {
				depth, err := queue.Depth(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("queue depth %s: %w", name, err)
				}
				queueRows = append(queueRows, []string{name, strconv.Itoa(depth)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Queue", "Depth"},
				queueRows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
