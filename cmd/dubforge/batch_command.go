package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dubforge/internal/batch"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var limit int

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the pipeline over a batch of eligible episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch.Mode(mode) == batch.ModeLatest && limit <= 0 {
				return fmt.Errorf("--limit is required for latest mode")
			}
			application, err := ctx.buildApp("batch")
			if err != nil {
				return err
			}
			defer application.Close()

			selector := batch.New(application.Store, application.Review, application.Executor, application.Logger)
			report, err := selector.Run(context.Background(), batch.Mode(mode), limit)
			if err != nil {
				return fmt.Errorf("batch run: %w", err)
			}

			rows := make([][]string, 0, len(report.Results))
			for _, result := range report.Results {
				status := string(result.Report.FinalStatus)
				if result.Err != nil {
					status = "error: " + result.Err.Error()
				} else if result.Report.Suspended {
					status = fmt.Sprintf("suspended at %s", result.Report.SuspendedGate)
				}
				rows = append(rows, []string{result.EpisodeID, status, fmt.Sprintf("%d", len(result.Report.Results))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Episode", "Result", "Stages Run"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(batch.ModePending), "Selection mode: pending or latest")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of episodes to process (0 = unlimited for pending, required for latest)")
	return cmd
}
