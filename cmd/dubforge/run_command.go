package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dubforge/internal/executor"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <episode-id>",
		Short: "Advance one episode through the pipeline until it stops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeID := args[0]

			application, err := ctx.buildApp("run")
			if err != nil {
				return err
			}
			defer application.Close()

			report, runErr := application.Executor.Run(context.Background(), episodeID)
			printRunReport(cmd, report)
			if runErr != nil {
				return fmt.Errorf("run episode %s: %w", episodeID, runErr)
			}
			return nil
		},
	}
	return cmd
}

func printRunReport(cmd *cobra.Command, report executor.Report) {
	rows := make([][]string, 0, len(report.Results))
	for _, result := range report.Results {
		rows = append(rows, []string{
			string(result.Stage),
			string(result.Outcome),
			result.Message,
			fmt.Sprintf("%.1fs", result.DurationSeconds),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Stage", "Outcome", "Message", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))

	if report.Suspended {
		fmt.Fprintf(cmd.OutOrStdout(), "episode %s suspended at %s, awaiting review\n", report.EpisodeID, report.SuspendedGate)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "episode %s now at %s\n", report.EpisodeID, report.FinalStatus)
}
