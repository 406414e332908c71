package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dubforge/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show episode counts by pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.buildApp("status")
			if err != nil {
				return err
			}
			defer application.Close()

			background := context.Background()
			rows := make([][]string, 0, len(store.AllStatuses))
			total := 0
			for _, status := range store.AllStatuses {
				episodes, err := application.Store.ListEpisodesByStatus(background, []store.Status{status})
				if err != nil {
					return fmt.Errorf("list episodes at %s: %w", status, err)
				}
				if len(episodes) == 0 {
					continue
				}
				total += len(episodes)
				rows = append(rows, []string{string(status), fmt.Sprintf("%d", len(episodes))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Episodes"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d\n", total)
			return nil
		},
	}
}
