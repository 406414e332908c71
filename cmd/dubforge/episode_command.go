package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newEpisodeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episode",
		Short: "Manage pipeline episodes",
	}
	cmd.AddCommand(newEpisodeAddCommand(ctx))
	return cmd
}

func newEpisodeAddCommand(ctx *commandContext) *cobra.Command {
	var pipelineVersion int

	cmd := &cobra.Command{
		Use:   "add <episode-id> <source-uri>",
		Short: "Register a new episode at NEW with a source URI",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeID, sourceURI := args[0], args[1]

			application, err := ctx.buildApp("episode-add")
			if err != nil {
				return err
			}
			defer application.Close()

			background := context.Background()
			if _, err := application.Store.CreateEpisode(background, episodeID, pipelineVersion); err != nil {
				return fmt.Errorf("create episode: %w", err)
			}
			if err := application.Store.SetEpisodeSourceURI(background, episodeID, sourceURI); err != nil {
				return fmt.Errorf("set source uri: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registered episode %s (pipeline_version=%d)\n", episodeID, pipelineVersion)
			return nil
		},
	}

	cmd.Flags().IntVar(&pipelineVersion, "pipeline-version", 2, "Pipeline version (1=unattended, 2=human-in-the-loop)")
	return cmd
}
