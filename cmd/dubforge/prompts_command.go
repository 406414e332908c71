package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPromptsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage prompt template versions",
	}
	cmd.AddCommand(newPromptsRegisterCommand(ctx))
	cmd.AddCommand(newPromptsHistoryCommand(ctx))
	return cmd
}

func newPromptsRegisterCommand(ctx *commandContext) *cobra.Command {
	var setDefault bool

	cmd := &cobra.Command{
		Use:   "register <template-path>",
		Short: "Register a prompt template as a new content-hashed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.buildApp("prompts-register")
			if err != nil {
				return err
			}
			defer application.Close()

			version, err := application.Prompts.RegisterVersion(context.Background(), args[0], setDefault)
			if err != nil {
				return fmt.Errorf("register prompt: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s v%d (id=%d, default=%v)\n",
				version.Name, version.Version, version.ID, version.IsDefault)
			return nil
		},
	}
	cmd.Flags().BoolVar(&setDefault, "default", false, "Promote this version to the default for its name")
	return cmd
}

func newPromptsHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <prompt-name>",
		Short: "List every registered version of a prompt, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.buildApp("prompts-history")
			if err != nil {
				return err
			}
			defer application.Close()

			versions, err := application.Prompts.History(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("load prompt history: %w", err)
			}

			rows := make([][]string, 0, len(versions))
			for _, v := range versions {
				rows = append(rows, []string{
					strconv.FormatInt(v.ID, 10),
					strconv.Itoa(v.Version),
					v.ContentHash[:12],
					fmt.Sprintf("%v", v.IsDefault),
					v.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Version", "Hash", "Default", "Created"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
