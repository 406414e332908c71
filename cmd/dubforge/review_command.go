package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and decide on pending review gates",
	}
	cmd.AddCommand(newReviewListCommand(ctx))
	cmd.AddCommand(newReviewApproveCommand(ctx))
	cmd.AddCommand(newReviewRejectCommand(ctx))
	cmd.AddCommand(newReviewRequestChangesCommand(ctx))
	return cmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List episodes awaiting a human review decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.buildApp("review-list")
			if err != nil {
				return err
			}
			defer application.Close()

			tasks, err := application.Store.ListActiveReviewTasks(context.Background())
			if err != nil {
				return fmt.Errorf("list active review tasks: %w", err)
			}

			rows := make([][]string, 0, len(tasks))
			for _, task := range tasks {
				rows = append(rows, []string{
					strconv.FormatInt(task.ID, 10),
					task.EpisodeID,
					task.Stage,
					string(task.Status),
					task.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Task", "Episode", "Gate", "Status", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newReviewApproveCommand(ctx *commandContext) *cobra.Command {
	var notes, decidedBy string

	cmd := &cobra.Command{
		Use:   "approve <task-id>",
		Short: "Approve a pending review task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}

			application, err := ctx.buildApp("review-approve")
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Review.Approve(context.Background(), taskID, notes, decidedBy); err != nil {
				return fmt.Errorf("approve task %d: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d approved\n", taskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Optional reviewer notes")
	cmd.Flags().StringVar(&decidedBy, "by", "cli", "Reviewer identity recorded on the decision")
	return cmd
}

func newReviewRejectCommand(ctx *commandContext) *cobra.Command {
	var notes, decidedBy string

	cmd := &cobra.Command{
		Use:   "reject <task-id>",
		Short: "Reject a pending review task and revert its episode for rework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}

			application, err := ctx.buildApp("review-reject")
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Review.Reject(context.Background(), taskID, notes, decidedBy); err != nil {
				return fmt.Errorf("reject task %d: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d rejected\n", taskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Reviewer notes (required for gate 3)")
	cmd.Flags().StringVar(&decidedBy, "by", "cli", "Reviewer identity recorded on the decision")
	return cmd
}

func newReviewRequestChangesCommand(ctx *commandContext) *cobra.Command {
	var notes, decidedBy string

	cmd := &cobra.Command{
		Use:   "request-changes <task-id>",
		Short: "Send a review task back with feedback for the next attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}

			application, err := ctx.buildApp("review-request-changes")
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Review.RequestChanges(context.Background(), taskID, notes, decidedBy); err != nil {
				return fmt.Errorf("request changes on task %d: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d sent back with feedback\n", taskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Feedback for the producing stage's next attempt (required)")
	cmd.Flags().StringVar(&decidedBy, "by", "cli", "Reviewer identity recorded on the decision")
	return cmd
}
