// cmd/dgit/mr.go
package main

import (
	"fmt"

	"dgit/internal/mergerequest"
	"dgit/internal/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func statusColor(s mergerequest.Status) string {
	switch s {
	case mergerequest.StatusOpen:
		return color.GreenString(string(s))
	case mergerequest.StatusMerged:
		return color.MagentaString(string(s))
	default:
		return color.RedString(string(s))
	}
}

func newMRCmd(c *cli) *cobra.Command {
	mrCmd := &cobra.Command{
		Use:   "mr",
		Short: "Review changes through merge requests",
	}

	createCmd := &cobra.Command{
		Use:   "create <repository-id> <source-branch> <target-branch>",
		Short: "Open a merge request",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			description, _ := cmd.Flags().GetString("description")

			a, err := c.open()
			if err != nil {
				return err
			}
			source, err := a.Branches.FindByName(args[0], args[1])
			if err != nil {
				return fmt.Errorf("finding source branch: %w", err)
			}
			target, err := a.Branches.FindByName(args[0], args[2])
			if err != nil {
				return fmt.Errorf("finding target branch: %w", err)
			}
			mr, err := a.MergeRequests.Create(mergerequest.NewMergeRequest{
				RepositoryID:   args[0],
				SourceBranchID: source.ID,
				TargetBranchID: target.ID,
				Title:          title,
				Description:    description,
				CreatedBy:      c.user,
			})
			if err != nil {
				return fmt.Errorf("creating merge request: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened merge request %s: %s\n", mr.ID, mr.Title)
			return nil
		},
	}
	createCmd.Flags().StringP("title", "t", "", "title")
	createCmd.Flags().StringP("description", "d", "", "description")
	createCmd.MarkFlagRequired("title")

	listCmd := &cobra.Command{
		Use:   "list <repository-id>",
		Short: "List merge requests, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")

			a, err := c.open()
			if err != nil {
				return err
			}
			mrs, err := a.MergeRequests.ListByRepository(args[0], mergerequest.Status(status), storage.Page{})
			if err != nil {
				return err
			}
			if len(mrs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No merge requests")
				return nil
			}
			for _, mr := range mrs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", mr.ID, statusColor(mr.Status), mr.Title)
			}
			return nil
		},
	}
	listCmd.Flags().String("status", "", "only show OPEN, MERGED or CLOSED")

	showCmd := &cobra.Command{
		Use:   "show <merge-request-id>",
		Short: "Show a merge request with its diff and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			withPatch, _ := cmd.Flags().GetBool("patch")

			a, err := c.open()
			if err != nil {
				return err
			}
			mr, err := a.MergeRequests.FindByID(args[0])
			if err != nil {
				return err
			}
			target, err := a.MergeRequests.GetBranchNamesForDiff(mr.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s] %s -> %s\n", mr.Title, statusColor(mr.Status), target.SourceBranchName, target.TargetBranchName)
			if mr.Description != "" {
				fmt.Fprintf(out, "\n%s\n", mr.Description)
			}
			fmt.Fprintln(out)

			result, err := a.Diffs.DiffBranches(target.RepositoryID, target.TargetBranchName, target.SourceBranchName)
			if err != nil {
				return err
			}
			if err := printDiff(out, a.Diffs, result, withPatch); err != nil {
				return err
			}

			comments, err := a.MergeRequests.ListComments(mr.ID, storage.Page{})
			if err != nil {
				return err
			}
			for _, cm := range comments {
				fmt.Fprintf(out, "\n%s: %s\n", color.CyanString(cm.UserID), cm.Comment)
			}
			return nil
		},
	}
	showCmd.Flags().BoolP("patch", "p", false, "show line diffs of modified files")

	mergeCmd := &cobra.Command{
		Use:   "merge <merge-request-id>",
		Short: "Fast-forward the target branch to the source branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			mr, err := a.VCS.MergeRequest(cmd.Context(), args[0], c.user)
			if err != nil {
				return fmt.Errorf("merging: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %s at %s\n", mr.Title, shortID(*mr.MergedCommitID))
			return nil
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <merge-request-id>",
		Short: "Close a merge request without merging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			mr, err := a.MergeRequests.UpdateStatus(args[0], mergerequest.StatusClosed)
			if err != nil {
				return fmt.Errorf("closing: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed %s\n", mr.Title)
			return nil
		},
	}

	commentCmd := &cobra.Command{
		Use:   "comment <merge-request-id> <text>",
		Short: "Add a review comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			if _, err := a.MergeRequests.AddComment(args[0], c.user, args[1]); err != nil {
				return fmt.Errorf("commenting: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Comment added")
			return nil
		},
	}

	mrCmd.AddCommand(createCmd, listCmd, showCmd, mergeCmd, closeCmd, commentCmd)
	return mrCmd
}
