// cmd/dgit/repo.go
package main

import (
	"fmt"

	"dgit/internal/branch"
	"dgit/internal/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRepoCmd(c *cli) *cobra.Command {
	repoCmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a repository with an empty main branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			repo, err := a.Repositories.Create(args[0], c.user)
			if err != nil {
				return fmt.Errorf("creating repository: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created repository %s (%s)\n", repo.Name, repo.ID)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			repos, err := a.Repositories.List(storage.Page{})
			if err != nil {
				return err
			}
			if len(repos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No repositories")
				return nil
			}
			bold := color.New(color.Bold).SprintFunc()
			for _, r := range repos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\towner=%s\n", r.ID, bold(r.Name), r.OwnerID)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <repository-id>",
		Short: "Delete a repository and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			if err := a.VCS.DeleteRepository(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting repository: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted repository", args[0])
			return nil
		},
	}

	repoCmd.AddCommand(createCmd, listCmd, deleteCmd)
	return repoCmd
}

func newBranchCmd(c *cli) *cobra.Command {
	branchCmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage branches",
	}

	createCmd := &cobra.Command{
		Use:   "create <repository-id> <name>",
		Short: "Create a branch at the head of another branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")

			a, err := c.open()
			if err != nil {
				return err
			}
			source, err := a.Branches.FindByName(args[0], from)
			if err != nil {
				return fmt.Errorf("finding branch %q: %w", from, err)
			}
			b, err := a.Branches.Create(args[0], args[1], c.user, source.HeadCommitID)
			if err != nil {
				return fmt.Errorf("creating branch: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s from %s\n", b.Name, from)
			return nil
		},
	}
	createCmd.Flags().String("from", branch.DefaultName, "branch whose head the new branch starts at")

	listCmd := &cobra.Command{
		Use:   "list <repository-id>",
		Short: "List branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			branches, err := a.Branches.ListByRepository(args[0], storage.Page{})
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			for _, b := range branches {
				head := "(no commits)"
				if b.HeadCommitID != nil {
					head = shortID(*b.HeadCommitID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", green(b.Name), head)
			}
			return nil
		},
	}

	branchCmd.AddCommand(createCmd, listCmd)
	return branchCmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
