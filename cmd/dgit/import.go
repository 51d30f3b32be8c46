// cmd/dgit/import.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"dgit/internal/branch"
	"dgit/internal/vcs"
	"dgit/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// snapshot imports dir and commits it, reporting the outcome on out.
func snapshot(ctx context.Context, out io.Writer, svc *vcs.Service, repositoryID, branchName, dir, user, message string) error {
	d, err := workspace.Scan(dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", dir, err)
	}
	if message == "" {
		message = fmt.Sprintf("Import %d files", d.Count())
	}

	c, err := svc.Snapshot(ctx, repositoryID, branchName, d, user, message)
	if errors.Is(err, vcs.ErrNoChanges) {
		fmt.Fprintln(out, "Nothing to commit (tree unchanged)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s %s\n", color.GreenString("✓"), color.YellowString(shortID(c.ID)), c.Message)
	return nil
}

func newImportCmd(c *cli) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import <repository-id> <dir>",
		Short: "Commit the JSON files of a directory to a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName, _ := cmd.Flags().GetString("branch")
			message, _ := cmd.Flags().GetString("message")

			a, err := c.open()
			if err != nil {
				return err
			}
			return snapshot(cmd.Context(), cmd.OutOrStdout(), a.VCS, args[0], branchName, args[1], c.user, message)
		},
	}
	importCmd.Flags().StringP("branch", "b", branch.DefaultName, "branch to commit to")
	importCmd.Flags().StringP("message", "m", "", "commit message")
	return importCmd
}

func newWatchCmd(c *cli) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch <repository-id> <dir>",
		Short: "Commit a directory to a branch every time it changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName, _ := cmd.Flags().GetString("branch")
			debounce, _ := cmd.Flags().GetDuration("debounce")

			a, err := c.open()
			if err != nil {
				return err
			}
			repoID, dir := args[0], args[1]
			out := cmd.OutOrStdout()

			if err := snapshot(cmd.Context(), out, a.VCS, repoID, branchName, dir, c.user, "Initial watch snapshot"); err != nil {
				return err
			}

			w, err := workspace.NewWatcher(dir, debounce, a.Logger.Logger, func(ctx context.Context) error {
				return snapshot(ctx, out, a.VCS, repoID, branchName, dir, c.user, "Auto-commit "+time.Now().Format(time.RFC3339))
			})
			if err != nil {
				return err
			}
			defer w.Close()

			a.Logger.Info("watching directory", zap.String("dir", dir), zap.String("branch", branchName))
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", dir)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	watchCmd.Flags().StringP("branch", "b", branch.DefaultName, "branch to commit to")
	watchCmd.Flags().Duration("debounce", workspace.DefaultDebounce, "quiet period before committing")
	return watchCmd
}
