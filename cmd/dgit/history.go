// cmd/dgit/history.go
package main

import (
	"fmt"
	"io"
	"strings"

	"dgit/internal/branch"
	"dgit/internal/diff"
	"dgit/internal/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newLogCmd(c *cli) *cobra.Command {
	logCmd := &cobra.Command{
		Use:   "log <repository-id>",
		Short: "Show the first-parent history of a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName, _ := cmd.Flags().GetString("branch")
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := c.open()
			if err != nil {
				return err
			}
			commits, err := a.Commits.ListByBranch(args[0], branchName, storage.Page{Take: limit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(commits) == 0 {
				fmt.Fprintf(out, "Branch %s has no commits\n", branchName)
				return nil
			}
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, cm := range commits {
				fmt.Fprintf(out, "%s %s\n", yellow("commit "+cm.ID), cm.Message)
				fmt.Fprintf(out, "  Author: %s  Date: %s\n", cm.AuthorID, cm.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	logCmd.Flags().StringP("branch", "b", branch.DefaultName, "branch to walk")
	logCmd.Flags().IntP("limit", "n", 20, "maximum number of commits (0 for all)")
	return logCmd
}

func newDiffCmd(c *cli) *cobra.Command {
	diffCmd := &cobra.Command{
		Use:   "diff <repository-id> <base-branch> <target-branch>",
		Short: "Show the paths that differ between two branch heads",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			withPatch, _ := cmd.Flags().GetBool("patch")

			a, err := c.open()
			if err != nil {
				return err
			}
			result, err := a.Diffs.DiffBranches(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printDiff(cmd.OutOrStdout(), a.Diffs, result, withPatch)
		},
	}
	diffCmd.Flags().BoolP("patch", "p", false, "show line diffs of modified files")
	return diffCmd
}

func printDiff(out io.Writer, engine *diff.Engine, result *diff.Result, withPatch bool) error {
	if result.Empty() {
		fmt.Fprintln(out, "No differences")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, p := range result.Added {
		fmt.Fprintf(out, "\t%s %s\n", green("A"), p.Path)
	}
	for _, p := range result.Removed {
		fmt.Fprintf(out, "\t%s %s\n", red("D"), p.Path)
	}
	for _, m := range result.Modified {
		fmt.Fprintf(out, "\t%s %s\n", yellow("M"), m.Path)
	}
	if !withPatch {
		return nil
	}

	patches, err := engine.PatchPaths(result.Modified)
	if err != nil {
		return err
	}
	for _, p := range patches {
		fmt.Fprintf(out, "\n%s\n", color.New(color.Bold).Sprint("--- ", p.Path))
		printColoredDiff(out, p.Format())
	}
	return nil
}

func printColoredDiff(out io.Writer, text string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Fprintln(out, line)
		case strings.HasPrefix(line, "+"):
			added.Fprintln(out, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprintln(out, line)
		default:
			fmt.Fprintln(out, line)
		}
	}
}
