// cmd/dgit/exec.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"dgit/internal/branch"

	"github.com/spf13/cobra"
)

func newExecCmd(c *cli) *cobra.Command {
	execCmd := &cobra.Command{
		Use:   "exec <repository-id>",
		Short: "Evaluate the index.json committed on a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName, _ := cmd.Flags().GetString("branch")
			input, _ := cmd.Flags().GetString("input")
			inputFile, _ := cmd.Flags().GetString("file")

			raw := []byte(input)
			if inputFile != "" {
				data, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				raw = data
			}
			if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
				return fmt.Errorf("input is not valid JSON")
			}

			a, err := c.open()
			if err != nil {
				return err
			}
			res, err := a.Resolver.ExecuteIndex(cmd.Context(), args[0], branchName, raw)
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, res.Result, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(res.Result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			fmt.Fprintf(cmd.ErrOrStderr(), "evaluated in %s\n", res.Performance)
			return nil
		},
	}
	execCmd.Flags().StringP("branch", "b", branch.DefaultName, "branch to evaluate")
	execCmd.Flags().StringP("input", "i", "", "input context as JSON")
	execCmd.Flags().StringP("file", "f", "", "read the input context from a file")
	return execCmd
}
