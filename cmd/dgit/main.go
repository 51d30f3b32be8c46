// cmd/dgit/main.go
package main

import (
	"fmt"
	"os"

	"dgit/internal/app"
	"dgit/internal/config"
	"dgit/internal/logging"

	"github.com/spf13/cobra"
)

// cli holds the flags shared by every command and the lazily built app.
type cli struct {
	configPath string
	dbPath     string
	user       string
	app        *app.App
}

// open builds the application on first use.
func (c *cli) open() (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}

	cfg, err := config.LoadOrDefault(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.dbPath != "" {
		cfg.Database.Path = c.dbPath
		cfg.Database.InMemory = false
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	a, err := app.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	defer c.app.Logger.Sync()
	err := c.app.Close()
	c.app = nil
	return err
}

func defaultUser() string {
	if u := os.Getenv("DGIT_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dgit",
		Short: "dgit versions JSON decision graphs",
		Long: `dgit stores decision graphs as blobs, trees and commits, tracks them on
branches, reviews changes through merge requests and executes the committed
index.json of a branch.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", config.Path(), "config file (.json, .yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "database directory (overrides the config)")
	rootCmd.PersistentFlags().StringVarP(&c.user, "user", "u", defaultUser(), "user recorded as author")

	rootCmd.AddCommand(
		newRepoCmd(c),
		newBranchCmd(c),
		newImportCmd(c),
		newWatchCmd(c),
		newLogCmd(c),
		newDiffCmd(c),
		newMRCmd(c),
		newExecCmd(c),
	)
	return rootCmd
}

func main() {
	c := &cli{}
	err := newRootCmd(c).Execute()
	if cerr := c.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
