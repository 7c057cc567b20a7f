// Package commands implements the CLI commands for the stash cache engine.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.trai.ch/stash/internal/adapters/detector"
	"go.trai.ch/stash/internal/adapters/logger"
	"go.trai.ch/stash/internal/app"
	"go.trai.ch/stash/internal/build"
	"go.trai.ch/stash/internal/core/ports"
)

// CLI represents the command line interface for stash.
type CLI struct {
	app     Application
	logger  ports.Logger
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Status(ctx context.Context) (*app.Status, error)
	GC(ctx context.Context) error
	Watch(ctx context.Context) error
	Clean(ctx context.Context) error
}

// New creates a new CLI instance with the given app and logger.
func New(a Application, lg ports.Logger) *CLI {
	rootCmd := &cobra.Command{
		Use:           "stash",
		Short:         "A persistent, content-aware build cache engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringP("output", "o", "auto", "Log output mode: auto, pretty, or json")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	c := &CLI{
		app:     a,
		logger:  lg,
		rootCmd: rootCmd,
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		c.configureLogger(cmd)
	}

	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newGCCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// configureLogger applies the output flags to the concrete logger. A mocked
// logger in tests has no output mode and is left alone.
func (c *CLI) configureLogger(cmd *cobra.Command) {
	l, ok := c.logger.(*logger.Logger)
	if !ok {
		return
	}
	flag, _ := cmd.Flags().GetString("output")
	mode := detector.ResolveMode(detector.DetectEnvironment(), flag)
	l.SetJSON(mode == detector.ModeJSON)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		l.SetLevel(slog.LevelDebug)
	}
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
