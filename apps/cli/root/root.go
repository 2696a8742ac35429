package root

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/nuzum-saas/apps/cli/deps"
)

// rootCmd is the base command for the Nuzum admin CLI. Subcommands (auth, bootstrap, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "nuzum",
	Short:         "Nuzum admin CLI",
	Long:          "Administrative utilities for Nuzum (dev tokens, bootstrap, company and subscription management).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var opts deps.Options

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.DatabaseURL, "database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	flags.StringVar(&opts.PlansFile, "plans-file", "", "JSON plan catalog overriding the built-in plans")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// Execute runs the CLI. Commands see a context that is cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
