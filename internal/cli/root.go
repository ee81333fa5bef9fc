package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

func (o *RootOptions) logger() (*zap.Logger, error) {
	return logging.New(o.LogLevel)
}

// NewRootCommand creates the cartctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cartctl",
		Short:         "Operational tooling for the saved cart service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug|info|warn|error|dev)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSignCommand(opts))
	cmd.AddCommand(NewEnsureTopicCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))

	return cmd
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
