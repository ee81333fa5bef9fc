package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/database"
	"github.com/TemirB/save-cart-for-later/internal/migrate"
)

// NewMigrateCommand creates the migrate command with up and down subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the saved_carts schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", envOr("DB_DSN", ""), "PostgreSQL connection string")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootOpts, dsn, true)
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootOpts, dsn, false)
		},
	}
	cmd.AddCommand(up, down)

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *RootOptions, dsn string, up bool) error {
	if dsn == "" {
		return errors.New("--dsn or DB_DSN is required")
	}
	logger, err := opts.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := database.Connect(cmd.Context(), dsn, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if up {
		err = migrate.Apply(cmd.Context(), pool)
	} else {
		err = migrate.Down(cmd.Context(), pool)
	}
	if err != nil {
		return err
	}
	logger.Info("Migrations done", zap.Bool("up", up))
	return nil
}
