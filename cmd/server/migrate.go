package main

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/db"
)

func newMigrateCommand(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, logger, err := load()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
				if err := db.Migrate(cfg); err != nil {
					return err
				}
				logger.Info("migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations, one step by default",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return errors.Newf("steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				cfg, logger, err := load()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
				if err := db.Rollback(cfg, steps); err != nil {
					return err
				}
				logger.Info("migrations rolled back", zap.Int("steps", steps))
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				cfg, logger, err := load()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
				version, dirty, err := db.Version(cfg)
				if err != nil {
					return err
				}
				c.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}
