package main

import (
	"fmt"

	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	apperrors "github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the user database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, func(db *database.DB) error {
				return db.MigrateUp()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, func(db *database.DB) error {
				return db.MigrateDown()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, func(*database.DB) error { return nil })
		},
	})

	return cmd
}

// withSchema opens the database without migrating, runs fn and reports the
// resulting schema version.
func withSchema(cmd *cobra.Command, fn func(*database.DB) error) error {
	cfg, err := settings(cmd)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "database")

	if err := fn(db); err != nil {
		return err
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}

	cliLogger(cmd, cfg).SystemLogger("schema_version", fmt.Sprintf("%s at version %d", cfg.DBPath, version))
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", version)
	return nil
}
