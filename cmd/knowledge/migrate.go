package main

import (
	"fmt"

	"github.com/aihub/knowledge-qa/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database schema migrations",
	}

	withManager := func(fn func(mm *database.MigrationManager) error) error {
		return state.app.Invoke(func(mm *database.MigrationManager) error {
			defer mm.Close()
			return fn(mm)
		})
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(mm *database.MigrationManager) error {
				if err := mm.Up(); err != nil {
					return fmt.Errorf("migration up failed: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed successfully")
				return err
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(mm *database.MigrationManager) error {
				if err := mm.Down(); err != nil {
					return fmt.Errorf("migration down failed: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Rollback completed successfully")
				return err
			})
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(mm *database.MigrationManager) error {
				version, dirty, err := mm.Version()
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				out := fmt.Sprintf("Current version: %d", version)
				if dirty {
					out += " (dirty)"
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			})
		},
	}

	cmd.AddCommand(upCmd, downCmd, versionCmd)
	return cmd
}
