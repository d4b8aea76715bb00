// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/rentloop/rentloop/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// MigratorFactory opens a migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies every pending migration.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(defaultMigratorFactory)
}

func newMigrateCmd(factory MigratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE:  withMigrator(factory, migrateUp),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(factory, migrateUp),
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.NoArgs,
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration (drops all listing data)")
	down.RunE = withMigrator(factory, migrateDown)
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(factory, migrateStatus),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use this only after repairing a migration that failed half way.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(factory, migrateForce),
	})

	return cmd
}

type migrateFunc func(cmd *cobra.Command, args []string, m Migrator) error

func withMigrator(factory MigratorFactory, fn migrateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		m, err := factory(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
			}
		}()
		return fn(cmd, args, m)
	}
}

func migrateUp(cmd *cobra.Command, _ []string, m Migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", version)
	return nil
}

func migrateDown(cmd *cobra.Command, _ []string, m Migrator) error {
	all, _ := cmd.Flags().GetBool("all")
	if all {
		if err := m.Down(); err != nil {
			return err
		}
		cmd.Println("All migrations rolled back")
		return nil
	}
	steps, _ := cmd.Flags().GetInt("steps")
	if steps < 1 {
		return oops.Code("INVALID_STEPS").Errorf("--steps must be at least 1, got %d", steps)
	}
	if err := m.Steps(-steps); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Rolled back %d migration(s) (version %d)\n", steps, version)
	return nil
}

func migrateStatus(cmd *cobra.Command, _ []string, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty (run 'rentloop migrate force VERSION' after repairing)"
	}
	cmd.Printf("Current version: %d, %s\n", version, state)
	cmd.Println()
	cmd.Print(formatMigrations("Applied", applied))
	cmd.Print(formatMigrations("Pending", pending))
	return nil
}

func formatMigrations(title string, versions []uint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", title, len(versions))
	if len(versions) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return b.String()
}

func migrateForce(cmd *cobra.Command, args []string, m Migrator) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return err
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}

// parseForceVersion reads the leading integer of s. Trailing characters
// after the digits are ignored.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return version, nil
}
