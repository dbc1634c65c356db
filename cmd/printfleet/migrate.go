package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/printfleet/internal/bootstrap"
	"github.com/smallbiznis/printfleet/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(conn *gorm.DB) error {
			if err := migration.Apply(conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSQL(cmd.Context(), func(db *sql.DB) error {
			if err := migration.Rollback(db, rollbackSteps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", rollbackSteps)
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSQL(cmd.Context(), func(db *sql.DB) error {
			v, dirty, err := migration.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
			return nil
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to revert")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

// withDatabase starts only the infrastructure graph, hands fn the connection
// and shuts the graph down again.
func withDatabase(ctx context.Context, fn func(conn *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var conn *gorm.DB
	app := fx.New(
		bootstrap.Core(),
		fx.Populate(&conn),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(conn)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return errors.Join(runErr, app.Stop(stopCtx))
}

// withSQL is withDatabase for the versioned migrations, which only exist for
// postgres.
func withSQL(ctx context.Context, fn func(db *sql.DB) error) error {
	return withDatabase(ctx, func(conn *gorm.DB) error {
		if name := conn.Dialector.Name(); name != "postgres" {
			return fmt.Errorf("versioned migrations need postgres, got %s", name)
		}
		db, err := conn.DB()
		if err != nil {
			return err
		}
		return fn(db)
	})
}
