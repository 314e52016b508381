package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/eventdesk/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|status]",
	Short: "Apply or inspect database migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	action := "up"
	if len(args) == 1 {
		action = args[0]
	}
	if action != "up" && action != "status" {
		return fmt.Errorf("unknown migrate action %q", action)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireDB(); err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if action == "status" {
		return database.MigrationStatus(ctx, db)
	}
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	log.Info("Migrations applied")
	return nil
}
