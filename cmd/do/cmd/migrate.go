package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templui/fileshare/internal/config"
	"github.com/templui/fileshare/internal/db"
	"github.com/templui/fileshare/internal/repository"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema of DB_DRIVER",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations (mongodb: ensure indexes)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(cmd.Context(), "up")
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(cmd.Context(), "down")
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(cmd.Context(), "status")
			},
		},
	)
	return cmd
}

func migrate(ctx context.Context, action string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.UsesMongo() {
		if action != "up" {
			return fmt.Errorf("mongodb has no versioned schema; only 'up' is supported")
		}
		database, err := db.ConnectMongo(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer func() { _ = database.Client().Disconnect(context.Background()) }()

		err = repository.EnsureMongoIndexes(ctx, database)
		if err != nil {
			return err
		}
		fmt.Println("==> Indexes ensured on", cfg.MongoDatabase)
		return nil
	}

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	switch action {
	case "up":
		err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	case "down":
		err = db.MigrateDown(ctx, database.DB, cfg.DBDriver)
	}
	if err != nil {
		return err
	}

	version, err := db.SchemaVersion(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		return err
	}
	fmt.Printf("==> %s schema at version %d\n", cfg.DBDriver, version)
	return nil
}
