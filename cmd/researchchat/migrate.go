package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researchchat/config"
	"github.com/mohammad-safakhou/researchchat/internal/store"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Storage.Postgres.Validate(); err != nil {
				return err
			}
			if err := store.Migrate(cfg.Storage.Postgres.DSN(), migDir, direction, steps); err != nil {
				return err
			}
			log.Printf("[STORE] migrations applied (%s)", direction)
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source, e.g. file://internal/store/migrations (default: embedded)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
