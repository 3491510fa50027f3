package main

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the storage schema and exit",
	Long: `Apply all pending schema migrations to the store selected by DATABASE_URL.

Postgres migrations run under an advisory lock, so several instances may run
this at the same time. "serve" applies the same migrations on startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		_, closeStorage, err := openStorage(cmd.Context(), cfg, clockwork.NewRealClock())
		if err != nil {
			return err
		}
		closeStorage()

		slog.Info("Schema is up to date", "postgres", cfg.UsesPostgres())
		return nil
	},
}
