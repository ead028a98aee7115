package main

import (
	"github.com/spf13/cobra"

	"tendly/db"
	"tendly/db/migrations"
	"tendly/internal/logger"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}
			conn, err := db.Connect(cmd.Context(), a.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := migrations.Run(conn.DB); err != nil {
				return err
			}
			version, err := migrations.Version(conn.DB)
			if err != nil {
				return err
			}
			a.log.Info("migrations applied", logger.Int64("version", version))
			return nil
		},
	}
}
