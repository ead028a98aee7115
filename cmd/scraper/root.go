package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tendly/internal/config"
	"tendly/internal/logger"
)

// app - состояние, общее для подкоманд после загрузки конфигурации.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "scraper",
		Short:         "Procurement notice ingestion",
		Long:          `Fetches procurement notices from Find a Tender (UK), TED (EU) or the synthetic generator and stores them in Postgres.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			lg, err := logger.New(logger.Config{Level: cfg.Log.Level})
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = lg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./config.yaml or ./config/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newScrapeCmd(a),
		newScheduleCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// addSourceFlags - флаги выбора источника и объёма выборки.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", config.SourceUK, "source: uk, eu or synthetic")
	cmd.Flags().String("country", "", "country code stored with the notices (default depends on source)")
	cmd.Flags().Int("limit", 100, "maximum records per run")
	cmd.Flags().String("stage", "", "stage filter passed to the source API as is")
	cmd.Flags().Int("days-back", 7, "fetch notices updated within this many days")
}
