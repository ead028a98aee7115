package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tendly/db"
	"tendly/internal/config"
	"tendly/internal/ingest"
	"tendly/internal/logger"
	"tendly/internal/metrics"
	"tendly/internal/source"
	"tendly/internal/source/ocds"
	"tendly/internal/source/ted"
	"tendly/internal/synthetic"
)

func newScrapeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one ingestion batch and exit",
		Long: `Fetches one batch of notices, stores them and writes the audit row and run log file.
Exits with a non-zero status when the batch fails fatally; per-record parse errors do not fail the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}
			conn, err := db.Connect(cmd.Context(), a.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer conn.Close()

			res, err := runOnce(cmd.Context(), a.cfg, db.NewStorage(conn), a.log, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d inserted=%d duplicates=%d errors=%d status=%s\n",
				res.Fetched, res.Inserted, res.Duplicates, res.Errors, res.Status)
			return nil
		},
	}
	addSourceFlags(cmd)
	return cmd
}

// runOnce собирает конвейер по конфигурации и выполняет один запуск.
func runOnce(ctx context.Context, cfg *config.Config, store ingest.Store, log logger.Logger, m *metrics.Metrics) (*ingest.Result, error) {
	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	return ingest.New(scraperConfig(cfg, time.Now()), src, store, log, m).Run(ctx)
}

var taskNames = map[string]string{
	config.SourceUK:        "scrape_tenders",
	config.SourceEU:        "scrape_eu_tenders",
	config.SourceSynthetic: "generate_synthetic_tenders",
}

// scraperConfig - окно дат [now-days_back, now]; days_back 0 - без ограничения по дате.
func scraperConfig(cfg *config.Config, now time.Time) ingest.Config {
	sc := ingest.Config{
		Task:              taskNames[cfg.Source.Name],
		CountryCode:       cfg.Source.CountryCode,
		Limit:             cfg.Scrape.Limit,
		PageSize:          cfg.Scrape.Limit,
		Stage:             cfg.Scrape.Stage,
		MaxAttempts:       cfg.Scrape.MaxAttempts,
		InitialBackoff:    cfg.Scrape.InitialBackoff,
		RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
		RunLogDir:         cfg.Scrape.RunLogDir,
	}
	if cfg.Scrape.DaysBack > 0 {
		to := now.UTC()
		from := to.AddDate(0, 0, -cfg.Scrape.DaysBack)
		sc.DateFrom = &from
		sc.DateTo = &to
	}
	return sc
}

// newSource выбирает клиент и разборщик по source.name.
func newSource(cfg *config.Config) (source.Source, error) {
	httpClient := source.NewHTTPClient(cfg.Source.Timeout)

	switch cfg.Source.Name {
	case config.SourceUK:
		return source.Source{
			Key:     config.SourceUK,
			Name:    "Find a Tender API",
			Fetcher: ocds.NewClient(ocds.Config{BaseURL: cfg.Source.BaseURL, UserAgent: cfg.Source.UserAgent}, httpClient),
			Parser:  ocds.NewParser(),
		}, nil
	case config.SourceEU:
		return source.Source{
			Key:     config.SourceEU,
			Name:    "TED API",
			Fetcher: ted.NewClient(ted.Config{BaseURL: cfg.Source.BaseURL, UserAgent: cfg.Source.UserAgent}, httpClient),
			Parser:  ted.NewParser(),
		}, nil
	case config.SourceSynthetic:
		// генератор отдаёт OCDS-релизы, разбор тот же, что у UK
		return source.Source{
			Key:     config.SourceSynthetic,
			Name:    "Synthetic Data Generator",
			Fetcher: synthetic.New(synthetic.Config{Total: cfg.Scrape.Limit}),
			Parser:  ocds.NewParser(),
		}, nil
	default:
		return source.Source{}, fmt.Errorf("unknown source %q", cfg.Source.Name)
	}
}
