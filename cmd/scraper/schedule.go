package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"tendly/db"
	"tendly/internal/logger"
	"tendly/internal/metrics"
)

const (
	cronParseOptions = cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	shutdownTimeout  = 10 * time.Second
)

func newScheduleCmd(a *app) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run ingestion batches on a cron schedule",
		Long: `Runs the ingestion batch on schedule.spec (default @hourly) until interrupted.
A tick is skipped while the previous batch is still running. Failed batches are logged and do not stop the scheduler.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}
			ctx := cmd.Context()

			conn, err := db.Connect(ctx, a.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer conn.Close()

			store := db.NewStorage(conn)
			m := metrics.New()
			job := func() {
				// ошибка уже записана в журнал и аудит
				_, _ = runOnce(ctx, a.cfg, store, a.log, m)
			}

			c, err := newCron(a.cfg.Schedule.Spec, a.log, job)
			if err != nil {
				return err
			}

			if addr := a.cfg.Schedule.MetricsAddress; addr != "" {
				srv := &http.Server{Addr: addr, Handler: metricsMux(m), ReadHeaderTimeout: 10 * time.Second}
				go func() {
					a.log.Info("serving metrics", logger.String("address", addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("metrics server failed", logger.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			c.Start()
			a.log.Info("scheduler started", logger.String("spec", a.cfg.Schedule.Spec))
			if runNow {
				// через cron, чтобы SkipIfStillRunning видел и этот запуск
				c.Entry(c.Entries()[0].ID).WrappedJob.Run()
			}

			<-ctx.Done()
			a.log.Info("stopping scheduler, waiting for the running batch")
			<-c.Stop().Done()
			return nil
		},
	}
	addSourceFlags(cmd)
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one batch immediately before waiting for the first tick")
	return cmd
}

// newCron - планировщик с одной задачей; паника задачи перехватывается,
// тик пропускается, пока идёт предыдущий запуск.
func newCron(spec string, log logger.Logger, job func()) (*cron.Cron, error) {
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithParser(cron.NewParser(cronParseOptions)),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// cronLogger направляет журнал cron в zap.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
