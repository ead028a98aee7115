// Package ingest - конвейер загрузки: страница источника, разбор записей,
// upsert в хранилище, строка аудита и файл журнала запуска.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"tendly/db"
	"tendly/internal/errs"
	"tendly/internal/logger"
	"tendly/internal/metrics"
	"tendly/internal/runlog"
	"tendly/internal/source"
	"tendly/models"
)

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = time.Minute
)

// Store - то, что конвейеру нужно от хранилища.
type Store interface {
	UpsertTender(ctx context.Context, t *models.NormalizedTender) (db.UpsertResult, error)
	LogRun(ctx context.Context, e *models.ScrapingLogEntry) error
}

type Config struct {
	Task        string
	CountryCode string

	// Limit - сколько записей обработать за запуск
	Limit    int
	PageSize int
	Stage    string
	DateFrom *time.Time
	DateTo   *time.Time

	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64

	// RunLogDir пустой - файл журнала не пишется
	RunLogDir string
}

// Result - итог одного запуска.
// Всегда Inserted + Duplicates == Fetched - Errors.
type Result struct {
	RunID      string
	Status     models.RunStatus
	Fetched    int
	Inserted   int
	Duplicates int
	Errors     int
	Pages      int
	Duration   time.Duration
	RunLogPath string
}

type Scraper struct {
	cfg     Config
	src     source.Source
	store   Store
	logger  logger.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
	now     func() time.Time
}

// New собирает конвейер. m может быть nil.
func New(cfg Config, src source.Source, store Store, log logger.Logger, m *metrics.Metrics) *Scraper {
	if cfg.Task == "" {
		cfg.Task = "scrape_tenders"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if log == nil {
		log = logger.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Scraper{
		cfg:     cfg,
		src:     src,
		store:   store,
		logger:  log.With(logger.String("source", src.Key), logger.String("country_code", cfg.CountryCode)),
		metrics: m,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Parameters - параметры запуска для аудита и файла журнала.
func (s *Scraper) Parameters() map[string]any {
	p := map[string]any{"limit": s.cfg.Limit}
	if s.cfg.Stage != "" {
		p["stage"] = s.cfg.Stage
	}
	if s.cfg.DateFrom != nil {
		p["date_from"] = s.cfg.DateFrom.UTC().Format(time.RFC3339)
	}
	if s.cfg.DateTo != nil {
		p["date_to"] = s.cfg.DateTo.UTC().Format(time.RFC3339)
	}
	return p
}

// Run выполняет один запуск. Ошибки разбора отдельных записей и записи,
// отвергнутые базой по данным, считаются и пропускаются, ошибка хранилища или исчерпанные повторы прерывают запуск:
// тогда строка аудита пишется со статусом error и накопленными счётчиками,
// а ошибка возвращается вызывающему.
func (s *Scraper) Run(ctx context.Context) (*Result, error) {
	run := runlog.StartAt(s.cfg.Task, s.cfg.CountryCode, s.src.Name, s.Parameters(), s.now)
	res := &Result{RunID: run.RunID}

	s.logger.Info("scrape started",
		logger.String("run_id", run.RunID),
		logger.Int("limit", s.cfg.Limit),
		logger.String("stage", s.cfg.Stage))

	runErr := s.batch(ctx, run, res)

	res.Status = models.RunStatusSuccess
	if runErr != nil {
		res.Status = models.RunStatusError
		run.AddError(runErr)
	}
	run.Finish(res.Status, res.Fetched, res.Inserted, res.Duplicates, res.Errors)
	res.Duration = time.Duration(run.DurationSeconds * float64(time.Second))

	// аудит пишется и после отмены контекста
	auditCtx := context.WithoutCancel(ctx)
	if err := s.store.LogRun(auditCtx, s.auditEntry(res, runErr)); err != nil {
		s.logger.Error("failed to write scraping log row", logger.Error(err))
		if runErr == nil {
			runErr = errs.Fatal("log run", err)
		}
	}

	if s.cfg.RunLogDir != "" {
		path, err := run.Write(s.cfg.RunLogDir)
		if err != nil {
			s.logger.Warn("failed to write run log file", logger.Error(err))
		} else {
			res.RunLogPath = path
		}
	}

	s.metrics.ObserveRun(s.src.Key, res.Status, res.Duration)

	fields := []logger.Field{
		logger.String("run_id", res.RunID),
		logger.String("status", string(res.Status)),
		logger.Int("fetched", res.Fetched),
		logger.Int("inserted", res.Inserted),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("errors", res.Errors),
		logger.Int("pages", res.Pages),
		logger.Duration("duration", res.Duration),
	}
	if runErr != nil {
		s.logger.Error("scrape failed", append(fields, logger.Error(runErr))...)
		return res, runErr
	}
	s.logger.Info("scrape finished", fields...)
	return res, nil
}

func (s *Scraper) batch(ctx context.Context, run *runlog.Run, res *Result) error {
	params := source.FetchParams{
		Limit:    s.cfg.PageSize,
		Stage:    s.cfg.Stage,
		DateFrom: s.cfg.DateFrom,
		DateTo:   s.cfg.DateTo,
	}

	for {
		page, err := s.fetchPage(ctx, params)
		if err != nil {
			return err
		}
		res.Pages++
		s.metrics.ObservePage(s.src.Key)

		for _, raw := range page.Records {
			if s.cfg.Limit > 0 && res.Fetched >= s.cfg.Limit {
				return nil
			}
			res.Fetched++
			if err := s.process(ctx, raw, run, res); err != nil {
				return err
			}
		}

		if page.NextCursor == "" || len(page.Records) == 0 {
			return nil
		}
		if s.cfg.Limit > 0 && res.Fetched >= s.cfg.Limit {
			return nil
		}
		params.Cursor = page.NextCursor
	}
}

func (s *Scraper) process(ctx context.Context, raw json.RawMessage, run *runlog.Run, res *Result) error {
	nt, err := s.src.Parser.Parse(raw)
	if err != nil {
		res.Errors++
		run.AddError(err)
		s.metrics.ObserveRecord(s.src.Key, metrics.OutcomeError)
		s.logger.Warn("skipping record", logger.Error(err))
		return nil
	}
	nt.SetCountryCode(s.cfg.CountryCode)

	up, err := s.store.UpsertTender(ctx, nt)
	if rejectedRecord(err) {
		err = errs.Parse("store rejected notice "+nt.Tender.NoticeID, err)
		res.Errors++
		run.AddError(err)
		s.metrics.ObserveRecord(s.src.Key, metrics.OutcomeError)
		s.logger.Warn("skipping record", logger.Error(err))
		return nil
	}
	if err != nil {
		return errs.Fatal("upsert tender "+nt.Tender.NoticeID, err)
	}
	if up.Inserted {
		res.Inserted++
		s.metrics.ObserveRecord(s.src.Key, metrics.OutcomeInserted)
	} else {
		res.Duplicates++
		s.metrics.ObserveRecord(s.src.Key, metrics.OutcomeDuplicate)
	}
	return nil
}

// rejectedRecord - база отвергла данные самой записи (классы SQLSTATE
// 22 и 23), остальные записи пакета это не затрагивает.
func rejectedRecord(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	cls := pqErr.Code.Class()
	return cls == "22" || cls == "23"
}

// fetchPage запрашивает страницу с повторами временных ошибок.
// Задержка - экспонента от InitialBackoff, но не меньше Retry-After сервера.
func (s *Scraper) fetchPage(ctx context.Context, params source.FetchParams) (*source.Page, error) {
	var (
		page       *source.Page
		retryAfter time.Duration
	)

	b := retry.NewExponential(s.cfg.InitialBackoff)
	b = retry.WithCappedDuration(s.cfg.MaxBackoff, b)
	b = retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), b)
	b = atLeast(b, &retryAfter)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		attempt++

		p, err := s.src.Fetcher.Fetch(ctx, params)
		if err == nil {
			page = p
			return nil
		}
		if !errs.IsTransient(err) {
			return err
		}
		retryAfter = errs.RetryAfter(err)
		if attempt < s.cfg.MaxAttempts {
			s.metrics.ObserveRetry(s.src.Key)
			s.logger.Warn("transient fetch error, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("retry_after", retryAfter),
				logger.Error(err))
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		if errs.IsTransient(err) {
			return nil, errs.Fatal("fetch page", fmt.Errorf("giving up after %d attempts: %w", attempt, err))
		}
		return nil, errs.Fatal("fetch page", err)
	}
	return page, nil
}

// atLeast поднимает очередную задержку до значения *floor.
func atLeast(next retry.Backoff, floor *time.Duration) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			return 0, true
		}
		if *floor > d {
			d = *floor
		}
		return d, false
	})
}

func (s *Scraper) auditEntry(res *Result, runErr error) *models.ScrapingLogEntry {
	params, err := json.Marshal(s.Parameters())
	if err != nil {
		params = []byte("{}")
	}
	e := &models.ScrapingLogEntry{
		CountryCode:       s.cfg.CountryCode,
		Source:            s.src.Name,
		RecordsFetched:    res.Fetched,
		RecordsInserted:   res.Inserted,
		RecordsDuplicates: res.Duplicates,
		RecordsErrors:     res.Errors,
		Status:            res.Status,
		Parameters:        string(params),
		DurationSeconds:   res.Duration.Seconds(),
	}
	if runErr != nil {
		e.ErrorMessage = runErr.Error()
	}
	return e
}
