package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"tendly/db"
	"tendly/internal/errs"
	"tendly/internal/ingest"
	"tendly/internal/logger"
	"tendly/internal/metrics"
	"tendly/internal/source"
	"tendly/internal/source/ocds"
	"tendly/internal/synthetic"
	"tendly/models"
)

// scriptedFetcher отдаёт заранее заданные ответы по порядку вызовов.
type scriptedFetcher struct {
	mu      sync.Mutex
	steps   []step
	calls   int
	cursors []string
}

type step struct {
	page *source.Page
	err  error
}

func (f *scriptedFetcher) Fetch(_ context.Context, params source.FetchParams) (*source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, params.Cursor)
	if f.calls >= len(f.steps) {
		return &source.Page{}, nil
	}
	s := f.steps[f.calls]
	f.calls++
	return s.page, s.err
}

type memStore struct {
	mu        sync.Mutex
	tenders   map[string]*models.NormalizedTender
	runs      []models.ScrapingLogEntry
	failAfter int
	upserts   int

	// reject - ошибка базы для конкретного notice_id
	reject map[string]error
}

func newMemStore() *memStore {
	return &memStore{tenders: map[string]*models.NormalizedTender{}, failAfter: -1, reject: map[string]error{}}
}

func (s *memStore) UpsertTender(_ context.Context, t *models.NormalizedTender) (db.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter >= 0 && s.upserts >= s.failAfter {
		return db.UpsertResult{}, errors.New("connection reset by peer")
	}
	if err, ok := s.reject[t.Tender.NoticeID]; ok {
		return db.UpsertResult{}, fmt.Errorf("upsert tender %s: %w", t.Tender.NoticeID, err)
	}
	s.upserts++
	key := t.Tender.NoticeID + "|" + t.Tender.CountryCode
	_, exists := s.tenders[key]
	s.tenders[key] = t
	return db.UpsertResult{TenderID: int64(len(s.tenders)), Inserted: !exists}, nil
}

func (s *memStore) LogRun(_ context.Context, e *models.ScrapingLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.runs) + 1)
	s.runs = append(s.runs, *e)
	return nil
}

func records(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, it := range items {
		out[i] = json.RawMessage(it)
	}
	return out
}

func ukSource(f source.Fetcher) source.Source {
	return source.Source{Key: "uk", Name: "Find a Tender API", Fetcher: f, Parser: ocds.NewParser()}
}

func fastConfig() ingest.Config {
	return ingest.Config{
		CountryCode:    "UK",
		Limit:          100,
		PageSize:       100,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestRunCountsParseErrorsWithoutFailing(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{page: &source.Page{Records: records(
		`{"id":"ocds-1","tender":{"title":"Road repair","lots":[{"id":"1"}]}}`,
		`{"ocid":"no-id","tender":{"title":"Broken"}}`,
		`{"id":"ocds-2","tender":{"title":"School meals"}}`,
	)}}}}
	store := newMemStore()
	m := metrics.New()
	cfg := fastConfig()
	cfg.RunLogDir = t.TempDir()

	res, err := ingest.New(cfg, ukSource(fetcher), store, logger.NewNop(), m).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, models.RunStatusSuccess, res.Status)
	require.Equal(t, 3, res.Fetched)
	require.Equal(t, 2, res.Inserted)
	require.Equal(t, 0, res.Duplicates)
	require.Equal(t, 1, res.Errors)
	require.Equal(t, 1, res.Pages)

	require.Len(t, store.runs, 1)
	row := store.runs[0]
	require.Equal(t, "UK", row.CountryCode)
	require.Equal(t, "Find a Tender API", row.Source)
	require.Equal(t, 3, row.RecordsFetched)
	require.Equal(t, 2, row.RecordsInserted)
	require.Equal(t, 0, row.RecordsDuplicates)
	require.Equal(t, 1, row.RecordsErrors)
	require.Equal(t, models.RunStatusSuccess, row.Status)
	require.Empty(t, row.ErrorMessage)
	require.JSONEq(t, `{"limit":100}`, row.Parameters)

	stored := store.tenders["ocds-1|UK"]
	require.NotNil(t, stored)
	require.Equal(t, "UK", stored.Lots[0].CountryCode)

	require.NotEmpty(t, res.RunLogPath)
	data, err := os.ReadFile(res.RunLogPath)
	require.NoError(t, err)
	var file map[string]any
	require.NoError(t, json.Unmarshal(data, &file))
	require.Equal(t, res.RunID, file["run_id"])
	require.Len(t, file["errors"], 1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("uk", metrics.OutcomeInserted)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("uk", metrics.OutcomeError)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.LastRunSuccess.WithLabelValues("uk")))
}

func TestReingestCountsDuplicates(t *testing.T) {
	gen := synthetic.New(synthetic.Config{Total: 12, Seed: 7})
	src := source.Source{Key: "synthetic", Name: "Synthetic", Fetcher: gen, Parser: ocds.NewParser()}
	store := newMemStore()
	cfg := fastConfig()
	cfg.PageSize = 5

	first, err := ingest.New(cfg, src, store, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, first.Fetched)
	require.Equal(t, 12, first.Inserted)
	require.Equal(t, 3, first.Pages)

	second, err := ingest.New(cfg, src, store, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, second.Fetched)
	require.Zero(t, second.Inserted)
	require.Equal(t, 12, second.Duplicates)
	require.Len(t, store.tenders, 12)
	require.Len(t, store.runs, 2)
}

func TestLimitStopsMidPage(t *testing.T) {
	gen := synthetic.New(synthetic.Config{Total: 50, Seed: 1})
	src := source.Source{Key: "synthetic", Name: "Synthetic", Fetcher: gen, Parser: ocds.NewParser()}
	store := newMemStore()
	cfg := fastConfig()
	cfg.Limit = 7
	cfg.PageSize = 5

	res, err := ingest.New(cfg, src, store, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, res.Fetched)
	require.Equal(t, 2, res.Pages)
	require.Equal(t, res.Fetched-res.Errors, res.Inserted+res.Duplicates)
}

func TestFollowsCursor(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{page: &source.Page{Records: records(`{"id":"a"}`), NextCursor: "c2"}},
		{page: &source.Page{Records: records(`{"id":"b"}`), NextCursor: "c3"}},
		{page: &source.Page{Records: records(`{"id":"c"}`)}},
	}}
	res, err := ingest.New(fastConfig(), ukSource(fetcher), newMemStore(), nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Inserted)
	require.Equal(t, []string{"", "c2", "c3"}, fetcher.cursors)
}

func TestTransientErrorIsRetried(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{err: errs.Transient(429, 0, errors.New("too many requests"))},
		{err: errs.Transient(503, 0, errors.New("unavailable"))},
		{page: &source.Page{Records: records(`{"id":"a"}`)}},
	}}
	m := metrics.New()

	res, err := ingest.New(fastConfig(), ukSource(fetcher), newMemStore(), nil, m).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)
	require.Equal(t, 3, fetcher.calls)
	require.Equal(t, 2.0, testutil.ToFloat64(m.FetchRetries.WithLabelValues("uk")))
}

func TestExhaustedRetriesAreFatal(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{page: &source.Page{Records: records(`{"id":"a"}`), NextCursor: "next"}},
		{err: errs.Transient(503, 0, errors.New("unavailable"))},
		{err: errs.Transient(503, 0, errors.New("unavailable"))},
		{err: errs.Transient(503, 0, errors.New("unavailable"))},
	}}
	store := newMemStore()

	res, err := ingest.New(fastConfig(), ukSource(fetcher), store, nil, nil).Run(context.Background())
	require.Error(t, err)
	require.True(t, errs.IsFatal(err))
	require.Equal(t, 4, fetcher.calls)

	require.Equal(t, models.RunStatusError, res.Status)
	require.Equal(t, 1, res.Inserted)
	require.Len(t, store.runs, 1)
	require.Equal(t, models.RunStatusError, store.runs[0].Status)
	require.Equal(t, 1, store.runs[0].RecordsInserted)
	require.Contains(t, store.runs[0].ErrorMessage, "giving up after 3 attempts")
}

func TestFatalFetchErrorIsNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{err: errs.Fatal("fetch releases", errors.New("status 500"))},
	}}
	store := newMemStore()

	_, err := ingest.New(fastConfig(), ukSource(fetcher), store, nil, nil).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, models.RunStatusError, store.runs[0].Status)
}

func TestStoreFailureKeepsPartialCounts(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{page: &source.Page{Records: records(
		`{"id":"a"}`, `{}`, `{"id":"b"}`, `{"id":"c"}`,
	)}}}}
	store := newMemStore()
	store.failAfter = 1

	res, err := ingest.New(fastConfig(), ukSource(fetcher), store, nil, nil).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert tender b")

	row := store.runs[0]
	require.Equal(t, models.RunStatusError, row.Status)
	require.Equal(t, 3, row.RecordsFetched)
	require.Equal(t, 1, row.RecordsInserted)
	require.Equal(t, 1, row.RecordsErrors)
	require.Equal(t, res.Fetched, row.RecordsFetched)
}

func TestRejectedRecordDoesNotAbortBatch(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{page: &source.Page{Records: records(
		`{"id":"a"}`, `{"id":"wide"}`, `{"id":"b"}`, `{"id":"dup"}`, `{"id":"c"}`,
	)}}}}
	store := newMemStore()
	store.reject["wide"] = &pq.Error{Code: "22001", Message: "value too long for type character varying(8)"}
	store.reject["dup"] = &pq.Error{Code: "23502", Message: "null value in column violates not-null constraint"}

	res, err := ingest.New(fastConfig(), ukSource(fetcher), store, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSuccess, res.Status)
	require.Equal(t, 5, res.Fetched)
	require.Equal(t, 3, res.Inserted)
	require.Equal(t, 2, res.Errors)
	require.Len(t, store.tenders, 3)

	row := store.runs[0]
	require.Equal(t, models.RunStatusSuccess, row.Status)
	require.Equal(t, 2, row.RecordsErrors)
	require.Equal(t, row.RecordsFetched-row.RecordsErrors, row.RecordsInserted+row.RecordsDuplicates)
}

func TestNonDataStoreErrorStillAborts(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{page: &source.Page{Records: records(
		`{"id":"a"}`, `{"id":"b"}`,
	)}}}}
	store := newMemStore()
	store.reject["a"] = &pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"}

	res, err := ingest.New(fastConfig(), ukSource(fetcher), store, nil, nil).Run(context.Background())
	require.Error(t, err)
	require.True(t, errs.IsFatal(err))
	require.Equal(t, models.RunStatusError, res.Status)
	require.Empty(t, store.tenders)
}
