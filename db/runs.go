package db

import (
	"context"
	"strconv"

	"tendly/models"
)

// LogRun добавляет строку аудита запуска. Строки журнала не меняются и не удаляются.
func (s *Storage) LogRun(ctx context.Context, e *models.ScrapingLogEntry) error {
	params := e.Parameters
	if params == "" {
		params = "{}"
	}
	query := `
        INSERT INTO scraping_log
            (country_code, source, records_fetched, records_inserted, records_duplicates,
             records_errors, status, error_message, parameters, duration_seconds)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
        RETURNING id, scrape_date`
	return s.db.QueryRowxContext(ctx, query,
		e.CountryCode, e.Source, e.RecordsFetched, e.RecordsInserted, e.RecordsDuplicates,
		e.RecordsErrors, e.Status, e.ErrorMessage, params, e.DurationSeconds).
		Scan(&e.ID, &e.ScrapeDate)
}

// ListRuns - последние запуски, новые первыми.
func (s *Storage) ListRuns(ctx context.Context, countryCode string, limit int) ([]models.ScrapingLogEntry, error) {
	limit, _ = pageBounds(limit, 0)
	w := countryWhere(countryCode)
	w.args = append(w.args, limit)
	query := `
        SELECT id, country_code, scrape_date, source, records_fetched, records_inserted,
            records_duplicates, records_errors, status, error_message, parameters::text AS parameters,
            duration_seconds
        FROM scraping_log` + w.sql() + `
        ORDER BY scrape_date DESC, id DESC
        LIMIT $` + strconv.Itoa(len(w.args))

	runs := []models.ScrapingLogEntry{}
	if err := s.db.SelectContext(ctx, &runs, query, w.args...); err != nil {
		return nil, err
	}
	return runs, nil
}
