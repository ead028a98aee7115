// Package runlog пишет JSON-журнал каждого запуска загрузки в отдельный файл,
// независимо от строки аудита в базе.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"tendly/internal/errs"
	"tendly/models"
)

const fileTimeLayout = "20060102_150405"

type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Type      string    `json:"type"`
}

// Run - содержимое файла журнала одного запуска.
type Run struct {
	RunID             string           `json:"run_id"`
	Task              string           `json:"task"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           *time.Time       `json:"end_time"`
	DurationSeconds   float64          `json:"duration_seconds"`
	CountryCode       string           `json:"country_code"`
	Source            string           `json:"source"`
	Parameters        map[string]any   `json:"parameters"`
	Status            models.RunStatus `json:"status"`
	RecordsFetched    int              `json:"records_fetched"`
	RecordsInserted   int              `json:"records_inserted"`
	RecordsDuplicates int              `json:"records_duplicates"`
	RecordsErrors     int              `json:"records_errors"`
	Errors            []ErrorEntry     `json:"errors"`

	mu  sync.Mutex
	now func() time.Time
}

// Start начинает новый запуск со свежим run_id.
func Start(task, countryCode, source string, params map[string]any) *Run {
	return StartAt(task, countryCode, source, params, time.Now)
}

// StartAt - Start с подменяемыми часами.
func StartAt(task, countryCode, source string, params map[string]any, now func() time.Time) *Run {
	if params == nil {
		params = map[string]any{}
	}
	return &Run{
		RunID:       uuid.NewString(),
		Task:        task,
		StartTime:   now().UTC(),
		CountryCode: countryCode,
		Source:      source,
		Parameters:  params,
		Errors:      []ErrorEntry{},
		now:         now,
	}
}

// AddError записывает ошибку с её классом (ParseError, FatalError ...).
func (r *Run) AddError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, ErrorEntry{
		Timestamp: r.now().UTC(),
		Error:     err.Error(),
		Type:      errs.Kind(err),
	})
}

// Finish фиксирует итог и счётчики.
func (r *Run) Finish(status models.RunStatus, fetched, inserted, duplicates, errCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := r.now().UTC()
	r.EndTime = &end
	r.DurationSeconds = end.Sub(r.StartTime).Seconds()
	r.Status = status
	r.RecordsFetched = fetched
	r.RecordsInserted = inserted
	r.RecordsDuplicates = duplicates
	r.RecordsErrors = errCount
}

// FileName - scrape_{YYYYMMDD_HHMMSS}_{первые 8 символов run_id}.json
func (r *Run) FileName() string {
	id := r.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("scrape_%s_%s.json", r.StartTime.Format(fileTimeLayout), id)
}

// Write сохраняет журнал в dir и возвращает путь к файлу.
func (r *Run) Write(dir string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run log dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run log: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write run log: %w", err)
	}
	return path, nil
}
