// Package source описывает источники уведомлений о закупках:
// клиент постраничной выборки (Fetcher) и разборщик записи (Parser).
// Реализации для конкретных API лежат в подпакетах ocds и ted.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tendly/models"
)

// ErrInvalidDateRange - DateFrom позже DateTo.
var ErrInvalidDateRange = errors.New("date_from must not be after date_to")

// FetchParams - параметры одного запроса страницы.
type FetchParams struct {
	Limit    int
	Stage    string // передаётся как есть, сервер сам отклонит неизвестное значение
	DateFrom *time.Time
	DateTo   *time.Time
	Cursor   string
}

// Validate проверяет диапазон дат.
func (p FetchParams) Validate() error {
	if p.DateFrom != nil && p.DateTo != nil && p.DateFrom.After(*p.DateTo) {
		return ErrInvalidDateRange
	}
	return nil
}

// ClampLimit приводит limit к диапазону 1..max, 0 и меньше означает max.
func ClampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

// Page - сырые записи одной страницы и курсор следующей (пустой - конец).
type Page struct {
	Records    []json.RawMessage
	NextCursor string
}

// Fetcher выполняет один сетевой запрос страницы. Повторов внутри нет:
// 429/503 возвращаются как errs.TransientError, остальное - errs.FatalError.
type Fetcher interface {
	Fetch(ctx context.Context, params FetchParams) (*Page, error)
}

// Parser переводит одну сырую запись источника в нормализованный вид.
// Запись без идентификатора уведомления - errs.ParseError.
type Parser interface {
	Parse(raw json.RawMessage) (*models.NormalizedTender, error)
}

// Source связывает клиент и разборщик одного источника.
type Source struct {
	Key     string // uk, eu, synthetic - метка в метриках
	Name    string // название API в журнале запусков
	Fetcher Fetcher
	Parser  Parser
}
