package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tendly/db"
	"tendly/internal/export"
	"tendly/internal/logger"
	"tendly/models"
)

const dateLayout = "2006-01-02"

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams парсит limit и offset из query.
// Неверные значения игнорируются, границы проверяет хранилище.
func parsePaginationParams(r *http.Request) PaginationParams {
	var params PaginationParams
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		params.Offset = o
	}
	return params
}

// countryParam - код страны из query в верхнем регистре, пустой не ограничивает.
func countryParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country_code")))
}

// parseDate принимает YYYY-MM-DD или RFC3339. Для верхней границы
// дата без времени означает конец дня.
func parseDate(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// parseFilter собирает фильтр поиска из query
func parseFilter(r *http.Request) (models.SearchFilter, error) {
	q := r.URL.Query()
	p := parsePaginationParams(r)
	f := models.SearchFilter{
		Keyword:     strings.TrimSpace(q.Get("keyword")),
		Buyer:       strings.TrimSpace(q.Get("buyer")),
		Status:      strings.TrimSpace(q.Get("status")),
		CountryCode: countryParam(r),
		Limit:       p.Limit,
		Offset:      p.Offset,
	}

	var err error
	if f.DateFrom, err = parseDate(q.Get("date_from"), false); err != nil {
		return f, errors.New("invalid date_from: use YYYY-MM-DD")
	}
	if f.DateTo, err = parseDate(q.Get("date_to"), true); err != nil {
		return f, errors.New("invalid date_to: use YYYY-MM-DD")
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return f, errors.New("date_from must not be after date_to")
	}
	return f, nil
}

type searchResponse struct {
	Items  []models.Tender `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// SearchTendersHandler возвращает тендеры по фильтрам keyword, buyer, status, датам публикации
func (h *Handler) SearchTendersHandler(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tenders, err := h.Store.SearchTenders(r.Context(), f)
	if err != nil {
		h.storeError(w, r, "Failed to search tenders", err)
		return
	}
	total, err := h.Store.CountTenders(r.Context(), f)
	if err != nil {
		h.storeError(w, r, "Failed to count tenders", err)
		return
	}

	limit := f.Limit
	if limit == 0 {
		limit = db.DefaultLimit
	}
	if limit > db.MaxLimit {
		limit = db.MaxLimit
	}
	h.writeJSON(w, searchResponse{Items: tenders, Total: total, Limit: limit, Offset: f.Offset})
}

// GetTenderHandler возвращает тендер вместе с лотами и документами
func (h *Handler) GetTenderHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := strconv.ParseInt(chi.URLParam(r, "tenderId"), 10, 64)
	if err != nil || tenderID <= 0 {
		http.Error(w, "Invalid tenderId", http.StatusBadRequest)
		return
	}

	detail, err := h.Store.GetTender(r.Context(), tenderID)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Tender not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.storeError(w, r, "Failed to get tender", err)
		return
	}
	h.writeJSON(w, detail)
}

// ExportHandler выгружает отфильтрованные тендеры файлом csv, json или xlsx.
// Больше exportMaxRows строк не отдаётся.
func (h *Handler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tenders, err := h.Store.ExportTenders(r.Context(), f, h.exportMaxRows)
	if err != nil {
		h.storeError(w, r, "Failed to export tenders", err)
		return
	}

	prefix := "tenders"
	if f.CountryCode != "" {
		prefix = strings.ToLower(f.CountryCode) + "_tenders"
	}
	name := export.FileName(prefix, format, h.now())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)

	n, err := export.Write(w, tenders, format, h.exportMaxRows)
	if err != nil {
		// заголовки уже могли уйти, остаётся только журнал
		h.log.Error("export write failed", logger.String("format", string(format)), logger.Error(err))
		return
	}
	h.log.Info("export served", logger.String("format", string(format)), logger.Int("rows", n))
}
