package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"tendly/models"
)

const defaultTopBuyers = 10

// AggregateHandler - число и сумма по status, buyer или category
func (h *Handler) AggregateHandler(w http.ResponseWriter, r *http.Request) {
	groupBy := models.GroupBy(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("group_by"))))
	switch groupBy {
	case "":
		groupBy = models.GroupByStatus
	case models.GroupByStatus, models.GroupByBuyer, models.GroupByCategory:
	default:
		http.Error(w, "Invalid group_by: use status, buyer or category", http.StatusBadRequest)
		return
	}

	groups, err := h.Store.Aggregate(r.Context(), groupBy, countryParam(r))
	if err != nil {
		h.storeError(w, r, "Failed to aggregate tenders", err)
		return
	}
	h.writeJSON(w, groups)
}

// TopBuyersHandler - первые n покупателей по числу тендеров или сумме
func (h *Handler) TopBuyersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	n := defaultTopBuyers
	if s := q.Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			http.Error(w, "Invalid n: must be a positive integer", http.StatusBadRequest)
			return
		}
		n = v
	}

	orderBy := models.BuyerOrder(strings.ToLower(strings.TrimSpace(q.Get("order_by"))))
	switch orderBy {
	case "":
		orderBy = models.OrderByCount
	case models.OrderByCount, models.OrderByValue:
	default:
		http.Error(w, "Invalid order_by: use count or value", http.StatusBadRequest)
		return
	}

	buyers, err := h.Store.TopBuyers(r.Context(), n, orderBy, countryParam(r))
	if err != nil {
		h.storeError(w, r, "Failed to get top buyers", err)
		return
	}
	h.writeJSON(w, buyers)
}

func (h *Handler) ValueStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.ValueStats(r.Context(), countryParam(r))
	if err != nil {
		h.storeError(w, r, "Failed to get value statistics", err)
		return
	}
	h.writeJSON(w, stats)
}

// SummaryHandler - сводка: всего тендеров, по статусам, за последние 7 дней, покупатели
func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Statistics(r.Context(), countryParam(r))
	if err != nil {
		h.storeError(w, r, "Failed to get statistics", err)
		return
	}
	h.writeJSON(w, stats)
}

// ListRunsHandler - последние запуски загрузки из журнала аудита
func (h *Handler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	p := parsePaginationParams(r)
	runs, err := h.Store.ListRuns(r.Context(), countryParam(r), p.Limit)
	if err != nil {
		h.storeError(w, r, "Failed to list runs", err)
		return
	}
	h.writeJSON(w, runs)
}
