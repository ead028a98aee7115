package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tendly/internal/export"
	"tendly/internal/logger"
)

// Handler оборачивает Storage для доступа к данным
type Handler struct {
	Store         StorageInterface
	log           logger.Logger
	exportMaxRows int
	now           func() time.Time
}

// NewHandler создает новый Handler. exportMaxRows <= 0 - предел по умолчанию.
func NewHandler(store StorageInterface, log logger.Logger, exportMaxRows int) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	if exportMaxRows <= 0 {
		exportMaxRows = export.DefaultMaxRows
	}
	return &Handler{Store: store, log: log, exportMaxRows: exportMaxRows, now: time.Now}
}

// Routes регистрирует маршруты /api
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ping", h.PingHandler)

	r.Get("/tenders", h.SearchTendersHandler)
	r.Get("/tenders/{tenderId}", h.GetTenderHandler)
	r.Get("/export", h.ExportHandler)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/aggregate", h.AggregateHandler)
		r.Get("/top-buyers", h.TopBuyersHandler)
		r.Get("/values", h.ValueStatsHandler)
		r.Get("/summary", h.SummaryHandler)
	})

	r.Get("/runs", h.ListRunsHandler)
}

// PingHandler отвечает "ok", если база доступна
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.log.Error("ping failed", logger.Error(err))
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// writeJSON кодирует ответ целиком до записи статуса,
// поэтому ошибка кодирования даёт 500, а не пустой 200.
func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode response", logger.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(body, '\n'))
}

// storeError пишет 500 и логирует причину; клиенту причина не отдаётся.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log.Error(msg,
		logger.String("path", r.URL.Path),
		logger.String("request_id", middleware.GetReqID(r.Context())),
		logger.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}

// RequestLogger - журнал запросов через zap вместо middleware.Logger.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("http request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", status),
				logger.Int("bytes", ww.BytesWritten()),
				logger.Duration("duration", time.Since(start)),
				logger.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
