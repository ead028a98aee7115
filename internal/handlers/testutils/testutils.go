// Package testutils - помощники для тестов обработчиков, вызываемых без роутера.
package testutils

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
)

// WithChiURLParams кладёт параметры пути в контекст chi, как это сделал бы роутер.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// GetWithParams - GET-запрос на target с параметрами пути chi.
func GetWithParams(target string, params map[string]string) *http.Request {
	return WithChiURLParams(httptest.NewRequest(http.MethodGet, target, nil), params)
}
