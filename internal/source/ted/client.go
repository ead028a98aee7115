// Package ted - клиент и разборщик EU TED Search API v3.
package ted

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"tendly/internal/errs"
	"tendly/internal/source"
)

const (
	// MaxPageSize - максимум уведомлений за один запрос search API
	MaxPageSize = 250

	searchPath = "/v3/notices/search"
	dateLayout = "20060102"
)

// Fields - поля уведомления, которые запрашиваются у TED.
var Fields = []string{
	"ND", "publication-number", "PD", "DD", "TI", "CY", "TD", "NC", "DT",
	"buyer-name", "total-value", "result-value-cur-lot", "framework-value-notice", "BT-27-Lot",
}

type Config struct {
	BaseURL   string
	UserAgent string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = source.NewHTTPClient(0)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: httpClient}
}

type searchRequest struct {
	Query              string   `json:"query"`
	Fields             []string `json:"fields"`
	Limit              int      `json:"limit"`
	PaginationMode     string   `json:"paginationMode"`
	IterationNextToken string   `json:"iterationNextToken,omitempty"`
}

type searchResponse struct {
	Notices            []json.RawMessage `json:"notices"`
	TotalNoticeCount   int               `json:"totalNoticeCount"`
	IterationNextToken string            `json:"iterationNextToken"`
}

// Query собирает expert query из диапазона дат и фильтра стадии.
// Без ограничений возвращается "*".
func Query(params source.FetchParams) string {
	var clauses []string
	if params.DateFrom != nil {
		clauses = append(clauses, "PD>="+params.DateFrom.UTC().Format(dateLayout))
	}
	if params.DateTo != nil {
		clauses = append(clauses, "PD<="+params.DateTo.UTC().Format(dateLayout))
	}
	if stage := strings.TrimSpace(params.Stage); stage != "" {
		clauses = append(clauses, stage)
	}
	if len(clauses) == 0 {
		return "*"
	}
	return strings.Join(clauses, " AND ")
}

// Fetch запрашивает одну страницу уведомлений в режиме ITERATION.
func (c *Client) Fetch(ctx context.Context, params source.FetchParams) (*source.Page, error) {
	if err := params.Validate(); err != nil {
		return nil, errs.Fatal("fetch notices", err)
	}

	body, err := json.Marshal(searchRequest{
		Query:              Query(params),
		Fields:             Fields,
		Limit:              source.ClampLimit(params.Limit, MaxPageSize),
		PaginationMode:     "ITERATION",
		IterationNextToken: params.Cursor,
	})
	if err != nil {
		return nil, errs.Fatal("encode search request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Fatal("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, source.TransportError(err)
	}
	defer resp.Body.Close()

	if err := source.CheckResponse(resp); err != nil {
		return nil, err
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Fatal("decode search response", err)
	}

	next := out.IterationNextToken
	// пустая страница с токеном - всё равно конец, иначе зациклимся
	if len(out.Notices) == 0 {
		next = ""
	}
	return &source.Page{Records: out.Notices, NextCursor: next}, nil
}

var _ source.Fetcher = (*Client)(nil)
