// Package ocds - клиент и разборщик UK Find a Tender (OCDS release packages).
package ocds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tendly/internal/errs"
	"tendly/internal/source"
)

const (
	// MaxPageSize - максимум записей за один запрос у Find a Tender
	MaxPageSize = 100

	releasesPath = "/ocdsReleasePackages"
	dateLayout   = "2006-01-02T15:04:05"
)

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

type releasePackage struct {
	Releases []json.RawMessage `json:"releases"`
	Cursor   string            `json:"cursor"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Fetch запрашивает одну страницу релизов.
func (c *Client) Fetch(ctx context.Context, params source.FetchParams) (*source.Page, error) {
	if err := params.Validate(); err != nil {
		return nil, errs.Fatal("fetch releases", err)
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(source.ClampLimit(params.Limit, MaxPageSize)))
	if params.Stage != "" {
		q.Set("stages", params.Stage)
	}
	if params.DateFrom != nil {
		q.Set("updatedFrom", params.DateFrom.UTC().Format(dateLayout))
	}
	if params.DateTo != nil {
		q.Set("updatedTo", params.DateTo.UTC().Format(dateLayout))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	fullURL := c.cfg.BaseURL + releasesPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, errs.Fatal("build request", err)
	}
	req.Header.Set("Accept", "application/json")
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

	var pkg releasePackage
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return nil, errs.Fatal("decode release package", err)
	}

	return &source.Page{
		Records:    pkg.Releases,
		NextCursor: nextCursor(pkg),
	}, nil
}

// nextCursor: сначала поле cursor, затем параметр cursor из links.next.
func nextCursor(pkg releasePackage) string {
	if pkg.Cursor != "" {
		return pkg.Cursor
	}
	if pkg.Links.Next == "" {
		return ""
	}
	u, err := url.Parse(pkg.Links.Next)
	if err != nil {
		return ""
	}
	return u.Query().Get("cursor")
}

var _ source.Fetcher = (*Client)(nil)
