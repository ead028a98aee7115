// Package synthetic генерирует правдоподобные OCDS-релизы для демо-режима.
// Релизы проходят тот же путь, что и данные Find a Tender: ocds.Parser и хранилище.
package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"tendly/internal/errs"
	"tendly/internal/source"
)

const (
	MaxPageSize  = 100
	DefaultTotal = 500
	DefaultSeed  = 42
)

var (
	statuses   = []string{"planned", "active", "complete", "cancelled", "unsuccessful"}
	stages     = []string{"planning", "tender", "award"}
	categories = []string{"goods", "services", "works"}
	legalBases = []string{"32014L0024", "32014L0025", "2023/54"}

	authorities = []string{
		"Department for Education", "Ministry of Defence", "Home Office",
		"Department of Health and Social Care", "HM Treasury", "Cabinet Office",
		"Department for Transport", "NHS England", "Greater London Authority",
		"Manchester City Council", "Birmingham City Council", "Leeds City Council",
		"Liverpool City Council", "Bristol City Council", "Newcastle City Council",
		"Sheffield City Council", "Police Service of Scotland", "Welsh Government",
		"Scottish Government", "Northern Ireland Executive",
	}

	cpvCodes = [][2]string{
		{"09000000", "Petroleum products, fuel, electricity and other sources of energy"},
		{"15000000", "Food, beverages, tobacco and related products"},
		{"30000000", "Office and computing machinery, equipment and supplies"},
		{"33000000", "Medical equipments, pharmaceuticals and personal care products"},
		{"34000000", "Transport equipment and auxiliary products to transportation"},
		{"45000000", "Construction work"},
		{"48000000", "Software package and information systems"},
		{"50000000", "Repair and maintenance services"},
		{"60000000", "Transport services"},
		{"71000000", "Architectural, construction, engineering services"},
		{"72000000", "IT services: consulting, software development"},
		{"79000000", "Business services: law, marketing, consulting"},
		{"80000000", "Education and training services"},
		{"85000000", "Health and social work services"},
		{"90000000", "Sewage, refuse, cleaning and environmental services"},
	}

	titleTemplates = []string{
		"Supply and Delivery of %s", "Maintenance and Support for %s",
		"Installation of %s", "Procurement of %s",
	}
	products = []string{
		"IT Equipment", "Medical Supplies", "Office Furniture", "Vehicles",
		"Catering Equipment", "Security Systems", "Software Licenses", "Laboratory Equipment",
	}
	documentTypes = []string{"tenderNotice", "technicalSpecifications", "contractDraft", "evaluationCriteria"}
)

type Config struct {
	// Total - сколько релизов всего отдаст генератор
	Total int
	Seed  uint64
	Now   func() time.Time
}

// Generator реализует source.Fetcher. Релиз с номером i всегда одинаков
// для одного Seed, поэтому повторная загрузка даёт дубликаты, а не новые записи.
type Generator struct {
	cfg Config
}

func New(cfg Config) *Generator {
	if cfg.Total <= 0 {
		cfg.Total = DefaultTotal
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{cfg: cfg}
}

// Fetch отдаёт страницу релизов; курсор - смещение от начала.
func (g *Generator) Fetch(ctx context.Context, params source.FetchParams) (*source.Page, error) {
	if err := params.Validate(); err != nil {
		return nil, errs.Fatal("generate releases", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	offset := 0
	if params.Cursor != "" {
		n, err := strconv.Atoi(params.Cursor)
		if err != nil || n < 0 {
			return nil, errs.Fatal("generate releases", fmt.Errorf("invalid cursor %q", params.Cursor))
		}
		offset = n
	}

	end := offset + source.ClampLimit(params.Limit, MaxPageSize)
	if end > g.cfg.Total {
		end = g.cfg.Total
	}

	now := g.cfg.Now().UTC()
	page := &source.Page{}
	for i := offset; i < end; i++ {
		raw, err := json.Marshal(g.Release(i, now))
		if err != nil {
			return nil, errs.Fatal("encode release", err)
		}
		page.Records = append(page.Records, raw)
	}
	if end < g.cfg.Total {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// Release строит i-й релиз в формате OCDS.
func (g *Generator) Release(i int, now time.Time) map[string]any {
	f := gofakeit.New(g.cfg.Seed + uint64(i))

	year := f.IntRange(2023, 2025)
	noticeID := fmt.Sprintf("%06d-%d", i+1, year)
	published := now.AddDate(0, 0, -f.IntRange(0, 365)).Truncate(time.Second)
	cpv := cpvCodes[f.IntRange(0, len(cpvCodes)-1)]
	buyerID := fmt.Sprintf("GB-GOV-%d", f.IntRange(1000, 9999))
	buyerName := f.RandomString(authorities)

	tender := map[string]any{
		"id":                      noticeID,
		"title":                   fmt.Sprintf(f.RandomString(titleTemplates), f.RandomString(products)),
		"description":             f.Sentence(20),
		"status":                  f.RandomString(statuses),
		"mainProcurementCategory": f.RandomString(categories),
		"value":                   map[string]any{"amount": money(f, 10000, 10000000), "currency": "GBP"},
		"classification":          map[string]any{"scheme": "CPV", "id": cpv[0], "description": cpv[1]},
		"legalBasis":              map[string]any{"id": f.RandomString(legalBases)},
		"tenderPeriod":            map[string]any{"endDate": published.AddDate(0, 0, f.IntRange(14, 60)).Format(time.RFC3339)},
	}

	if f.IntRange(1, 10) <= 3 {
		count := f.IntRange(1, 3)
		lots := make([]map[string]any, 0, count)
		for n := 1; n <= count; n++ {
			lots = append(lots, map[string]any{
				"id":             strconv.Itoa(n),
				"title":          fmt.Sprintf("Lot %d", n),
				"description":    f.Sentence(12),
				"status":         "active",
				"value":          map[string]any{"amount": money(f, 5000, 1000000), "currency": "GBP"},
				"contractPeriod": map[string]any{"durationInDays": f.IntRange(90, 1095)},
				"hasRenewal":     f.IntRange(0, 1) == 1,
				"hasOptions":     f.IntRange(0, 1) == 1,
			})
		}
		tender["lots"] = lots
	}

	if f.IntRange(1, 10) <= 5 {
		count := f.IntRange(1, 3)
		docs := make([]map[string]any, 0, count)
		for n := 1; n <= count; n++ {
			docs = append(docs, map[string]any{
				"id":            fmt.Sprintf("%s-doc-%d", noticeID, n),
				"title":         f.Sentence(4),
				"documentType":  f.RandomString(documentTypes),
				"url":           fmt.Sprintf("https://www.find-tender.service.gov.uk/Notice/%s/doc/%d", noticeID, n),
				"format":        "application/pdf",
				"language":      "en",
				"datePublished": published.Format(time.RFC3339),
			})
		}
		tender["documents"] = docs
	}

	email := f.Email()
	address := map[string]any{
		"streetAddress": f.Street(),
		"locality":      f.City(),
		"postalCode":    f.Zip(),
		"countryName":   "United Kingdom",
	}
	buyer := map[string]any{
		"id":           buyerID,
		"name":         buyerName,
		"roles":        []string{"buyer"},
		"contactPoint": map[string]any{"email": email},
		"address":      address,
	}

	return map[string]any{
		"id":      noticeID,
		"ocid":    fmt.Sprintf("ocds-h6vhtk-%06x", f.IntRange(0, 0xFFFFFF)),
		"date":    published.Format(time.RFC3339),
		"tag":     []string{f.RandomString(stages)},
		"tender":  tender,
		"buyer":   map[string]any{"id": buyerID, "name": buyerName},
		"parties": []map[string]any{buyer},
	}
}

// money - сумма с точностью до пенни.
func money(f *gofakeit.Faker, lo, hi float64) float64 {
	return float64(int64(f.Float64Range(lo, hi)*100)) / 100
}

var _ source.Fetcher = (*Generator)(nil)
