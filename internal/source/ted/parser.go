package ted

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"tendly/internal/errs"
	"tendly/internal/source"
	"tendly/models"
)

const defaultCurrency = "EUR"

// Коды типа документа (TD) -> статус.
var statusByDocType = map[string]string{
	"1": "planned",
	"2": "active",
	"3": "active",
	"4": "complete",
	"5": "active",
	"6": "complete",
	"7": "active",
	"8": "active",
	"9": "active",
}

// Коды характера контракта (NC) -> категория закупки.
var categoryByNature = map[string]string{
	"1": "works",
	"2": "supplies",
	"3": "services",
	"4": "services",
	"5": "services",
	"6": "works",
	"7": "services",
	"8": "supplies",
}

// Поля стоимости в порядке приоритета.
var valueFields = []string{"total-value", "result-value-cur-lot", "framework-value-notice", "BT-27-Lot"}

var knownCurrencies = []string{"EUR", "USD", "GBP", "PLN", "CZK", "HUF", "RON", "BGN", "HRK", "DKK", "SEK"}

// Parser разбирает уведомление TED. Поля приходят строкой, списком
// или многоязычным объектом, поэтому разбор идёт через any.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

var _ source.Parser = (*Parser)(nil)

func (p *Parser) Parse(raw json.RawMessage) (*models.NormalizedTender, error) {
	var notice map[string]any
	if err := json.Unmarshal(raw, &notice); err != nil {
		return nil, errs.Parse("malformed notice", err)
	}
	if notice == nil {
		return nil, errs.Parse("notice is null", nil)
	}

	noticeID := strings.TrimSpace(first(notice["ND"]))
	if noticeID == "" {
		noticeID = strings.TrimSpace(first(notice["publication-number"]))
	}
	if noticeID == "" {
		return nil, errs.Parse("notice has no ND", nil)
	}

	title := text(notice["TI"])
	country := first(notice["CY"])
	buyerName := text(notice["buyer-name"])
	if buyerName == "" && country != "" {
		buyerName = country + " Contracting Authority"
	}

	nature := first(notice["NC"])
	category, ok := categoryByNature[nature]
	if !ok {
		category = "services"
	}
	status, ok := statusByDocType[first(notice["TD"])]
	if !ok {
		status = "active"
	}

	published := source.ParseTime(first(notice["PD"]))
	if published == nil {
		published = source.ParseTime(first(notice["DD"]))
	}

	t := models.Tender{
		NoticeID:                noticeID,
		Title:                   title,
		Description:             title,
		Status:                  status,
		Stage:                   nature,
		PublicationDate:         published,
		TenderPeriodEnd:         source.ParseTime(first(notice["DT"])),
		BuyerName:               buyerName,
		BuyerID:                 country,
		MainProcurementCategory: category,
		ValueCurrency:           defaultCurrency,
	}

	for _, f := range valueFields {
		v, present := notice[f]
		if !present {
			continue
		}
		if amount, ok := extractAmount(v); ok {
			t.ValueAmount = &amount
			if cur := extractCurrency(v); cur != "" {
				t.ValueCurrency = cur
			}
			break
		}
	}

	return &models.NormalizedTender{
		Tender:    t,
		Lots:      []models.Lot{},
		Documents: []models.Document{},
	}, nil
}

// first - первое значение поля в виде строки.
func first(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		for _, item := range x {
			if s := first(item); s != "" {
				return s
			}
		}
		return ""
	case map[string]any:
		return text(x)
	default:
		return fmt.Sprint(x)
	}
}

// text - значение многоязычного поля, английский в приоритете,
// иначе язык по алфавиту (порядок ключей map не детерминирован).
func text(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return first(v)
	}
	if s := first(m["eng"]); s != "" {
		return s
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := first(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// extractAmount ищет сумму в числе, строке, списке или объекте.
// Нулевая сумма считается отсутствующей.
func extractAmount(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, x != 0 && !math.IsNaN(x) && !math.IsInf(x, 0)
	case string:
		cleaned := strings.NewReplacer(",", "", " ", "", "€", "", "$", "", "£", "").Replace(x)
		cleaned = strings.ToUpper(cleaned)
		for _, cur := range knownCurrencies {
			cleaned = strings.ReplaceAll(cleaned, cur, "")
		}
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case []any:
		if len(x) == 0 {
			return 0, false
		}
		return extractAmount(x[0])
	case map[string]any:
		for _, key := range []string{"value", "amount", "val"} {
			if inner, ok := x[key]; ok {
				return extractAmount(inner)
			}
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if f, ok := extractAmount(x[k]); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func extractCurrency(v any) string {
	switch x := v.(type) {
	case []any:
		if len(x) == 0 {
			return ""
		}
		return extractCurrency(x[0])
	case map[string]any:
		for _, key := range []string{"currency", "cur", "curr"} {
			if inner, ok := x[key]; ok {
				return currencyCode(first(inner))
			}
		}
	case string:
		upper := strings.ToUpper(x)
		for _, cur := range knownCurrencies {
			if strings.Contains(upper, cur) {
				return cur
			}
		}
	}
	return ""
}

// currencyCode возвращает код ISO 4217 из трёх латинских букв
// или пустую строку, тогда действует валюта по умолчанию.
func currencyCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return ""
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return s
}
