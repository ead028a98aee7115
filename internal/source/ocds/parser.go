package ocds

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tendly/internal/errs"
	"tendly/internal/source"
	"tendly/models"
)

// Структуры OCDS-релиза, только нужные поля.
type release struct {
	ID       string   `json:"id"`
	OCID     string   `json:"ocid"`
	Date     string   `json:"date"`
	Tag      []string `json:"tag"`
	Tender   *tender  `json:"tender"`
	Buyer    *party   `json:"buyer"`
	Parties  []party  `json:"parties"`
	Planning *struct {
		Documents []document `json:"documents"`
	} `json:"planning"`
}

type tender struct {
	Title                   string     `json:"title"`
	Description             string     `json:"description"`
	Status                  string     `json:"status"`
	MainProcurementCategory string     `json:"mainProcurementCategory"`
	Value                   *value     `json:"value"`
	Classification          *classRef  `json:"classification"`
	LegalBasis              *classRef  `json:"legalBasis"`
	TenderPeriod            *period    `json:"tenderPeriod"`
	Lots                    []lot      `json:"lots"`
	Documents               []document `json:"documents"`
}

type value struct {
	Amount   *number `json:"amount"`
	Currency string  `json:"currency"`
}

type classRef struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type period struct {
	EndDate        string  `json:"endDate"`
	DurationInDays *number `json:"durationInDays"`
}

type lot struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Status         string  `json:"status"`
	Value          *value  `json:"value"`
	ContractPeriod *period `json:"contractPeriod"`
	HasRenewal     bool    `json:"hasRenewal"`
	Renewal        *struct {
		Description string `json:"description"`
	} `json:"renewal"`
	HasOptions bool `json:"hasOptions"`
	Options    *struct {
		Description string `json:"description"`
	} `json:"options"`
}

type document struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	DocumentType  string `json:"documentType"`
	NoticeType    string `json:"noticeType"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	DatePublished string `json:"datePublished"`
	Format        string `json:"format"`
	Language      string `json:"language"`
}

type party struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Roles   []string `json:"roles"`
	Address *struct {
		StreetAddress string `json:"streetAddress"`
		Locality      string `json:"locality"`
		PostalCode    string `json:"postalCode"`
		CountryName   string `json:"countryName"`
	} `json:"address"`
	ContactPoint *struct {
		Email string `json:"email"`
	} `json:"contactPoint"`
}

// number принимает и число, и строку с числом ("1500.50").
// NaN и бесконечность считаются отсутствующим значением.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return n.set(s)
	}
	var raw json.Number
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	return n.set(raw.String())
}

// set разбирает s; значение вне диапазона float64 помечается как NaN.
func (n *number) set(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if errors.Is(err, strconv.ErrRange) {
		*n = number(math.NaN())
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = number(f)
	return nil
}

func (n *number) finite() bool {
	return n != nil && !math.IsNaN(float64(*n)) && !math.IsInf(float64(*n), 0)
}

func (n *number) float() *float64 {
	if !n.finite() {
		return nil
	}
	f := float64(*n)
	return &f
}

func (n *number) int() *int {
	if !n.finite() {
		return nil
	}
	i := int(*n)
	return &i
}

// Parser разбирает OCDS-релиз Find a Tender.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

var _ source.Parser = (*Parser)(nil)

func (p *Parser) Parse(raw json.RawMessage) (*models.NormalizedTender, error) {
	var r release
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errs.Parse("malformed release", err)
	}
	noticeID := strings.TrimSpace(r.ID)
	if noticeID == "" {
		return nil, errs.Parse("release has no id", nil)
	}

	out := &models.NormalizedTender{
		Tender: models.Tender{
			NoticeID:        noticeID,
			OCID:            r.OCID,
			Stage:           strings.Join(r.Tag, ","),
			PublicationDate: source.ParseTime(r.Date),
		},
		Lots:      []models.Lot{},
		Documents: []models.Document{},
	}
	t := &out.Tender

	if r.Tender != nil {
		t.Title = r.Tender.Title
		t.Description = r.Tender.Description
		t.Status = r.Tender.Status
		t.MainProcurementCategory = r.Tender.MainProcurementCategory
		if r.Tender.Value != nil {
			t.ValueAmount = r.Tender.Value.Amount.float()
			t.ValueCurrency = r.Tender.Value.Currency
		}
		if r.Tender.Classification != nil {
			t.ClassificationID = r.Tender.Classification.ID
			t.ClassificationDescription = r.Tender.Classification.Description
		}
		if r.Tender.LegalBasis != nil {
			t.LegalBasis = r.Tender.LegalBasis.ID
		}
		if r.Tender.TenderPeriod != nil {
			t.TenderPeriodEnd = source.ParseTime(r.Tender.TenderPeriod.EndDate)
		}
		out.Lots = parseLots(r.Tender.Lots)
	}

	if r.Buyer != nil {
		t.BuyerName = r.Buyer.Name
		t.BuyerID = r.Buyer.ID
	}
	applyBuyerParty(t, r.Parties)

	var docs []document
	if r.Planning != nil {
		docs = append(docs, r.Planning.Documents...)
	}
	if r.Tender != nil {
		docs = append(docs, r.Tender.Documents...)
	}
	out.Documents = parseDocuments(docs)

	return out, nil
}

// applyBuyerParty берёт email и адрес у первой стороны с ролью buyer.
func applyBuyerParty(t *models.Tender, parties []party) {
	for _, p := range parties {
		if !hasRole(p.Roles, "buyer") {
			continue
		}
		if t.BuyerName == "" {
			t.BuyerName = p.Name
		}
		if t.BuyerID == "" {
			t.BuyerID = p.ID
		}
		if p.ContactPoint != nil {
			t.BuyerEmail = p.ContactPoint.Email
		}
		if p.Address != nil {
			t.BuyerAddress = joinNonEmpty(", ",
				p.Address.StreetAddress, p.Address.Locality, p.Address.PostalCode, p.Address.CountryName)
		}
		return
	}
}

func parseLots(in []lot) []models.Lot {
	out := make([]models.Lot, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, l := range in {
		id := childID(l.ID, i)
		if seen[id] {
			continue
		}
		seen[id] = true

		m := models.Lot{
			LotID:       id,
			Title:       l.Title,
			Description: l.Description,
			Status:      l.Status,
			HasRenewal:  l.HasRenewal,
			HasOptions:  l.HasOptions,
		}
		if l.Value != nil {
			m.ValueAmount = l.Value.Amount.float()
			m.ValueCurrency = l.Value.Currency
		}
		if l.ContractPeriod != nil {
			m.DurationDays = l.ContractPeriod.DurationInDays.int()
		}
		if l.Renewal != nil {
			m.RenewalDescription = l.Renewal.Description
		}
		if l.Options != nil {
			m.OptionsDescription = l.Options.Description
		}
		out = append(out, m)
	}
	return out
}

func parseDocuments(in []document) []models.Document {
	out := make([]models.Document, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, d := range in {
		id := childID(d.ID, i)
		if seen[id] {
			continue
		}
		seen[id] = true

		out = append(out, models.Document{
			DocumentID:    id,
			Title:         d.Title,
			DocumentType:  d.DocumentType,
			NoticeType:    d.NoticeType,
			Description:   d.Description,
			URL:           d.URL,
			Format:        d.Format,
			Language:      d.Language,
			DatePublished: source.ParseTime(d.DatePublished),
		})
	}
	return out
}

// childID - идентификатор лота/документа; если его нет, берём позицию
// с префиксом, чтобы не совпасть с явным id соседа.
func childID(id string, pos int) string {
	id = strings.TrimSpace(id)
	if id != "" {
		return id
	}
	return "pos-" + strconv.Itoa(pos+1)
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
