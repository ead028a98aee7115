package models

import "time"

// Сущность Тендера (уникальна по notice_id + country_code)
type Tender struct {
	ID                        int64      `db:"id" json:"id"`
	NoticeID                  string     `db:"notice_id" json:"noticeId"`
	CountryCode               string     `db:"country_code" json:"countryCode"`
	OCID                      string     `db:"ocid" json:"ocid"`
	Title                     string     `db:"title" json:"title"`
	Description               string     `db:"description" json:"description"`
	Status                    string     `db:"status" json:"status"`
	Stage                     string     `db:"stage" json:"stage"`
	PublicationDate           *time.Time `db:"publication_date" json:"publicationDate"`
	TenderPeriodEnd           *time.Time `db:"tender_period_end_date" json:"tenderPeriodEndDate"`
	ValueAmount               *float64   `db:"value_amount" json:"valueAmount"`
	ValueCurrency             string     `db:"value_currency" json:"valueCurrency"`
	BuyerName                 string     `db:"buyer_name" json:"buyerName"`
	BuyerID                   string     `db:"buyer_id" json:"buyerId"`
	BuyerEmail                string     `db:"buyer_email" json:"buyerEmail"`
	BuyerAddress              string     `db:"buyer_address" json:"buyerAddress"`
	ClassificationID          string     `db:"classification_id" json:"classificationId"`
	ClassificationDescription string     `db:"classification_description" json:"classificationDescription"`
	MainProcurementCategory   string     `db:"main_procurement_category" json:"mainProcurementCategory"`
	LegalBasis                string     `db:"legal_basis" json:"legalBasis"`
	CreatedAt                 time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updatedAt"`
}

// Сущность Лота, живёт только вместе с тендером
type Lot struct {
	ID                 int64    `db:"id" json:"id"`
	TenderID           int64    `db:"tender_id" json:"tenderId"`
	LotID              string   `db:"lot_id" json:"lotId"`
	CountryCode        string   `db:"country_code" json:"countryCode"`
	Title              string   `db:"title" json:"title"`
	Description        string   `db:"description" json:"description"`
	Status             string   `db:"status" json:"status"`
	ValueAmount        *float64 `db:"value_amount" json:"valueAmount"`
	ValueCurrency      string   `db:"value_currency" json:"valueCurrency"`
	DurationDays       *int     `db:"duration_days" json:"durationDays"`
	HasRenewal         bool     `db:"has_renewal" json:"hasRenewal"`
	RenewalDescription string   `db:"renewal_description" json:"renewalDescription"`
	HasOptions         bool     `db:"has_options" json:"hasOptions"`
	OptionsDescription string   `db:"options_description" json:"optionsDescription"`
}

// Сущность Документа, живёт только вместе с тендером
type Document struct {
	ID            int64      `db:"id" json:"id"`
	TenderID      int64      `db:"tender_id" json:"tenderId"`
	DocumentID    string     `db:"document_id" json:"documentId"`
	CountryCode   string     `db:"country_code" json:"countryCode"`
	Title         string     `db:"title" json:"title"`
	DocumentType  string     `db:"document_type" json:"documentType"`
	NoticeType    string     `db:"notice_type" json:"noticeType"`
	Description   string     `db:"description" json:"description"`
	URL           string     `db:"url" json:"url"`
	Format        string     `db:"format" json:"format"`
	Language      string     `db:"language" json:"language"`
	DatePublished *time.Time `db:"date_published" json:"datePublished"`
}

// NormalizedTender - результат разбора одного уведомления источника
type NormalizedTender struct {
	Tender    Tender     `json:"tender"`
	Lots      []Lot      `json:"lots"`
	Documents []Document `json:"documents"`
}

// SetCountryCode проставляет код страны тендеру и всем дочерним записям.
func (n *NormalizedTender) SetCountryCode(code string) {
	n.Tender.CountryCode = code
	for i := range n.Lots {
		n.Lots[i].CountryCode = code
	}
	for i := range n.Documents {
		n.Documents[i].CountryCode = code
	}
}

// TenderDetail - тендер вместе с лотами и документами
type TenderDetail struct {
	Tender
	Lots      []Lot      `json:"lots"`
	Documents []Document `json:"documents"`
}

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Запись аудита запуска скрапера (только добавление)
type ScrapingLogEntry struct {
	ID                int64     `db:"id" json:"id"`
	CountryCode       string    `db:"country_code" json:"countryCode"`
	ScrapeDate        time.Time `db:"scrape_date" json:"scrapeDate"`
	Source            string    `db:"source" json:"source"`
	RecordsFetched    int       `db:"records_fetched" json:"recordsFetched"`
	RecordsInserted   int       `db:"records_inserted" json:"recordsInserted"`
	RecordsDuplicates int       `db:"records_duplicates" json:"recordsDuplicates"`
	RecordsErrors     int       `db:"records_errors" json:"recordsErrors"`
	Status            RunStatus `db:"status" json:"status"`
	ErrorMessage      string    `db:"error_message" json:"errorMessage"`
	Parameters        string    `db:"parameters" json:"parameters"`
	DurationSeconds   float64   `db:"duration_seconds" json:"durationSeconds"`
}
