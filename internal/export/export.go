// Package export сериализует отфильтрованные тендеры в CSV, JSON или XLSX.
// Лоты и документы в выгрузку не попадают, покупатель и стоимость - плоскими колонками.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tendly/db"
	"tendly/models"
)

// DefaultMaxRows - предел строк выгрузки по умолчанию, общий с хранилищем
const DefaultMaxRows = db.DefaultExportRows

const sheetName = "Tenders"

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	case "excel":
		return FormatXLSX, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q: use csv, json or xlsx", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// FileName - например uk_tenders_20240305_101500.csv
func FileName(prefix string, f Format, at time.Time) string {
	if prefix == "" {
		prefix = "tenders"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, at.UTC().Format("20060102_150405"), f)
}

// Columns - порядок колонок во всех форматах.
var Columns = []string{
	"notice_id", "country_code", "ocid", "title", "description", "status", "stage",
	"publication_date", "tender_period_end_date", "value_amount", "value_currency",
	"buyer_name", "buyer_id", "buyer_email", "buyer_address",
	"classification_id", "classification_description", "main_procurement_category", "legal_basis",
}

type row struct {
	NoticeID                  string   `json:"notice_id"`
	CountryCode               string   `json:"country_code"`
	OCID                      string   `json:"ocid"`
	Title                     string   `json:"title"`
	Description               string   `json:"description"`
	Status                    string   `json:"status"`
	Stage                     string   `json:"stage"`
	PublicationDate           *string  `json:"publication_date"`
	TenderPeriodEnd           *string  `json:"tender_period_end_date"`
	ValueAmount               *float64 `json:"value_amount"`
	ValueCurrency             string   `json:"value_currency"`
	BuyerName                 string   `json:"buyer_name"`
	BuyerID                   string   `json:"buyer_id"`
	BuyerEmail                string   `json:"buyer_email"`
	BuyerAddress              string   `json:"buyer_address"`
	ClassificationID          string   `json:"classification_id"`
	ClassificationDescription string   `json:"classification_description"`
	MainProcurementCategory   string   `json:"main_procurement_category"`
	LegalBasis                string   `json:"legal_basis"`
}

func toRow(t models.Tender) row {
	return row{
		NoticeID:                  t.NoticeID,
		CountryCode:               t.CountryCode,
		OCID:                      t.OCID,
		Title:                     t.Title,
		Description:               t.Description,
		Status:                    t.Status,
		Stage:                     t.Stage,
		PublicationDate:           formatTime(t.PublicationDate),
		TenderPeriodEnd:           formatTime(t.TenderPeriodEnd),
		ValueAmount:               t.ValueAmount,
		ValueCurrency:             t.ValueCurrency,
		BuyerName:                 t.BuyerName,
		BuyerID:                   t.BuyerID,
		BuyerEmail:                t.BuyerEmail,
		BuyerAddress:              t.BuyerAddress,
		ClassificationID:          t.ClassificationID,
		ClassificationDescription: t.ClassificationDescription,
		MainProcurementCategory:   t.MainProcurementCategory,
		LegalBasis:                t.LegalBasis,
	}
}

// values - ячейки строки в порядке Columns; nil для пустых дат и сумм.
func (r row) values() []any {
	return []any{
		r.NoticeID, r.CountryCode, r.OCID, r.Title, r.Description, r.Status, r.Stage,
		strOrNil(r.PublicationDate), strOrNil(r.TenderPeriodEnd), floatOrNil(r.ValueAmount), r.ValueCurrency,
		r.BuyerName, r.BuyerID, r.BuyerEmail, r.BuyerAddress,
		r.ClassificationID, r.ClassificationDescription, r.MainProcurementCategory, r.LegalBasis,
	}
}

func (r row) cells() []string {
	vals := r.values()
	out := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = x
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return out
}

// Write пишет не больше maxRows тендеров в w и возвращает число записанных строк.
// Пустой набор даёт корректный файл с заголовками.
func Write(w io.Writer, tenders []models.Tender, f Format, maxRows int) (int, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if len(tenders) > maxRows {
		tenders = tenders[:maxRows]
	}
	rows := make([]row, len(tenders))
	for i, t := range tenders {
		rows[i] = toRow(t)
	}

	var err error
	switch f {
	case FormatCSV:
		err = writeCSV(w, rows)
	case FormatJSON:
		err = writeJSON(w, rows)
	case FormatXLSX:
		err = writeXLSX(w, rows)
	default:
		err = fmt.Errorf("unsupported export format %q", f)
	}
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func writeCSV(w io.Writer, rows []row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, rows []row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeXLSX(w io.Writer, rows []row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := r.values()
		if err := f.SetSheetRow(sheetName, cell, &vals); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
