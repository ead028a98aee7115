package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tendly/models"
)

// UpsertResult - итог записи одного тендера
type UpsertResult struct {
	TenderID int64
	// Inserted - true для новой строки, false для обновления существующей
	Inserted bool
}

const tenderColumns = `notice_id, country_code, ocid, title, description, status, stage,
            publication_date, tender_period_end_date, value_amount, value_currency,
            buyer_name, buyer_id, buyer_email, buyer_address,
            classification_id, classification_description, main_procurement_category, legal_basis`

const insertTenderQuery = `
        INSERT INTO tenders (` + tenderColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
        ON CONFLICT (notice_id, country_code) DO NOTHING
        RETURNING id`

const updateTenderQuery = `
        UPDATE tenders
        SET ocid=$3, title=$4, description=$5, status=$6, stage=$7,
            publication_date=$8, tender_period_end_date=$9, value_amount=$10, value_currency=$11,
            buyer_name=$12, buyer_id=$13, buyer_email=$14, buyer_address=$15,
            classification_id=$16, classification_description=$17, main_procurement_category=$18,
            legal_basis=$19, updated_at=NOW()
        WHERE notice_id=$1 AND country_code=$2
        RETURNING id`

const insertLotsQuery = `
        INSERT INTO lots
            (tender_id, lot_id, country_code, title, description, status, value_amount, value_currency,
             duration_days, has_renewal, renewal_description, has_options, options_description)
        VALUES
            (:tender_id, :lot_id, :country_code, :title, :description, :status, :value_amount, :value_currency,
             :duration_days, :has_renewal, :renewal_description, :has_options, :options_description)`

const insertDocumentsQuery = `
        INSERT INTO documents
            (tender_id, document_id, country_code, title, document_type, notice_type, description,
             url, format, language, date_published)
        VALUES
            (:tender_id, :document_id, :country_code, :title, :document_type, :notice_type, :description,
             :url, :format, :language, :date_published)`

// UpsertTender вставляет тендер или обновляет существующий по (notice_id, country_code)
// и заменяет его лоты и документы. Всё в одной транзакции.
func (s *Storage) UpsertTender(ctx context.Context, nt *models.NormalizedTender) (UpsertResult, error) {
	t := &nt.Tender
	if t.NoticeID == "" || t.CountryCode == "" {
		return UpsertResult{}, errors.New("tender must have notice_id and country_code")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op после Commit

	args := []interface{}{
		t.NoticeID, t.CountryCode, t.OCID, t.Title, t.Description, t.Status, t.Stage,
		t.PublicationDate, t.TenderPeriodEnd, t.ValueAmount, t.ValueCurrency,
		t.BuyerName, t.BuyerID, t.BuyerEmail, t.BuyerAddress,
		t.ClassificationID, t.ClassificationDescription, t.MainProcurementCategory, t.LegalBasis,
	}

	res := UpsertResult{Inserted: true}
	err = tx.QueryRowxContext(ctx, insertTenderQuery, args...).Scan(&res.TenderID)
	if errors.Is(err, sql.ErrNoRows) {
		// конфликт ключа: строка уже есть
		res.Inserted = false
		err = tx.QueryRowxContext(ctx, updateTenderQuery, args...).Scan(&res.TenderID)
	}
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert tender %s/%s: %w", t.CountryCode, t.NoticeID, err)
	}

	if !res.Inserted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM lots WHERE tender_id=$1`, res.TenderID); err != nil {
			return UpsertResult{}, fmt.Errorf("delete lots: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE tender_id=$1`, res.TenderID); err != nil {
			return UpsertResult{}, fmt.Errorf("delete documents: %w", err)
		}
	}

	if len(nt.Lots) > 0 {
		for i := range nt.Lots {
			nt.Lots[i].TenderID = res.TenderID
			nt.Lots[i].CountryCode = t.CountryCode
		}
		if _, err := tx.NamedExecContext(ctx, insertLotsQuery, nt.Lots); err != nil {
			return UpsertResult{}, fmt.Errorf("insert lots: %w", err)
		}
	}

	if len(nt.Documents) > 0 {
		for i := range nt.Documents {
			nt.Documents[i].TenderID = res.TenderID
			nt.Documents[i].CountryCode = t.CountryCode
		}
		if _, err := tx.NamedExecContext(ctx, insertDocumentsQuery, nt.Documents); err != nil {
			return UpsertResult{}, fmt.Errorf("insert documents: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}
	t.ID = res.TenderID
	return res, nil
}

// GetTender возвращает тендер вместе с лотами и документами.
func (s *Storage) GetTender(ctx context.Context, id int64) (*models.TenderDetail, error) {
	d := &models.TenderDetail{}
	err := s.db.GetContext(ctx, &d.Tender, `SELECT * FROM tenders WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Lots = []models.Lot{}
	if err := s.db.SelectContext(ctx, &d.Lots, `SELECT * FROM lots WHERE tender_id=$1 ORDER BY id`, id); err != nil {
		return nil, err
	}
	d.Documents = []models.Document{}
	if err := s.db.SelectContext(ctx, &d.Documents, `SELECT * FROM documents WHERE tender_id=$1 ORDER BY id`, id); err != nil {
		return nil, err
	}
	return d, nil
}
