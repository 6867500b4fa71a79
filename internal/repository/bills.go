package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mkka7944/billing-system/internal/models"

	"go.uber.org/zap"
)

// BillRepository owns all writes to the bills table.
type BillRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBillRepository creates a new bill repository.
func NewBillRepository(db *sql.DB, logger *zap.Logger) *BillRepository {
	return &BillRepository{
		db:     db,
		logger: logger,
	}
}

// Table returns the target table name.
func (r *BillRepository) Table() string { return "bills" }

// UpsertBatch writes one batch of classified bills inside a
// transaction, keyed on (psid, bill_month). A re-submitted bill
// overwrites the matching row (last write wins); blind inserts that
// would duplicate arrears or payment history cannot happen. No
// deletes are ever issued.
func (r *BillRepository) UpsertBatch(ctx context.Context, batch []models.Classified) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bills (
			psid,
			bill_month,
			survey_id,
			monthly_fee,
			arrears,
			amount_due,
			paid_amount,
			fine,
			payment_status,
			paid_date,
			uploaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (psid, bill_month)
		DO UPDATE SET survey_id = EXCLUDED.survey_id,
		              monthly_fee = EXCLUDED.monthly_fee,
		              arrears = EXCLUDED.arrears,
		              amount_due = EXCLUDED.amount_due,
		              paid_amount = EXCLUDED.paid_amount,
		              fine = EXCLUDED.fine,
		              payment_status = EXCLUDED.payment_status,
		              paid_date = EXCLUDED.paid_date,
		              uploaded_at = EXCLUDED.uploaded_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		bill := rec.Bill
		if bill == nil {
			return fmt.Errorf("record %s has no bill payload", rec.Key)
		}
		if _, err := stmt.ExecContext(ctx,
			bill.PSID,
			bill.BillMonth,
			nullString(bill.SurveyID),
			bill.MonthlyFee,
			bill.Arrears,
			bill.AmountDue,
			bill.PaidAmount,
			bill.Fine,
			string(bill.PaymentStatus),
			bill.PaidDate,
			bill.UploadedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert bill %s: %w", rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

// Count returns the cumulative row count of the bills table.
func (r *BillRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bills: %w", err)
	}
	return count, nil
}

// CountForMonth returns how many bills exist for one billing month.
func (r *BillRepository) CountForMonth(ctx context.Context, billMonth string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bills WHERE bill_month = $1`, billMonth,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bills for %s: %w", billMonth, err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
