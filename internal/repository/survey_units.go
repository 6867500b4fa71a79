package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mkka7944/billing-system/internal/models"

	"go.uber.org/zap"
)

// idFetchChunk is the page size for reference key downloads.
const idFetchChunk = 1000

// SurveyUnitRepository owns all writes to the survey_units table.
type SurveyUnitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSurveyUnitRepository creates a new survey unit repository.
func NewSurveyUnitRepository(db *sql.DB, logger *zap.Logger) *SurveyUnitRepository {
	return &SurveyUnitRepository{
		db:     db,
		logger: logger,
	}
}

// Table returns the target table name.
func (r *SurveyUnitRepository) Table() string { return "survey_units" }

// UpsertBatch writes one batch of classified survey units inside a
// transaction. The upsert is keyed on survey_id: re-running the same
// batch leaves the table unchanged, and a re-survey overwrites every
// field except the key. No deletes are ever issued.
func (r *SurveyUnitRepository) UpsertBatch(ctx context.Context, batch []models.Classified) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO survey_units (
			survey_id,
			surveyor_name,
			survey_timestamp,
			city_district,
			uc_name,
			unit_type,
			survey_category,
			consumer_name,
			mobile,
			address,
			gps_lat,
			gps_lng,
			is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (survey_id)
		DO UPDATE SET surveyor_name = EXCLUDED.surveyor_name,
		              survey_timestamp = EXCLUDED.survey_timestamp,
		              city_district = EXCLUDED.city_district,
		              uc_name = EXCLUDED.uc_name,
		              unit_type = EXCLUDED.unit_type,
		              survey_category = EXCLUDED.survey_category,
		              consumer_name = EXCLUDED.consumer_name,
		              mobile = EXCLUDED.mobile,
		              address = EXCLUDED.address,
		              gps_lat = EXCLUDED.gps_lat,
		              gps_lng = EXCLUDED.gps_lng,
		              is_active = EXCLUDED.is_active
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		unit := rec.Unit
		if unit == nil {
			return fmt.Errorf("record %s has no survey unit payload", rec.Key)
		}
		if _, err := stmt.ExecContext(ctx,
			unit.SurveyID,
			unit.SurveyorName,
			unit.SurveyTimestamp,
			unit.CityDistrict,
			unit.UCName,
			unit.UnitType,
			unit.SurveyCategory,
			unit.ConsumerName,
			unit.Mobile,
			unit.Address,
			unit.GPSLat,
			unit.GPSLng,
			unit.IsActive,
		); err != nil {
			return fmt.Errorf("failed to upsert survey unit %s: %w", unit.SurveyID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

// FetchSurveyIDs downloads the full reference key set in pages, so the
// classifier can resolve references without a round trip per record.
func (r *SurveyUnitRepository) FetchSurveyIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT survey_id
		FROM survey_units
		ORDER BY survey_id
		LIMIT $1 OFFSET $2
	`

	var ids []string
	for offset := 0; ; offset += idFetchChunk {
		rows, err := r.db.QueryContext(ctx, query, idFetchChunk, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to query survey ids: %w", err)
		}

		fetched := 0
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan survey id: %w", err)
			}
			ids = append(ids, id)
			fetched++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read survey ids: %w", err)
		}
		rows.Close()

		if fetched < idFetchChunk {
			break
		}
	}

	return ids, nil
}

// Count returns the cumulative row count of the reference table.
func (r *SurveyUnitRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM survey_units`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count survey units: %w", err)
	}
	return count, nil
}
