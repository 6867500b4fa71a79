package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/mkka7944/billing-system/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupUnitRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SurveyUnitRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewSurveyUnitRepository(db, logger)

	return db, mock, repo
}

func classifiedUnit(id string) models.Classified {
	return models.Classified{
		Key:   id,
		State: models.StateSynced,
		Unit: &models.SurveyUnit{
			SurveyID:        id,
			SurveyorName:    "Ali",
			SurveyTimestamp: "2025-09-14 10:22:31",
			CityDistrict:    "Sargodha",
			UCName:          "UC-12",
			UnitType:        "Barber Shop",
			SurveyCategory:  "Small",
			ConsumerName:    "Ahmed",
			Mobile:          "0300-1234567",
			Address:         "Main Bazaar",
			GPSLat:          "32.098",
			GPSLng:          "72.687",
			IsActive:        true,
		},
	}
}

func expectUnitExec(prep *sqlmock.ExpectedPrepare, rec models.Classified) {
	u := rec.Unit
	prep.ExpectExec().
		WithArgs(
			u.SurveyID, u.SurveyorName, u.SurveyTimestamp, u.CityDistrict,
			u.UCName, u.UnitType, u.SurveyCategory, u.ConsumerName,
			u.Mobile, u.Address, u.GPSLat, u.GPSLng, u.IsActive,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestSurveyUnitUpsertBatch_Success(t *testing.T) {
	db, mock, repo := setupUnitRepo(t)
	defer db.Close()

	batch := []models.Classified{classifiedUnit("S-100"), classifiedUnit("S-101")}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO survey_units`)
	expectUnitExec(prep, batch[0])
	expectUnitExec(prep, batch[1])
	mock.ExpectCommit()

	err := repo.UpsertBatch(context.Background(), batch)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyUnitUpsertBatch_ExecErrorRollsBack(t *testing.T) {
	db, mock, repo := setupUnitRepo(t)
	defer db.Close()

	batch := []models.Classified{classifiedUnit("S-100")}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO survey_units`)
	prep.ExpectExec().
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.UpsertBatch(context.Background(), batch)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "S-100")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyUnitUpsertBatch_MissingPayload(t *testing.T) {
	db, mock, repo := setupUnitRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO survey_units`)
	mock.ExpectRollback()

	err := repo.UpsertBatch(context.Background(), []models.Classified{
		{Key: "S-1", State: models.StateSynced},
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no survey unit payload")
}

func TestFetchSurveyIDs_SinglePage(t *testing.T) {
	db, mock, repo := setupUnitRepo(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"survey_id"}).
		AddRow("S-100").
		AddRow("S-101")

	mock.ExpectQuery(`SELECT survey_id`).
		WithArgs(idFetchChunk, 0).
		WillReturnRows(rows)

	ids, err := repo.FetchSurveyIDs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"S-100", "S-101"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchSurveyIDs_Paged(t *testing.T) {
	db, mock, repo := setupUnitRepo(t)
	defer db.Close()

	// A full first page forces a second fetch.
	first := sqlmock.NewRows([]string{"survey_id"})
	for i := 0; i < idFetchChunk; i++ {
		first.AddRow(fmt.Sprintf("S-%04d", i))
	}
	second := sqlmock.NewRows([]string{"survey_id"}).AddRow("S-9999")

	mock.ExpectQuery(`SELECT survey_id`).
		WithArgs(idFetchChunk, 0).
		WillReturnRows(first)
	mock.ExpectQuery(`SELECT survey_id`).
		WithArgs(idFetchChunk, idFetchChunk).
		WillReturnRows(second)

	ids, err := repo.FetchSurveyIDs(context.Background())

	require.NoError(t, err)
	assert.Len(t, ids, idFetchChunk+1)
	assert.Equal(t, "S-9999", ids[len(ids)-1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyUnitCount(t *testing.T) {
	db, mock, repo := setupUnitRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.Count(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
