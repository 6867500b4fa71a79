package ingest

import (
	"fmt"
	"strings"

	"github.com/mkka7944/billing-system/internal/models"

	"github.com/xuri/excelize/v2"
)

// Survey master export column headers. The field app exports these
// verbatim; rows missing optional columns are tolerated.
const (
	colSurveyID        = "Survey ID"
	colSurveyorName    = "Surveyor Name"
	colSurveyTimestamp = "Survey Timestamp"
	colTehsil          = "Tehsil"
	colUnionCouncil    = "Union Council"
	colType            = "Type"
	colLevel           = "Level"
	colName            = "Name"
	colMobile          = "Mobile Num"
	colAddress         = "Address"
	colGPS             = "GPS Coordinates"
	colStatus          = "Status"
)

// ReadSurveyWorkbook reads one survey master .xlsx export and returns
// its units. Every cell is treated as text so phone numbers and IDs
// survive without float artifacts. Rows without a survey identifier
// are returned too; the classifier rejects them with a reason.
func ReadSurveyWorkbook(path string) ([]models.SurveyUnit, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idx := headerIndex(rows[0])

	units := make([]models.SurveyUnit, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}

		lat, lng := SplitGPS(cell(row, idx, colGPS))
		unit := models.SurveyUnit{
			SurveyID:        NormalizeID(cell(row, idx, colSurveyID)),
			SurveyorName:    cell(row, idx, colSurveyorName),
			SurveyTimestamp: cell(row, idx, colSurveyTimestamp),
			CityDistrict:    cell(row, idx, colTehsil),
			UCName:          cell(row, idx, colUnionCouncil),
			UnitType:        cell(row, idx, colType),
			SurveyCategory:  cell(row, idx, colLevel),
			ConsumerName:    cell(row, idx, colName),
			Mobile:          cell(row, idx, colMobile),
			Address:         cell(row, idx, colAddress),
			GPSLat:          lat,
			GPSLng:          lng,
			IsActive:        parseActive(cell(row, idx, colStatus)),
		}
		units = append(units, unit)
	}

	return units, nil
}

// parseActive maps the portal's status column to the active flag.
// Absent status means active: every freshly surveyed unit is live
// until the portal deactivates it.
func parseActive(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "false", "inactive", "disabled":
		return false
	default:
		return true
	}
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
