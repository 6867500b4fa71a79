package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkka7944/billing-system/internal/models"
)

// Biller list export column headers.
const (
	colBillerPSID = "Biller PSID"
	colPSID       = "PSID"
	colMonth      = "Month"
	colMonthlyFee = "Monthly Fee"
	colBalance    = "Balance"
	colPayable    = "Total Payable"
	colPaidAmount = "Paid Amount"
	colFine       = "Fine"
	colPaidDate   = "Paid Date"
)

// ReadBillerCSV reads one biller list export and returns raw bill
// candidates. Values stay untyped strings here; the classifier owns
// parsing so that a malformed row becomes a REJECTED outcome instead
// of aborting the whole file. defaultMonth is used when the export
// carries no Month column. A utf-8 BOM on the header is tolerated.
func ReadBillerCSV(path string, defaultMonth string) ([]models.BillCandidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open biller list %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse biller list %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idx := headerIndex(rows[0])
	source := filepath.Base(path)

	candidates := make([]models.BillCandidate, 0, len(rows)-1)
	seen := make(map[string]int) // survey reference -> first candidate index
	for n, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}

		psid := cell(row, idx, colBillerPSID)
		if psid == "" {
			psid = cell(row, idx, colPSID)
		}

		month := cell(row, idx, colMonth)
		if month == "" {
			month = defaultMonth
		}

		cand := models.BillCandidate{
			PSID:          NormalizeID(psid),
			SurveyID:      NormalizeID(cell(row, idx, colSurveyID)),
			BillMonth:     month,
			MonthlyFee:    cell(row, idx, colMonthlyFee),
			Arrears:       cell(row, idx, colBalance),
			AmountDue:     cell(row, idx, colPayable),
			PaidAmount:    cell(row, idx, colPaidAmount),
			Fine:          cell(row, idx, colFine),
			PaymentStatus: cell(row, idx, colStatus),
			PaidDate:      cell(row, idx, colPaidDate),
			SourceFile:    source,
			Line:          n + 2, // 1-based, after the header row
		}

		// Flag every row of a survey reference that appears more than
		// once, including the first occurrence.
		if cand.SurveyID != "" {
			if first, ok := seen[cand.SurveyID]; ok {
				cand.Duplicate = true
				candidates[first].Duplicate = true
			} else {
				seen[cand.SurveyID] = len(candidates)
			}
		}

		candidates = append(candidates, cand)
	}

	return candidates, nil
}
