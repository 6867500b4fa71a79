package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBillerCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "biller.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadBillerCSV(t *testing.T) {
	// Header carries a utf-8 BOM, as the portal exports do.
	path := writeBillerCSV(t, "\ufeff"+
		"Biller PSID,Survey ID,Month,Monthly Fee,Balance,Total Payable,Paid Amount,Fine,Status,Paid Date\n"+
		"1234567890123,S-100,Nov-2025,\"1,200\",-,1200,0,0,UNPAID,\n"+
		"9876543210987,S-200.0,Nov-2025,500,100,600,600,0,PAID,2025-11-10\n")

	cands, err := ReadBillerCSV(path, "")
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "1234567890123", cands[0].PSID)
	assert.Equal(t, "S-100", cands[0].SurveyID)
	assert.Equal(t, "Nov-2025", cands[0].BillMonth)
	assert.Equal(t, "1,200", cands[0].MonthlyFee)
	assert.Equal(t, "-", cands[0].Arrears)
	assert.Equal(t, "biller.csv", cands[0].SourceFile)
	assert.Equal(t, 2, cands[0].Line)
	assert.False(t, cands[0].Duplicate)

	// ID normalization applies to the survey reference too.
	assert.Equal(t, "S-200", cands[1].SurveyID)
	assert.Equal(t, "2025-11-10", cands[1].PaidDate)
}

func TestReadBillerCSV_DefaultMonth(t *testing.T) {
	path := writeBillerCSV(t,
		"Biller PSID,Survey ID,Monthly Fee,Balance,Total Payable\n"+
			"111,S-1,100,0,100\n")

	cands, err := ReadBillerCSV(path, "Dec-2025")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Dec-2025", cands[0].BillMonth)
}

func TestReadBillerCSV_FlagsDuplicateReferences(t *testing.T) {
	path := writeBillerCSV(t,
		"Biller PSID,Survey ID,Month\n"+
			"111,S-1,Nov-2025\n"+
			"222,S-2,Nov-2025\n"+
			"333,S-1,Nov-2025\n")

	cands, err := ReadBillerCSV(path, "")
	require.NoError(t, err)
	require.Len(t, cands, 3)

	assert.True(t, cands[0].Duplicate)
	assert.False(t, cands[1].Duplicate)
	assert.True(t, cands[2].Duplicate)
}

func TestReadBillerCSV_MissingFile(t *testing.T) {
	_, err := ReadBillerCSV(filepath.Join(t.TempDir(), "nope.csv"), "")
	assert.Error(t, err)
}
