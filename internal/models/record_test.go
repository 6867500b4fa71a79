package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney_BlankAndDashMeanZero(t *testing.T) {
	for _, in := range []string{"", "  ", "-"} {
		d, err := ParseMoney(in)
		require.NoError(t, err, "input %q", in)
		assert.True(t, d.IsZero(), "input %q", in)
	}
}

func TestParseMoney_ThousandsSeparators(t *testing.T) {
	d, err := ParseMoney("12,500")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(12500)))
}

func TestParseMoney_Invalid(t *testing.T) {
	_, err := ParseMoney("N/A")
	assert.Error(t, err)
}

func TestBillRecord_Key(t *testing.T) {
	b := &BillRecord{PSID: "P-1", BillMonth: "Nov-2025"}
	assert.Equal(t, "P-1/Nov-2025", b.Key())
}

func TestRunStats_AddAndTotal(t *testing.T) {
	s := &RunStats{Table: "bills"}
	s.Add(StateSynced)
	s.Add(StateSynced)
	s.Add(StatePendingSync)
	s.Add(StateRejected)

	assert.Equal(t, 2, s.Synced)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Rejected)
	assert.Equal(t, 4, s.Total())
}
