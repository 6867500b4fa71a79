package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/mkka7944/billing-system/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeCounter struct {
	table string
	count int64
	err   error
}

func (f *fakeCounter) Table() string { return f.table }

func (f *fakeCounter) Count(ctx context.Context) (int64, error) {
	return f.count, f.err
}

func TestCollect(t *testing.T) {
	r := NewReporter(zap.NewNop(),
		&fakeCounter{table: "survey_units", count: 120},
		&fakeCounter{table: "bills", count: 340},
	)

	run := models.RunStats{Table: "bills", Synced: 10, Pending: 3, Rejected: 2}
	report := r.Collect(context.Background(), run)

	assert.Equal(t, []models.RunStats{run}, report.Runs)
	assert.Equal(t, map[string]int64{
		"survey_units": 120,
		"bills":        340,
	}, report.Totals)
}

func TestCollect_CounterErrorIsSkipped(t *testing.T) {
	r := NewReporter(zap.NewNop(),
		&fakeCounter{table: "survey_units", count: 120},
		&fakeCounter{table: "bills", err: errors.New("connection refused")},
	)

	report := r.Collect(context.Background())

	assert.Equal(t, map[string]int64{"survey_units": 120}, report.Totals)
	assert.NotContains(t, report.Totals, "bills")
}

type fakeMonthCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeMonthCounter) CountForMonth(ctx context.Context, billMonth string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[billMonth], nil
}

func TestReportMonthTotals(t *testing.T) {
	r := NewReporter(zap.NewNop())
	mc := &fakeMonthCounter{counts: map[string]int64{
		"Nov-2025": 340,
		"Oct-2025": 310,
	}}

	totals := r.ReportMonthTotals(context.Background(), mc, []string{"Nov-2025", "Oct-2025"})

	assert.Equal(t, map[string]int64{
		"Nov-2025": 340,
		"Oct-2025": 310,
	}, totals)
}

func TestReportMonthTotals_CounterErrorIsSkipped(t *testing.T) {
	r := NewReporter(zap.NewNop())
	mc := &fakeMonthCounter{err: errors.New("connection refused")}

	totals := r.ReportMonthTotals(context.Background(), mc, []string{"Nov-2025"})

	assert.Empty(t, totals)
}

func TestCollect_NoCounters(t *testing.T) {
	r := NewReporter(zap.NewNop())

	report := r.Collect(context.Background())

	assert.Empty(t, report.Runs)
	assert.Empty(t, report.Totals)
}
