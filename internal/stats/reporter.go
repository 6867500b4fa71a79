package stats

import (
	"context"
	"sort"

	"github.com/mkka7944/billing-system/internal/models"

	"go.uber.org/zap"
)

// TableCounter reports the cumulative row count of one table.
type TableCounter interface {
	Table() string
	Count(ctx context.Context) (int64, error)
}

// MonthCounter reports the row count for one billing month.
type MonthCounter interface {
	CountForMonth(ctx context.Context, billMonth string) (int64, error)
}

// Report combines the per-run outcome counts with the cumulative table
// totals after the run.
type Report struct {
	Runs   []models.RunStats
	Totals map[string]int64
}

// Reporter collects and logs run statistics.
type Reporter struct {
	logger   *zap.Logger
	counters []TableCounter
}

func NewReporter(logger *zap.Logger, counters ...TableCounter) *Reporter {
	return &Reporter{
		logger:   logger,
		counters: counters,
	}
}

// Collect builds a report from the given run stats plus the current
// table totals. A counter that fails is logged and skipped; reporting
// never fails a run that already uploaded its data.
func (r *Reporter) Collect(ctx context.Context, runs ...models.RunStats) Report {
	report := Report{
		Runs:   runs,
		Totals: make(map[string]int64, len(r.counters)),
	}

	for _, c := range r.counters {
		count, err := c.Count(ctx)
		if err != nil {
			r.logger.Warn("Failed to count table rows",
				zap.String("table", c.Table()),
				zap.Error(err),
			)
			continue
		}
		report.Totals[c.Table()] = count
	}

	return report
}

// ReportMonthTotals collects and logs the cumulative row totals for
// the given billing months, so an operator can see how a month filled
// up across runs. Counter failures are logged and skipped, as in
// Collect.
func (r *Reporter) ReportMonthTotals(ctx context.Context, mc MonthCounter, months []string) map[string]int64 {
	sorted := append([]string(nil), months...)
	sort.Strings(sorted)

	totals := make(map[string]int64, len(sorted))
	for _, month := range sorted {
		count, err := mc.CountForMonth(ctx, month)
		if err != nil {
			r.logger.Warn("Failed to count bills for month",
				zap.String("bill_month", month),
				zap.Error(err),
			)
			continue
		}
		totals[month] = count
		r.logger.Info("Bill month total",
			zap.String("bill_month", month),
			zap.Int64("rows", count),
		)
	}
	return totals
}

// Log writes the report through the structured logger.
func (r *Reporter) Log(report Report) {
	for _, run := range report.Runs {
		r.logger.Info("Upload run outcome",
			zap.String("table", run.Table),
			zap.Int("synced", run.Synced),
			zap.Int("pending", run.Pending),
			zap.Int("rejected", run.Rejected),
			zap.Int("total", run.Total()),
		)
	}
	for table, total := range report.Totals {
		r.logger.Info("Table total",
			zap.String("table", table),
			zap.Int64("rows", total),
		)
	}
}
