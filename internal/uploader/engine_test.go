package uploader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkka7944/billing-system/internal/classifier"
	"github.com/mkka7944/billing-system/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeUpserter counts calls per batch and fails the keys it is told to.
type fakeUpserter struct {
	mu       sync.Mutex
	calls    int
	failKeys map[string]bool // any batch containing one of these keys always fails
	failAll  int             // fail the first N calls regardless of content
}

func (f *fakeUpserter) Table() string { return "bills" }

func (f *fakeUpserter) UpsertBatch(ctx context.Context, batch []models.Classified) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failAll > 0 {
		f.failAll--
		return errors.New("connection refused")
	}
	for _, rec := range batch {
		if f.failKeys[rec.Key] {
			return errors.New("constraint violation")
		}
	}
	return nil
}

// fakeAudit collects outcomes in memory.
type fakeAudit struct {
	mu   sync.Mutex
	recs []models.Classified
}

func (f *fakeAudit) Write(rec models.Classified) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeAudit) byState(state models.SyncState) []models.Classified {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Classified
	for _, r := range f.recs {
		if r.State == state {
			out = append(out, r)
		}
	}
	return out
}

func newTestEngine(audit OutcomeWriter, batchSize int) *Engine {
	e := New(zap.NewNop(), audit, batchSize, 3, 1, 2)
	e.sleep = func(time.Duration) {}
	return e
}

func syncedBills(n int) []models.Classified {
	recs := make([]models.Classified, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, models.Classified{
			Key:   string(rune('a'+i)) + "/Nov-2025",
			State: models.StateSynced,
			Bill:  &models.BillRecord{},
		})
	}
	return recs
}

func TestRunRoutesOutcomes(t *testing.T) {
	audit := &fakeAudit{}
	e := newTestEngine(audit, 500)
	up := &fakeUpserter{}

	records := syncedBills(10)
	for i := 0; i < 3; i++ {
		records = append(records, models.Classified{
			Key:    "pending",
			State:  models.StatePendingSync,
			Reason: "survey unit S-404 not yet synced",
		})
	}
	for i := 0; i < 2; i++ {
		records = append(records, models.Classified{
			Key:    "bad",
			State:  models.StateRejected,
			Reason: "missing psid",
		})
	}

	stats, err := e.Run(context.Background(), up, records)

	require.NoError(t, err)
	assert.Equal(t, "bills", stats.Table)
	assert.Equal(t, 10, stats.Synced)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 15, stats.Total())

	assert.Len(t, audit.byState(models.StateSynced), 10)
	assert.Len(t, audit.byState(models.StatePendingSync), 3)
	assert.Len(t, audit.byState(models.StateRejected), 2)
	assert.Equal(t, 1, up.calls, "10 records fit in one batch")
}

func TestRunChunksBatches(t *testing.T) {
	audit := &fakeAudit{}
	e := newTestEngine(audit, 4)
	up := &fakeUpserter{}

	stats, err := e.Run(context.Background(), up, syncedBills(10))

	require.NoError(t, err)
	assert.Equal(t, 10, stats.Synced)
	assert.Equal(t, 3, up.calls, "10 records in batches of 4")
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	audit := &fakeAudit{}
	e := New(zap.NewNop(), audit, 500, 3, 1, 1)

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	up := &fakeUpserter{failAll: 2}

	stats, err := e.Run(context.Background(), up, syncedBills(5))

	require.NoError(t, err)
	assert.Equal(t, 5, stats.Synced)
	assert.Equal(t, 0, stats.Rejected)
	assert.Equal(t, 3, up.calls)
	// Linear backoff between attempts: base, then 2x base.
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, slept)
}

func TestRunDegradesExhaustedBatch(t *testing.T) {
	audit := &fakeAudit{}
	e := newTestEngine(audit, 2)
	// Batches of 2 over 6 records; the middle batch always fails.
	records := syncedBills(6)
	up := &fakeUpserter{failKeys: map[string]bool{records[2].Key: true}}

	stats, err := e.Run(context.Background(), up, records)

	require.NoError(t, err)
	assert.Equal(t, 4, stats.Synced)
	assert.Equal(t, 2, stats.Rejected)

	rejected := audit.byState(models.StateRejected)
	require.Len(t, rejected, 2)
	assert.Contains(t, rejected[0].Reason, "batch upload failed")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	audit := &fakeAudit{}
	e := newTestEngine(audit, 1)
	up := &fakeUpserter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, up, syncedBills(50))
	assert.ErrorIs(t, err, context.Canceled)
}

// storeUpserter keeps the written rows keyed like the real table, so
// tests can assert on final table state instead of call counts.
type storeUpserter struct {
	mu   sync.Mutex
	rows map[string]models.BillRecord
}

func newStoreUpserter() *storeUpserter {
	return &storeUpserter{rows: make(map[string]models.BillRecord)}
}

func (s *storeUpserter) Table() string { return "bills" }

func (s *storeUpserter) UpsertBatch(ctx context.Context, batch []models.Classified) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range batch {
		s.rows[rec.Key] = *rec.Bill
	}
	return nil
}

func (s *storeUpserter) snapshot() map[string]models.BillRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.BillRecord, len(s.rows))
	for k, v := range s.rows {
		out[k] = v
	}
	return out
}

func TestRunReplayLeavesTableUnchanged(t *testing.T) {
	store := newStoreUpserter()
	e := newTestEngine(&fakeAudit{}, 3)

	uploadedAt := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	var records []models.Classified
	for i, psid := range []string{"1111111111", "2222222222", "3333333333", "4444444444"} {
		records = append(records, models.Classified{
			Key:   psid + "/Nov-2025",
			State: models.StateSynced,
			Bill: &models.BillRecord{
				PSID:       psid,
				BillMonth:  "Nov-2025",
				SurveyID:   "S-100",
				MonthlyFee: decimal.NewFromInt(int64(1000 + i)),
				AmountDue:  decimal.NewFromInt(int64(1000 + i)),
				UploadedAt: uploadedAt,
			},
		})
	}

	stats, err := e.Run(context.Background(), store, records)
	require.NoError(t, err)
	require.Equal(t, len(records), stats.Synced)
	first := store.snapshot()
	require.Len(t, first, len(records))

	// Same input again: same row count, same field values.
	stats, err = e.Run(context.Background(), store, records)
	require.NoError(t, err)
	assert.Equal(t, len(records), stats.Synced)
	assert.Equal(t, first, store.snapshot())
}

func TestRunPendingRecordConvergesOnceReferenceExists(t *testing.T) {
	store := newStoreUpserter()
	e := newTestEngine(&fakeAudit{}, 500)

	cand := models.BillCandidate{
		PSID:       "1234567890123",
		SurveyID:   "S-100",
		BillMonth:  "Nov-2025",
		MonthlyFee: "1200",
		AmountDue:  "1200",
	}

	// First run: the survey unit has not been uploaded yet, so the
	// bill stays pending and writes nothing.
	cls := classifier.New(classifier.NewKeySet(nil), nil)
	stats, err := e.Run(context.Background(), store, []models.Classified{cls.Classify(cand)})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Empty(t, store.rows)

	// The unit arrives; the identical candidate now resolves and lands
	// in the table.
	cls = classifier.New(classifier.NewKeySet([]string{"S-100"}), nil)
	stats, err = e.Run(context.Background(), store, []models.Classified{cls.Classify(cand)})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)
	assert.Contains(t, store.rows, "1234567890123/Nov-2025")
}

func TestRunEmptyInput(t *testing.T) {
	audit := &fakeAudit{}
	e := newTestEngine(audit, 500)
	up := &fakeUpserter{}

	stats, err := e.Run(context.Background(), up, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total())
	assert.Equal(t, 0, up.calls)
}
