package uploader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkka7944/billing-system/internal/models"

	"go.uber.org/zap"
)

// BatchUpserter writes one batch of classified records to its table.
type BatchUpserter interface {
	Table() string
	UpsertBatch(ctx context.Context, batch []models.Classified) error
}

// OutcomeWriter records the final state of each record.
type OutcomeWriter interface {
	Write(rec models.Classified) error
}

// Engine drives one upload run: it routes non-synced records straight
// to the outcome logs, chunks the synced ones into batches, and pushes
// the batches through a worker pool with bounded retries. A batch that
// exhausts its retries degrades to REJECTED and the run continues; a
// single bad batch never aborts the rest.
type Engine struct {
	logger     *zap.Logger
	audit      OutcomeWriter
	batchSize  int
	maxRetries int
	backoff    time.Duration
	workers    int
	sleep      func(time.Duration)

	mu sync.Mutex // guards stats and audit writes
}

// New creates an upload engine. Zero values fall back to the
// production defaults (batch 500, 3 attempts, 2s backoff, 4 workers).
func New(logger *zap.Logger, audit OutcomeWriter, batchSize, maxRetries, backoffSeconds, workers int) *Engine {
	if batchSize <= 0 {
		batchSize = 500
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoffSeconds <= 0 {
		backoffSeconds = 2
	}
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		logger:     logger,
		audit:      audit,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		backoff:    time.Duration(backoffSeconds) * time.Second,
		workers:    workers,
		sleep:      time.Sleep,
	}
}

// Run uploads the synced records and logs every outcome. The returned
// stats count each input record exactly once.
func (e *Engine) Run(ctx context.Context, up BatchUpserter, records []models.Classified) (*models.RunStats, error) {
	stats := &models.RunStats{Table: up.Table()}

	var synced []models.Classified
	for _, rec := range records {
		if rec.State == models.StateSynced {
			synced = append(synced, rec)
			continue
		}
		e.record(stats, rec)
	}

	batches := chunk(synced, e.batchSize)
	e.logger.Info("Starting upload run",
		zap.String("table", up.Table()),
		zap.Int("records", len(records)),
		zap.Int("uploadable", len(synced)),
		zap.Int("batches", len(batches)),
	)

	jobs := make(chan []models.Classified)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				e.uploadBatch(ctx, up, batch, stats)
			}
		}()
	}

	for _, batch := range batches {
		select {
		case <-ctx.Done():
			goto done
		case jobs <- batch:
		}
	}
done:
	close(jobs)
	wg.Wait()

	e.logger.Info("Upload run finished",
		zap.String("table", up.Table()),
		zap.Int("synced", stats.Synced),
		zap.Int("pending", stats.Pending),
		zap.Int("rejected", stats.Rejected),
	)

	return stats, ctx.Err()
}

// uploadBatch retries a failed batch with linear backoff, then degrades
// every record in it to REJECTED once the attempts are spent.
func (e *Engine) uploadBatch(ctx context.Context, up BatchUpserter, batch []models.Classified, stats *models.RunStats) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		lastErr = up.UpsertBatch(ctx, batch)
		if lastErr == nil {
			for _, rec := range batch {
				e.record(stats, rec)
			}
			return
		}

		e.logger.Warn("Batch upload failed",
			zap.String("table", up.Table()),
			zap.Int("attempt", attempt),
			zap.Int("batch_size", len(batch)),
			zap.Error(lastErr),
		)
		if attempt < e.maxRetries {
			e.sleep(e.backoff * time.Duration(attempt))
		}
	}

	for _, rec := range batch {
		rec.State = models.StateRejected
		rec.Reason = fmt.Sprintf("batch upload failed: %v", lastErr)
		e.record(stats, rec)
	}
}

// record is the single path for counting and logging an outcome.
func (e *Engine) record(stats *models.RunStats, rec models.Classified) {
	e.mu.Lock()
	stats.Add(rec.State)
	if err := e.audit.Write(rec); err != nil {
		e.logger.Warn("Failed to write audit line",
			zap.String("key", rec.Key),
			zap.Error(err),
		)
	}
	e.mu.Unlock()
}

func chunk(records []models.Classified, size int) [][]models.Classified {
	var batches [][]models.Classified
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
