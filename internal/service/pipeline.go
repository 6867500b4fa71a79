package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/mkka7944/billing-system/internal/audit"
	"github.com/mkka7944/billing-system/internal/cache"
	"github.com/mkka7944/billing-system/internal/classifier"
	"github.com/mkka7944/billing-system/internal/config"
	"github.com/mkka7944/billing-system/internal/database"
	"github.com/mkka7944/billing-system/internal/extractor"
	"github.com/mkka7944/billing-system/internal/ingest"
	"github.com/mkka7944/billing-system/internal/models"
	"github.com/mkka7944/billing-system/internal/repository"
	"github.com/mkka7944/billing-system/internal/stats"
	"github.com/mkka7944/billing-system/internal/uploader"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Pipeline wires the readers, classifier, repositories and upload
// engine into the operations the command line exposes.
type Pipeline struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *sql.DB
	redis    *redis.Client
	keyCache *cache.SurveyKeyCache

	unitRepo *repository.SurveyUnitRepository
	billRepo *repository.BillRepository
	auditLog *audit.Writer
	engine   *uploader.Engine
	extract  *extractor.Extractor
	reporter *stats.Reporter
}

// NewPipeline connects the backing services and assembles the pipeline.
// Postgres and the audit directory are required; Redis is optional and
// only speeds up reference key loading.
func NewPipeline(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	db, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	auditLog, err := audit.NewWriter(cfg.Audit.Dir)
	if err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to open audit logs: %w", err)
	}

	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		auditLog: auditLog,
		unitRepo: repository.NewSurveyUnitRepository(db, logger),
		billRepo: repository.NewBillRepository(db, logger),
		extract:  extractor.New(logger, cfg.Extractor.Workers, cfg.Extractor.MaxPages),
	}
	p.engine = uploader.New(logger, auditLog,
		cfg.Uploader.BatchSize,
		cfg.Uploader.MaxRetries,
		cfg.Uploader.BackoffSeconds,
		cfg.Uploader.Workers,
	)
	p.reporter = stats.NewReporter(logger, p.unitRepo, p.billRepo)

	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, key cache disabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
			client.Close()
		} else {
			p.redis = client
			p.keyCache = cache.NewSurveyKeyCache(
				cache.NewRedisKVStore(client),
				time.Duration(cfg.Cache.TTLSeconds)*time.Second,
				logger,
			)
		}
	}

	return p, nil
}

// UploadSurveyUnits reads every survey workbook from the configured
// directory and upserts the units into the reference table.
func (p *Pipeline) UploadSurveyUnits(ctx context.Context) (*models.RunStats, error) {
	paths, err := filepath.Glob(filepath.Join(p.cfg.Ingest.SurveyDir, "*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("failed to list survey workbooks: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no survey workbooks in %s", p.cfg.Ingest.SurveyDir)
	}

	var records []models.Classified
	for _, path := range paths {
		units, err := ingest.ReadSurveyWorkbook(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		p.logger.Info("Read survey workbook",
			zap.String("file", filepath.Base(path)),
			zap.Int("units", len(units)),
		)
		for _, unit := range units {
			records = append(records, classifier.ClassifyUnit(unit))
		}
	}

	runStats, err := p.engine.Run(ctx, p.unitRepo, records)
	if err != nil {
		return runStats, err
	}

	// The reference table changed; a stale key set would misclassify
	// newly uploaded units as pending on the next bills run.
	if p.keyCache != nil {
		if err := p.keyCache.Invalidate(ctx); err != nil {
			p.logger.Warn("Failed to invalidate key cache", zap.Error(err))
		}
	}

	return runStats, nil
}

// UploadBills reads every biller export from the configured directory,
// classifies each row against the reference key set and the latest
// extraction evidence, and upserts the uploadable bills.
func (p *Pipeline) UploadBills(ctx context.Context) (*models.RunStats, error) {
	keys, err := p.loadSurveyKeys(ctx)
	if err != nil {
		return nil, err
	}

	evidence := p.loadEvidence()

	paths, err := filepath.Glob(filepath.Join(p.cfg.Ingest.BillerDir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list biller exports: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no biller exports in %s", p.cfg.Ingest.BillerDir)
	}

	cls := classifier.New(classifier.NewKeySet(keys), evidence)

	var records []models.Classified
	for _, path := range paths {
		candidates, err := ingest.ReadBillerCSV(path, p.cfg.Ingest.BillMonth)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		p.logger.Info("Read biller export",
			zap.String("file", filepath.Base(path)),
			zap.Int("rows", len(candidates)),
		)
		for _, cand := range candidates {
			records = append(records, cls.Classify(cand))
		}
	}

	runStats, err := p.engine.Run(ctx, p.billRepo, records)
	if err != nil {
		return runStats, err
	}

	p.reporter.ReportMonthTotals(ctx, p.billRepo, billMonths(records))
	return runStats, nil
}

// billMonths returns the distinct billing months seen in this run.
func billMonths(records []models.Classified) []string {
	seen := make(map[string]struct{})
	var months []string
	for _, rec := range records {
		if rec.Bill == nil || rec.Bill.BillMonth == "" {
			continue
		}
		if _, ok := seen[rec.Bill.BillMonth]; ok {
			continue
		}
		seen[rec.Bill.BillMonth] = struct{}{}
		months = append(months, rec.Bill.BillMonth)
	}
	return months
}

// ExtractPSIDs scans the PDF input directory and writes the results
// CSV and summary used as evidence by later bill uploads.
func (p *Pipeline) ExtractPSIDs(ctx context.Context) error {
	evidence, results, err := p.extract.ExtractDir(ctx, p.cfg.Extractor.InputDir)
	if err != nil {
		// No input directory just means nothing has been issued yet;
		// skipping keeps a combined run moving on to the uploads.
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("PDF input directory missing, skipping extraction",
				zap.String("dir", p.cfg.Extractor.InputDir),
			)
			return nil
		}
		return err
	}

	at := time.Now()
	csvPath, err := extractor.WriteResults(p.cfg.Extractor.OutputDir, results, at)
	if err != nil {
		return err
	}
	if _, err := extractor.WriteSummary(p.cfg.Extractor.OutputDir, results, at); err != nil {
		return err
	}

	p.logger.Info("Extraction finished",
		zap.Int("documents", len(results)),
		zap.Int("psids", len(evidence)),
		zap.String("results", csvPath),
	)
	return nil
}

// ReportStats logs the given run outcomes plus the cumulative table
// totals.
func (p *Pipeline) ReportStats(ctx context.Context, runs ...models.RunStats) {
	report := p.reporter.Collect(ctx, runs...)
	p.reporter.Log(report)
}

// loadSurveyKeys returns the reference key set, from the cache when
// warm, otherwise from the database (warming the cache on the way).
func (p *Pipeline) loadSurveyKeys(ctx context.Context) ([]string, error) {
	if p.keyCache != nil {
		keys, err := p.keyCache.Load(ctx)
		if err == nil {
			return keys, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.logger.Warn("Key cache read failed, falling back to database", zap.Error(err))
		}
	}

	keys, err := p.unitRepo.FetchSurveyIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference keys: %w", err)
	}
	p.logger.Info("Loaded reference keys from database", zap.Int("keys", len(keys)))

	if p.keyCache != nil {
		if err := p.keyCache.Store(ctx, keys); err != nil {
			p.logger.Warn("Failed to warm key cache", zap.Error(err))
		}
	}
	return keys, nil
}

// loadEvidence returns the PSID evidence from the most recent
// extraction run, or nil when none exists. Missing evidence only means
// no unit can reach the issued tier this run.
func (p *Pipeline) loadEvidence() map[string]string {
	path := extractor.LatestResultsFile(p.cfg.Extractor.OutputDir)
	if path == "" {
		p.logger.Info("No extraction results found, bills stay at listed tier")
		return nil
	}

	evidence, err := extractor.LoadEvidence(path)
	if err != nil {
		p.logger.Warn("Failed to load extraction results",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}

	p.logger.Info("Loaded extraction evidence",
		zap.String("path", path),
		zap.Int("psids", len(evidence)),
	)
	return evidence
}

// Close releases the pipeline's connections and log handles.
func (p *Pipeline) Close() {
	if p.redis != nil {
		p.redis.Close()
	}
	if p.auditLog != nil {
		p.auditLog.Close()
	}
	if p.db != nil {
		database.Close(p.db)
	}
}
