package extractor

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// psidPattern matches the portal system identifier token inside a bill
// document, e.g. "PSID: 1234567890123".
var psidPattern = regexp.MustCompile(`(?i)PSID[:\s]*(\d{10,20})`)

// Result statuses for one document.
const (
	StatusSuccess   = "SUCCESS"
	StatusNotFound  = "NOT_FOUND"
	StatusAmbiguous = "AMBIGUOUS"
	StatusError     = "ERROR"
)

// Result records the outcome of parsing one bill document.
type Result struct {
	Filename    string
	PSID        string
	Status      string
	Detail      string
	ProcessedAt time.Time
}

// Failed reports whether the document contributed no identifier.
func (r Result) Failed() bool { return r.Status != StatusSuccess }

// TextReader extracts plain text from the first maxPages pages of a
// document. Swappable so tests run without real PDF fixtures.
type TextReader func(path string, maxPages int) (string, error)

// Extractor parses a directory of bill documents and produces the set
// of PSIDs that have actually been issued. A corrupt document is
// recorded as a failure and skipped; it never aborts the batch.
type Extractor struct {
	logger   *zap.Logger
	workers  int
	maxPages int
	readText TextReader
	now      func() time.Time
}

// New creates an extractor. workers bounds concurrent document parses;
// maxPages bounds how deep each document is read (the PSID sits on the
// first page of every known bill layout).
func New(logger *zap.Logger, workers, maxPages int) *Extractor {
	if workers <= 0 {
		workers = 4
	}
	if maxPages <= 0 {
		maxPages = 3
	}
	return &Extractor{
		logger:   logger,
		workers:  workers,
		maxPages: maxPages,
		readText: readPDFText,
		now:      time.Now,
	}
}

// ExtractDir walks dir recursively for *.pdf documents and extracts
// one PSID per document. It returns the evidence map (PSID -> source
// document name) and the per-document results. Re-running re-parses
// everything from scratch.
func (e *Extractor) ExtractDir(ctx context.Context, dir string) (map[string]string, []Result, error) {
	paths, err := listPDFs(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	e.logger.Info("Extracting PSIDs from bill documents",
		zap.String("dir", dir),
		zap.Int("document_count", len(paths)),
		zap.Int("workers", e.workers),
	)

	jobs := make(chan string)
	var mu sync.Mutex
	var results []Result
	var wg sync.WaitGroup

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res := e.extractOne(path)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		select {
		case <-ctx.Done():
			// Stop feeding; in-flight documents finish.
			goto done
		case jobs <- path:
		}
	}
done:
	close(jobs)
	wg.Wait()

	// Stable output ordering; processing order is irrelevant.
	sort.Slice(results, func(i, j int) bool { return results[i].Filename < results[j].Filename })

	evidence := make(map[string]string)
	failures := 0
	for _, r := range results {
		if r.Failed() {
			failures++
			continue
		}
		evidence[r.PSID] = r.Filename
	}

	e.logger.Info("PSID extraction complete",
		zap.Int("extracted", len(evidence)),
		zap.Int("failed", failures),
	)

	return evidence, results, ctx.Err()
}

// extractOne parses a single document. All failure modes fold into
// the result; only the pattern match decides success.
func (e *Extractor) extractOne(path string) Result {
	res := Result{
		Filename:    filepath.Base(path),
		ProcessedAt: e.now(),
	}

	text, err := e.readText(path, e.maxPages)
	if err != nil {
		res.Status = StatusError
		res.Detail = err.Error()
		e.logger.Warn("Failed to read bill document",
			zap.String("file", res.Filename),
			zap.Error(err),
		)
		return res
	}

	psids := distinctPSIDs(text)
	switch len(psids) {
	case 0:
		res.Status = StatusNotFound
		res.Detail = "no PSID token in document text"
	case 1:
		res.Status = StatusSuccess
		res.PSID = psids[0]
	default:
		// Two different identifiers in one document: the match is
		// ambiguous and the document is excluded from the evidence set.
		res.Status = StatusAmbiguous
		res.Detail = fmt.Sprintf("%d distinct PSID tokens in document", len(psids))
	}
	return res
}

func distinctPSIDs(text string) []string {
	var psids []string
	seen := make(map[string]struct{})
	for _, m := range psidPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		psids = append(psids, m[1])
	}
	return psids
}

func listPDFs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// readPDFText is the production TextReader. The pdf library panics on
// some malformed documents, so the recover here is part of the
// per-document failure contract.
func readPDFText(path string, maxPages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	pages := r.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(s)
	}
	return b.String(), nil
}
