package extractor

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const resultsPrefix = "psid_extraction_results_"

// WriteResults saves the per-document extraction outcomes as a CSV
// next to the summary, named with the run timestamp. The file doubles
// as the evidence input for a later bills upload.
func WriteResults(dir string, results []Result, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(dir, resultsPrefix+at.Format("20060102_150405")+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"filename", "extracted_psid", "status", "detail", "processed_at"}); err != nil {
		return "", fmt.Errorf("failed to write results header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.Filename,
			r.PSID,
			r.Status,
			r.Detail,
			r.ProcessedAt.Format("2006-01-02 15:04:05"),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write result row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush results: %w", err)
	}

	return path, nil
}

// WriteSummary saves the plain-text run summary.
func WriteSummary(dir string, results []Result, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	extracted := 0
	for _, r := range results {
		if !r.Failed() {
			extracted++
		}
	}

	var b strings.Builder
	b.WriteString("PDF PSID Extraction Summary\n")
	b.WriteString("===========================\n")
	fmt.Fprintf(&b, "Total documents: %d\n", len(results))
	fmt.Fprintf(&b, "PSIDs extracted: %d\n", extracted)
	fmt.Fprintf(&b, "Failures: %d\n", len(results)-extracted)
	fmt.Fprintf(&b, "Processed at: %s\n\n", at.Format("2006-01-02 15:04:05"))
	b.WriteString("Extracted PSIDs:\n")
	for _, r := range results {
		if r.Failed() {
			continue
		}
		fmt.Fprintf(&b, "  %s <- %s\n", r.PSID, r.Filename)
	}

	path := filepath.Join(dir, "psid_extraction_summary_"+at.Format("20060102_150405")+".txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// LatestResultsFile returns the most recent extraction results CSV in
// dir, or "" when none exists.
func LatestResultsFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), resultsPrefix) && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}

// LoadEvidence reads a results CSV back into an evidence map. Only
// successful rows contribute identifiers.
func LoadEvidence(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse results file %s: %w", path, err)
	}

	evidence := make(map[string]string)
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		if row[2] != StatusSuccess || row[1] == "" {
			continue
		}
		evidence[row[1]] = row[0]
	}
	return evidence, nil
}
