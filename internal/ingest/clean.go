package ingest

import "strings"

// NormalizeID cleans an identifier read from a spreadsheet export.
// Excel round-trips sometimes save "123" as "123.0"; both forms must
// map to the same key or upserts stop being idempotent.
func NormalizeID(s string) string {
	v := strings.TrimSpace(s)
	if v == "" || strings.EqualFold(v, "nan") || strings.EqualFold(v, "none") {
		return ""
	}
	v = strings.TrimSuffix(v, ".0")
	return v
}

// SplitGPS splits a "32.098,72.687" coordinate pair into lat and lng.
// Malformed values yield empty strings; coordinates are optional.
func SplitGPS(s string) (lat, lng string) {
	parts := strings.SplitN(strings.TrimSpace(s), ",", 2)
	if len(parts) < 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// headerIndex maps normalized column headers to their position.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			continue
		}
		idx[strings.ToLower(h)] = i
	}
	return idx
}

// cell returns the column value for a row that may be shorter than the
// header (trailing empty cells are dropped by both excelize and csv).
func cell(row []string, idx map[string]int, name string) string {
	i, ok := idx[strings.ToLower(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
