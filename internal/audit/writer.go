package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mkka7944/billing-system/internal/models"
)

const lineTimeLayout = "2006-01-02 15:04:05"

// Writer appends one line per record outcome to a per-state log file.
// The files are append-only so consecutive runs accumulate a history,
// matching how operators review pending and rejected records.
type Writer struct {
	mu    sync.Mutex
	files map[models.SyncState]*os.File
	now   func() time.Time
}

// NewWriter opens the three outcome logs under dir, creating the
// directory if needed. An unopenable log file is fatal: a run whose
// rejects cannot be recorded must not proceed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}

	names := map[models.SyncState]string{
		models.StateSynced:      "synced_log.txt",
		models.StatePendingSync: "pending_sync_log.txt",
		models.StateRejected:    "error_log.txt",
	}

	w := &Writer{
		files: make(map[models.SyncState]*os.File, len(names)),
		now:   time.Now,
	}
	for state, name := range names {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to open audit log %s: %w", name, err)
		}
		w.files[state] = f
	}

	return w, nil
}

// Write records one classified outcome.
func (w *Writer) Write(rec models.Classified) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[rec.State]
	if !ok {
		return fmt.Errorf("no audit log for state %s", rec.State)
	}

	line := w.now().Format(lineTimeLayout) + " | " + rec.Key
	if rec.Reason != "" {
		line += " | " + rec.Reason
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append audit line: %w", err)
	}
	return nil
}

// Close closes every open log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for state, f := range w.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.files, state)
	}
	return firstErr
}
