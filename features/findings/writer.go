package findings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Writer appends findings to dated plain-text files under the data dir:
// bare key lists for machine consumption plus detail logs for humans.
// Filenames are fixed at startup, one set per process run.
type Writer struct {
	mu sync.Mutex

	validPath       string
	validDetailPath string
	ratedPath       string
	sendPath        string
	sendDetailPath  string
}

func NewWriter(dataDir string, now time.Time) (*Writer, error) {
	stamp := now.Format("20060102")
	w := &Writer{
		validPath:       filepath.Join(dataDir, "keys", fmt.Sprintf("keys_valid_%s.txt", stamp)),
		validDetailPath: filepath.Join(dataDir, "logs", fmt.Sprintf("keys_valid_detail_%s.log", stamp)),
		ratedPath:       filepath.Join(dataDir, "keys", fmt.Sprintf("key_429_%s.txt", stamp)),
		sendPath:        filepath.Join(dataDir, "keys", fmt.Sprintf("keys_send_%s.txt", stamp)),
		sendDetailPath:  filepath.Join(dataDir, "logs", fmt.Sprintf("keys_send_detail_%s.log", stamp)),
	}

	for _, path := range []string{w.validPath, w.validDetailPath, w.ratedPath, w.sendPath, w.sendDetailPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create key dir: %w", err)
		}
	}
	return w, nil
}

// AppendValid records a confirmed key: the bare key for downstream tooling
// and a detail block with its origin.
func (w *Writer) AppendValid(f *Finding) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	detail := fmt.Sprintf("TIME: %s\nURL: %s\nUSER: %s\nTOKEN: %s\n%s\n",
		f.CreatedAt.UTC().Format(time.RFC3339), f.FileURL, f.Login, f.Token, strings.Repeat("-", 80))
	if err := appendLine(w.validDetailPath, detail); err != nil {
		return err
	}
	return appendLine(w.validPath, f.Token+"\n")
}

// AppendRateLimited records a key whose validation was throttled. These are
// kept apart from confirmed keys: they may still be live.
func (w *Writer) AppendRateLimited(f *Finding) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return appendLine(w.ratedPath, f.Token+"\n")
}

// AppendSendResults logs the per-key outcome of a sync batch.
func (w *Writer) AppendSendResults(results map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for key, status := range results {
		if err := appendLine(w.sendPath, fmt.Sprintf("%s | %s\n", key, status)); err != nil {
			return err
		}
	}
	detail := fmt.Sprintf("TIME: %s KEYS: %d\n", time.Now().UTC().Format(time.RFC3339), len(results))
	return appendLine(w.sendDetailPath, detail)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}
