package checkpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"patscan/internal/clock"
	"patscan/internal/github"
)

// Skip reasons returned by ShouldSkip, logged per hit for observability.
const (
	ReasonSHADuplicate    = "sha_duplicate"
	ReasonRepoUnchanged   = "repo_unchanged"
	ReasonRepoTooOld      = "repo_too_old"
	ReasonPathBlacklisted = "path_blacklisted"
)

// FileStore persists the checkpoint to two local files: a JSON record and a
// sorted plain-text SHA list, both written atomically (write-then-rename) so
// a crash mid-save never corrupts prior progress.
type FileStore struct {
	mu sync.Mutex

	checkpointPath string
	shasPath       string
	blacklist      []string
	retention      time.Duration
	clock          clock.Clock

	cp *Checkpoint
}

type StoreConfig struct {
	Dir             string
	ScannedSHAsFile string
	PathBlacklist   []string
	RetentionDays   int
}

// NewFileStore loads existing state from disk. A missing or corrupt
// checkpoint starts from an empty, valid state rather than failing: losing
// dedup history is recoverable, refusing to start is not.
func NewFileStore(cfg StoreConfig, clk clock.Clock) (*FileStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	blacklist := make([]string, 0, len(cfg.PathBlacklist))
	for _, entry := range cfg.PathBlacklist {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			blacklist = append(blacklist, entry)
		}
	}

	s := &FileStore{
		checkpointPath: filepath.Join(cfg.Dir, "checkpoint.json"),
		shasPath:       filepath.Join(cfg.Dir, cfg.ScannedSHAsFile),
		blacklist:      blacklist,
		retention:      time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		clock:          clk,
		cp:             New(),
	}
	s.load()
	return s, nil
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.checkpointPath)
	if err == nil {
		var file checkpointFile
		if jsonErr := json.Unmarshal(data, &file); jsonErr != nil {
			slog.Warn("corrupt checkpoint file, starting from empty state", "path", s.checkpointPath, "error", jsonErr)
		} else {
			if file.LastScanTime != "" {
				if ts, tsErr := time.Parse(time.RFC3339, file.LastScanTime); tsErr == nil {
					s.cp.LastScanTime = ts
				}
			}
			for _, q := range file.ProcessedQueries {
				s.cp.ProcessedQueries[q] = struct{}{}
			}
			for _, k := range file.WaitSendBalancer {
				s.cp.PendingBalancer[k] = struct{}{}
			}
			for _, k := range file.WaitSendGPTLoad {
				s.cp.PendingGPTLoad[k] = struct{}{}
			}
		}
	} else if !os.IsNotExist(err) {
		slog.Warn("cannot read checkpoint file, starting from empty state", "path", s.checkpointPath, "error", err)
	}

	f, err := os.Open(s.shasPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cannot read scanned-sha file, starting from empty set", "path", s.shasPath, "error", err)
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.cp.ScannedSHAs[line] = struct{}{}
	}
}

func (s *FileStore) Seen(sha string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cp.ScannedSHAs[sha]
	return ok
}

func (s *FileStore) MarkSeen(sha string) {
	if sha == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.ScannedSHAs[sha] = struct{}{}
}

// ShouldSkip rejects hits that were already processed, belong to repositories
// unchanged since the last completed cycle, are older than the retention
// window, or live under a blacklisted path.
func (s *FileStore) ShouldSkip(item github.SearchItem) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cp.ScannedSHAs[item.SHA]; ok {
		return true, ReasonSHADuplicate
	}

	pushedAt := item.Repository.PushedAt
	if !pushedAt.IsZero() {
		if !s.cp.LastScanTime.IsZero() && pushedAt.Before(s.cp.LastScanTime) {
			return true, ReasonRepoUnchanged
		}
		if s.retention > 0 && s.clock.Now().Sub(pushedAt) > s.retention {
			return true, ReasonRepoTooOld
		}
	}

	lowerPath := strings.ToLower(item.Path)
	for _, entry := range s.blacklist {
		if strings.Contains(lowerPath, entry) {
			return true, ReasonPathBlacklisted
		}
	}

	return false, ""
}

func (s *FileStore) QueryDone(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cp.ProcessedQueries[query]
	return ok
}

func (s *FileStore) MarkQueryDone(query string) {
	if query == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.ProcessedQueries[query] = struct{}{}
}

// ResetCycle clears per-cycle state. ScannedSHAs and LastScanTime survive.
func (s *FileStore) ResetCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.ProcessedQueries = make(map[string]struct{})
}

func (s *FileStore) UpdateScanTime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.LastScanTime = s.clock.Now()
}

func (s *FileStore) QueueForBalancer(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.cp.PendingBalancer[k] = struct{}{}
	}
}

func (s *FileStore) QueueForGPTLoad(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.cp.PendingGPTLoad[k] = struct{}{}
	}
}

func (s *FileStore) PendingBalancer() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.cp.PendingBalancer)
}

func (s *FileStore) PendingGPTLoad() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.cp.PendingGPTLoad)
}

// RemoveBalancer drops only the delivered keys, so anything queued during an
// in-flight send is kept for the next batch.
func (s *FileStore) RemoveBalancer(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.cp.PendingBalancer, k)
	}
}

func (s *FileStore) RemoveGPTLoad(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.cp.PendingGPTLoad, k)
	}
}

func (s *FileStore) ScannedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cp.ScannedSHAs)
}

func (s *FileStore) PendingCounts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cp.PendingBalancer), len(s.cp.PendingGPTLoad)
}

// Save durably writes the full checkpoint. Called at least once per processed
// hit: a crash loses at most the in-flight hit.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveSHAs(); err != nil {
		return err
	}

	file := checkpointFile{
		ProcessedQueries: sortedKeys(s.cp.ProcessedQueries),
		WaitSendBalancer: sortedKeys(s.cp.PendingBalancer),
		WaitSendGPTLoad:  sortedKeys(s.cp.PendingGPTLoad),
	}
	if !s.cp.LastScanTime.IsZero() {
		file.LastScanTime = s.cp.LastScanTime.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return atomicWrite(s.checkpointPath, data)
}

func (s *FileStore) saveSHAs() error {
	var b strings.Builder
	b.WriteString("# Scanned content SHAs\n")
	fmt.Fprintf(&b, "# Last update: %s\n\n", s.clock.Now().UTC().Format(time.RFC3339))
	for _, sha := range sortedKeys(s.cp.ScannedSHAs) {
		b.WriteString(sha)
		b.WriteByte('\n')
	}
	return atomicWrite(s.shasPath, []byte(b.String()))
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Sorted for reproducible diffs between saves.
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
