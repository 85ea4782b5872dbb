package checkpoint_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"patscan/internal/checkpoint"
	"patscan/internal/clock"
	"patscan/internal/github"
)

func newStore(t *testing.T, clk *clock.Fake) *checkpoint.FileStore {
	t.Helper()
	store, err := checkpoint.NewFileStore(checkpoint.StoreConfig{
		Dir:             t.TempDir(),
		ScannedSHAsFile: "scanned_shas.txt",
		PathBlacklist:   []string{"readme", ".md", "node_modules"},
		RetentionDays:   365,
	}, clk)
	assert.NoError(t, err)
	return store
}

func TestShouldSkip(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newStore(t, clk)

	fresh := github.SearchItem{
		SHA:  "sha-1",
		Path: "src/config.env",
		Repository: github.Repository{
			FullName: "acme/leaky",
			PushedAt: time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC),
		},
	}

	t.Run("Fresh Hit Passes", func(t *testing.T) {
		skip, reason := store.ShouldSkip(fresh)
		assert.False(t, skip)
		assert.Empty(t, reason)
	})

	t.Run("Duplicate SHA", func(t *testing.T) {
		store.MarkSeen("sha-1")
		skip, reason := store.ShouldSkip(fresh)
		assert.True(t, skip)
		assert.Equal(t, checkpoint.ReasonSHADuplicate, reason)
	})

	t.Run("Blacklisted Path", func(t *testing.T) {
		item := fresh
		item.SHA = "sha-2"
		item.Path = "examples/README.md"
		skip, reason := store.ShouldSkip(item)
		assert.True(t, skip)
		assert.Equal(t, checkpoint.ReasonPathBlacklisted, reason)
	})

	t.Run("Repo Older Than Retention", func(t *testing.T) {
		item := fresh
		item.SHA = "sha-3"
		item.Repository.PushedAt = clk.Now().Add(-400 * 24 * time.Hour)
		skip, reason := store.ShouldSkip(item)
		assert.True(t, skip)
		assert.Equal(t, checkpoint.ReasonRepoTooOld, reason)
	})

	t.Run("Repo Unchanged Since Last Scan", func(t *testing.T) {
		store.UpdateScanTime()
		item := fresh
		item.SHA = "sha-4"
		item.Repository.PushedAt = clk.Now().Add(-24 * time.Hour)
		skip, reason := store.ShouldSkip(item)
		assert.True(t, skip)
		assert.Equal(t, checkpoint.ReasonRepoUnchanged, reason)
	})

	t.Run("Zero PushedAt Passes Time Filters", func(t *testing.T) {
		item := github.SearchItem{SHA: "sha-5", Path: "src/app.py"}
		skip, _ := store.ShouldSkip(item)
		assert.False(t, skip)
	})
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := checkpoint.StoreConfig{Dir: dir, ScannedSHAsFile: "scanned_shas.txt", RetentionDays: 365}

	store, err := checkpoint.NewFileStore(cfg, clk)
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		store.MarkSeen(fmt.Sprintf("sha-%d", i))
	}
	store.MarkQueryDone(`"github_pat_" in:file`)
	store.QueueForBalancer([]string{"key-a", "key-b"})
	store.QueueForGPTLoad([]string{"key-a"})
	store.UpdateScanTime()
	assert.NoError(t, store.Save())

	reloaded, err := checkpoint.NewFileStore(cfg, clk)
	assert.NoError(t, err)

	assert.Equal(t, 5, reloaded.ScannedCount())
	for i := 0; i < 5; i++ {
		assert.True(t, reloaded.Seen(fmt.Sprintf("sha-%d", i)))
	}
	assert.True(t, reloaded.QueryDone(`"github_pat_" in:file`))
	assert.Equal(t, []string{"key-a", "key-b"}, reloaded.PendingBalancer())
	assert.Equal(t, []string{"key-a"}, reloaded.PendingGPTLoad())
}

func TestMonotoneScannedSet(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newStore(t, clk)

	const n = 50
	for i := 0; i < n; i++ {
		store.MarkSeen(fmt.Sprintf("sha-%d", i))
	}
	assert.Equal(t, n, store.ScannedCount())

	// Cycle reset must not touch the dedup boundary.
	store.ResetCycle()
	assert.Equal(t, n, store.ScannedCount())
}

func TestLoad_CorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte("{not json"), 0o644))

	clk := clock.NewFake(time.Now())
	store, err := checkpoint.NewFileStore(checkpoint.StoreConfig{
		Dir:             dir,
		ScannedSHAsFile: "scanned_shas.txt",
		RetentionDays:   365,
	}, clk)
	assert.NoError(t, err, "corrupt checkpoint must yield an empty valid state, not a startup failure")
	assert.Equal(t, 0, store.ScannedCount())
}

func TestLoad_SHAFileSkipsComments(t *testing.T) {
	dir := t.TempDir()
	content := "# header\n\nsha-a\nsha-b\n"
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "scanned_shas.txt"), []byte(content), 0o644))

	clk := clock.NewFake(time.Now())
	store, err := checkpoint.NewFileStore(checkpoint.StoreConfig{
		Dir:             dir,
		ScannedSHAsFile: "scanned_shas.txt",
		RetentionDays:   365,
	}, clk)
	assert.NoError(t, err)
	assert.True(t, store.Seen("sha-a"))
	assert.True(t, store.Seen("sha-b"))
	assert.Equal(t, 2, store.ScannedCount())
}

func TestRemoveKeepsConcurrentlyQueuedKeys(t *testing.T) {
	clk := clock.NewFake(time.Now())
	store := newStore(t, clk)

	store.QueueForBalancer([]string{"key-a", "key-b"})
	inFlight := store.PendingBalancer()
	store.QueueForBalancer([]string{"key-c"})

	store.RemoveBalancer(inFlight)
	assert.Equal(t, []string{"key-c"}, store.PendingBalancer())
}
