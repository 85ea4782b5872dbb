package queries_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"patscan/internal/queries"
)

func TestLoad_SkipsCommentsAndBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	content := "# comment\n\n\"github_pat_\" in:file\n  \n\"github_pat_\" extension:env\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	qs, err := queries.Load(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{`"github_pat_" in:file`, `"github_pat_" extension:env`}, qs)
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queries.txt")

	qs, err := queries.Load(path)
	assert.NoError(t, err)
	assert.NotEmpty(t, qs)
	assert.Contains(t, qs, `"github_pat_" in:file`)

	// The seeded file must survive for operator editing.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
