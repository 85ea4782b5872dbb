package github_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"patscan/internal/github"
)

func TestTokenPool_RoundRobin(t *testing.T) {
	pool := github.NewTokenPool([]string{"a", "b", "c"})

	var got []string
	for i := 0; i < 7; i++ {
		tk, ok := pool.Next()
		assert.True(t, ok)
		got = append(got, tk)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, got)
}

func TestTokenPool_TrimsAndDedupes(t *testing.T) {
	pool := github.NewTokenPool([]string{" a ", "", "b", "a", "  "})
	assert.Equal(t, 2, pool.Size())

	tk, ok := pool.Next()
	assert.True(t, ok)
	assert.Equal(t, "a", tk)
}

func TestTokenPool_Empty(t *testing.T) {
	pool := github.NewTokenPool(nil)

	tk, ok := pool.Next()
	assert.False(t, ok)
	assert.Empty(t, tk)
	assert.Equal(t, 0, pool.Size())
}
