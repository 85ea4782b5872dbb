package github

import (
	"strings"
	"sync"
)

// TokenPool hands out credentials round-robin so quota consumption is spread
// across the pool. An empty pool is valid: callers fall back to
// unauthenticated requests at a lower quota.
type TokenPool struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

func NewTokenPool(raw []string) *TokenPool {
	seen := make(map[string]bool)
	var tokens []string
	for _, tk := range raw {
		tk = strings.TrimSpace(tk)
		if tk == "" || seen[tk] {
			continue
		}
		seen[tk] = true
		tokens = append(tokens, tk)
	}
	return &TokenPool{tokens: tokens}
}

// Next returns the next credential in rotation, wrapping indefinitely.
// The second return is false when the pool is empty.
func (p *TokenPool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tokens) == 0 {
		return "", false
	}
	tk := p.tokens[p.next%len(p.tokens)]
	p.next++
	return tk, true
}

func (p *TokenPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}
