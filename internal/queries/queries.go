// Package queries loads the logical search queries (dorks) that drive each
// crawl cycle.
package queries

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default dorks target the fine-grained PAT prefix. Quoting the prefix makes
// the search an exact match instead of a tokenized one.
var defaultQueries = []string{
	`"github_pat_" in:file`,
	`"github_pat_" extension:env`,
	`"github_pat_" filename:config.py`,
	`"github_pat_" language:shell`,
	`"github_pat_" language:python`,
	`"github_pat_" path:.github/workflows`,
}

// Load reads queries from path, skipping blanks and # comments. A missing
// file is seeded with the defaults first, so a fresh deployment starts
// scanning without manual setup.
func Load(path string) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultFile(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries file: %w", err)
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries file: %w", err)
	}
	return queries, nil
}

func writeDefaultFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create queries dir: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString("# Fine-grained PAT search queries\n")
	b.WriteString("# One query per line; lines starting with # are ignored.\n\n")
	for _, q := range defaultQueries {
		b.WriteString(q)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write default queries file: %w", err)
	}
	return nil
}
