package scanner

import (
	"regexp"
	"strings"
)

// Fine-grained PAT grammar: fixed prefix plus 82 alphanumerics.
var tokenPattern = regexp.MustCompile(`github_pat_[a-zA-Z0-9]{82}`)

// placeholderWindow is how far around a candidate we look for markers that
// identify documentation samples rather than real leaks.
const placeholderWindow = 45

var placeholderMarkers = []string{
	"...",
	"…",
	"YOUR_",
	"EXAMPLE",
	"PLACEHOLDER",
	"XXXX",
	"<your",
}

// Extract returns the candidate tokens in content, deduplicated in
// first-seen order. Candidates surrounded by placeholder markers are
// rejected. This is a heuristic false-positive filter, not a correctness
// guarantee.
func Extract(content string) []string {
	matches := tokenPattern.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, m := range matches {
		candidate := content[m[0]:m[1]]
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		if looksLikePlaceholder(content, m[0], m[1]) {
			continue
		}
		tokens = append(tokens, candidate)
	}
	return tokens
}

// Only the surrounding text is inspected: the token body is random
// alphanumerics and could coincidentally contain a marker like XXXX.
func looksLikePlaceholder(content string, start, end int) bool {
	lo := max(start-placeholderWindow, 0)
	hi := min(end+placeholderWindow, len(content))
	window := strings.ToUpper(content[lo:start] + content[end:hi])

	for _, marker := range placeholderMarkers {
		if strings.Contains(window, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}
