package engine

import (
	"sort"
	"strings"
)

// stopWords is the fixed list excluded from topic and key-point
// extraction.
var stopWords = map[string]bool{
	"the": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "up": true, "about": true,
	"into": true, "through": true, "during": true, "before": true,
	"after": true, "above": true, "below": true, "between": true,
	"among": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true,
	"it": true, "we": true, "they": true, "am": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true,
}

// topTokens ranks whitespace-split tokens across the given contents by
// descending frequency, dropping tokens of length <= 3 and stop words,
// and returns the top n. Ties break alphabetically so results are
// stable.
func topTokens(contents []string, n int) []string {
	counts := make(map[string]int)
	for _, c := range contents {
		for _, w := range strings.Fields(strings.ToLower(c)) {
			if len(w) <= 3 || stopWords[w] {
				continue
			}
			counts[w]++
		}
	}

	tokens := make([]string, 0, len(counts))
	for w := range counts {
		tokens = append(tokens, w)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return tokens
}

// truncate cuts s at limit bytes, appending suffix when anything was
// dropped.
func truncate(s string, limit int, suffix string) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + suffix
}
