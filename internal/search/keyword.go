package search

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/kamusis/memview/internal/bundle"
)

// MatchKeyword reports whether every whitespace-separated token of query
// occurs in the record id or content, using Unicode case folding.
// An empty query matches everything.
func MatchKeyword(r bundle.Record, query string) bool {
	return newKeywordMatcher(query).match(r)
}

// keywordMatcher holds a folded query. A Caser is stateful, so a matcher
// belongs to one goroutine.
type keywordMatcher struct {
	fold   cases.Caser
	tokens []string
}

func newKeywordMatcher(query string) *keywordMatcher {
	fold := cases.Fold()
	return &keywordMatcher{fold: fold, tokens: tokenize(fold, query)}
}

func (k *keywordMatcher) match(r bundle.Record) bool {
	if len(k.tokens) == 0 {
		return true
	}
	blob := k.fold.String(r.ID + "\n" + r.Metadata.Content)
	for _, tok := range k.tokens {
		if !strings.Contains(blob, tok) {
			return false
		}
	}
	return true
}

func tokenize(fold cases.Caser, q string) []string {
	parts := strings.Fields(q)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, fold.String(p))
	}
	return out
}
