package search

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/feiju-bot/feiju/internal/normalize"
)

// DefaultSuggestLimit caps suggestions when the caller passes no limit.
const DefaultSuggestLimit = 5

// Suggestion is a name that resembles the queried text.
type Suggestion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Suggest returns names of contextID that resemble text, best first.
func (x *NameIndex) Suggest(ctx context.Context, contextID, text string, limit int) ([]Suggestion, error) {
	folded := normalize.Name(text)
	if folded == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSuggestQuery(contextID, folded), limit, 0, false)
	req.Fields = []string{"name"}

	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(res.Hits))
	for _, hit := range res.Hits {
		name, ok := hit.Fields["name"].(string)
		if !ok {
			continue
		}
		suggestions = append(suggestions, Suggestion{Name: name, Score: hit.Score})
	}
	return suggestions, nil
}

// buildSuggestQuery matches names in one context by shared bigrams, by
// small edit distance, or by the text being a prefix of the name.
func buildSuggestQuery(contextID, folded string) query.Query {
	contextQuery := bleve.NewTermQuery(contextID)
	contextQuery.SetField("context")

	nameMatch := bleve.NewMatchQuery(folded)
	nameMatch.SetField("name")
	nameMatch.SetBoost(2.0)

	textQueries := []query.Query{nameMatch}

	fuzziness := 1
	if utf8.RuneCountInString(folded) >= 6 {
		fuzziness = 2
	}
	fuzzyQuery := bleve.NewFuzzyQuery(folded)
	fuzzyQuery.SetFuzziness(fuzziness)
	fuzzyQuery.SetField("name_exact")
	textQueries = append(textQueries, fuzzyQuery)

	prefixQuery := bleve.NewPrefixQuery(folded)
	prefixQuery.SetField("name_exact")
	prefixQuery.SetBoost(1.5)
	textQueries = append(textQueries, prefixQuery)

	return bleve.NewConjunctionQuery(contextQuery, bleve.NewDisjunctionQuery(textQueries...))
}
