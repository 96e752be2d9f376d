package elasticsearch

import (
	"context"
	"strings"

	"github.com/shopizen/catalogsearch/internal/domain"
)

// activeOnly is the filter clause shared by the suggestion queries.
func activeOnly() []interface{} {
	return []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"isActive": true},
		},
	}
}

// popularSort orders documents by (featured, views, rating), the ranking
// used when no prefix narrows the candidates.
func popularSort() []interface{} {
	return []interface{}{
		map[string]interface{}{"isFeatured": "desc"},
		map[string]interface{}{"viewCount": "desc"},
		map[string]interface{}{"rating": "desc"},
		map[string]interface{}{"id": "asc"},
	}
}

// Popular returns the top active documents by (featured, viewCount, rating).
func (e *Engine) Popular(ctx context.Context, limit int) ([]domain.Document, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": activeOnly(),
			},
		},
		"size": limit,
		"sort": popularSort(),
	}

	esResp, err := e.runSearch(ctx, esQuery, "elasticsearch popular")
	if err != nil {
		return nil, err
	}
	return collectDocs(esResp), nil
}

// MatchSubstring returns active documents whose name, description, or tags
// contain the text, case-insensitively, ordered by popularity. It backs the
// prefix stage of suggestions, where the autocomplete field alone is too
// narrow to cover tags.
func (e *Engine) MatchSubstring(ctx context.Context, text string, limit int) ([]domain.Document, error) {
	pattern := "*" + strings.ToLower(strings.TrimSpace(text)) + "*"

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{"match": map[string]interface{}{"name.autocomplete": text}},
					map[string]interface{}{"wildcard": map[string]interface{}{"name.keyword": map[string]interface{}{"value": pattern, "case_insensitive": true}}},
					map[string]interface{}{"wildcard": map[string]interface{}{"description": map[string]interface{}{"value": pattern}}},
					map[string]interface{}{"wildcard": map[string]interface{}{"tags": map[string]interface{}{"value": pattern, "case_insensitive": true}}},
				},
				"minimum_should_match": 1,
				"filter":               activeOnly(),
			},
		},
		"size": limit,
		"sort": popularSort(),
	}

	esResp, err := e.runSearch(ctx, esQuery, "elasticsearch match substring")
	if err != nil {
		return nil, err
	}
	return collectDocs(esResp), nil
}

func collectDocs(esResp *esSearchResponse) []domain.Document {
	docs := make([]domain.Document, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs
}
