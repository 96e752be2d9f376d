package elasticsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/shopizen/catalogsearch/internal/domain"
)

// Trending returns active documents created within the window, ordered by
// view count, then rating, then recency.
func (e *Engine) Trending(ctx context.Context, limit int, window time.Duration) ([]domain.Document, error) {
	filters := activeOnly()
	filters = append(filters, map[string]interface{}{
		"range": map[string]interface{}{
			"createdAt": map[string]interface{}{
				"gte": fmt.Sprintf("now-%ds", int64(window.Seconds())),
			},
		},
	})

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
			},
		},
		"size": limit,
		"sort": []interface{}{
			map[string]interface{}{"viewCount": "desc"},
			map[string]interface{}{"rating": "desc"},
			map[string]interface{}{"createdAt": "desc"},
			map[string]interface{}{"id": "asc"},
		},
	}

	esResp, err := e.runSearch(ctx, esQuery, "elasticsearch trending")
	if err != nil {
		return nil, err
	}
	return collectDocs(esResp), nil
}
