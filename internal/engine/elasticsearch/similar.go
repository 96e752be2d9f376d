package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopizen/catalogsearch/internal/domain"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
)

// MoreLikeThis returns active documents textually similar to the referenced
// one, using the more_like_this query over the text fields. The reference
// document itself is excluded by construction.
func (e *Engine) MoreLikeThis(ctx context.Context, id string, limit int) ([]domain.Document, error) {
	if err := e.ensureExists(ctx, id); err != nil {
		return nil, err
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"more_like_this": map[string]interface{}{
							"fields": []string{"name", "description", "categoryName", "tags"},
							"like": []interface{}{
								map[string]interface{}{"_index": e.alias, "_id": id},
							},
							"min_term_freq":        1,
							"max_query_terms":      25,
							"max_doc_freq":         1000,
							"minimum_should_match": "30%",
						},
					},
				},
				"filter": activeOnly(),
			},
		},
		"size": limit,
	}

	esResp, err := e.runSearch(ctx, esQuery, "elasticsearch more like this")
	if err != nil {
		return nil, err
	}
	return collectDocs(esResp), nil
}

// ensureExists verifies the reference document is indexed, so an unknown id
// yields a not-found error rather than a silently empty result.
func (e *Engine) ensureExists(ctx context.Context, id string) error {
	res, err := e.client.Exists(
		e.alias,
		id,
		e.client.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 404 {
		return apperrors.NotFound("document", id)
	}
	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return fmt.Errorf("elasticsearch exists: %s — %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return fmt.Errorf("elasticsearch exists: unexpected status %s", res.Status())
	}
	return nil
}
