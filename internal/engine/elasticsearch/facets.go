package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopizen/catalogsearch/internal/domain"
)

// esFacetResponse is the structure used to decode facet aggregation responses.
type esFacetResponse struct {
	Aggregations struct {
		Categories   termsAgg `json:"categories"`
		PriceRanges  rangeAgg `json:"price_ranges"`
		RatingRanges rangeAgg `json:"rating_ranges"`
		Tags         termsAgg `json:"tags"`
		OnSale       termsAgg `json:"on_sale"`
		Featured     termsAgg `json:"featured"`
	} `json:"aggregations"`
}

type termsAgg struct {
	Buckets []struct {
		Key      interface{} `json:"key"`
		KeyStr   string      `json:"key_as_string"`
		DocCount int         `json:"doc_count"`
	} `json:"buckets"`
}

type rangeAgg struct {
	Buckets []struct {
		From     *float64 `json:"from"`
		To       *float64 `json:"to"`
		DocCount int      `json:"doc_count"`
	} `json:"buckets"`
}

// Facets runs the facet aggregations over the filtered document set. The
// query, category, and range constraints apply; the boolean flag dimensions
// are left unconstrained so their own counts stay meaningful.
func (e *Engine) Facets(ctx context.Context, filter *domain.FilterRequest) (*domain.FacetResult, error) {
	facetFilter := *filter
	facetFilter.OnSale = nil
	facetFilter.Featured = nil

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   []interface{}{buildMatchClause(facetFilter.Query)},
				"filter": buildFilters(&facetFilter),
			},
		},
		"size": 0,
		"aggs": buildFacetAggs(),
	}

	data, err := json.Marshal(esQuery)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch facets: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.alias),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch facets: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return nil, fmt.Errorf("elasticsearch facets: %s — %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return nil, fmt.Errorf("elasticsearch facets: unexpected status %s", res.Status())
	}

	var esResp esFacetResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch facets: decode response: %w", err)
	}

	return &domain.FacetResult{
		Categories:   termBuckets(esResp.Aggregations.Categories),
		PriceRanges:  rangeBuckets(esResp.Aggregations.PriceRanges),
		RatingRanges: rangeBuckets(esResp.Aggregations.RatingRanges),
		Tags:         termBuckets(esResp.Aggregations.Tags),
		OnSale:       termBuckets(esResp.Aggregations.OnSale),
		Featured:     termBuckets(esResp.Aggregations.Featured),
	}, nil
}

// buildFacetAggs constructs the aggregation DSL for all facet dimensions.
func buildFacetAggs() map[string]interface{} {
	return map[string]interface{}{
		"categories": map[string]interface{}{
			"terms": map[string]interface{}{"field": "categoryName.keyword", "size": 20},
		},
		"price_ranges": map[string]interface{}{
			"range": map[string]interface{}{
				"field":  "price",
				"ranges": edgeRanges(domain.PriceBucketEdges),
			},
		},
		"rating_ranges": map[string]interface{}{
			"range": map[string]interface{}{
				"field":  "rating",
				"ranges": edgeRanges(domain.RatingBucketEdges),
			},
		},
		"tags": map[string]interface{}{
			"terms": map[string]interface{}{"field": "tags", "size": 20},
		},
		"on_sale": map[string]interface{}{
			"terms": map[string]interface{}{"field": "isOnSale"},
		},
		"featured": map[string]interface{}{
			"terms": map[string]interface{}{"field": "isFeatured"},
		},
	}
}

// edgeRanges turns sorted bucket edges into range aggregation entries. The
// first entry is unbounded below; the last is unbounded above.
func edgeRanges(edges []float64) []interface{} {
	ranges := make([]interface{}, 0, len(edges)+1)
	var from *float64
	for i := range edges {
		entry := map[string]interface{}{"to": edges[i]}
		if from != nil {
			entry["from"] = *from
		}
		ranges = append(ranges, entry)
		from = &edges[i]
	}
	last := map[string]interface{}{}
	if from != nil {
		last["from"] = *from
	}
	ranges = append(ranges, last)
	return ranges
}

func termBuckets(agg termsAgg) []domain.FacetBucket {
	buckets := make([]domain.FacetBucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		key := b.KeyStr
		if key == "" {
			key = fmt.Sprintf("%v", b.Key)
		}
		buckets = append(buckets, domain.FacetBucket{Key: key, Count: b.DocCount})
	}
	return buckets
}

func rangeBuckets(agg rangeAgg) []domain.RangeBucket {
	buckets := make([]domain.RangeBucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		buckets = append(buckets, domain.RangeBucket{From: b.From, To: b.To, Count: b.DocCount})
	}
	return buckets
}
