package elasticsearch

import (
	"strings"

	"github.com/shopizen/catalogsearch/internal/domain"
)

// buildSearchQuery constructs the Elasticsearch query DSL as a map. The
// filter is expected to be normalized and validated already.
func buildSearchQuery(filter *domain.FilterRequest) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"must": []interface{}{buildMatchClause(filter.Query)},
		// Inactive documents are never searchable, whatever the caller asks.
		"filter": buildFilters(filter),
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
		"from":             filter.Offset(),
		"size":             filter.Limit,
		"track_total_hits": true,
		"sort":             buildSort(filter.SortBy),
	}

	if filter.Query != "" {
		esQuery["highlight"] = map[string]interface{}{
			"pre_tags":  []string{"<mark>"},
			"post_tags": []string{"</mark>"},
			"fields": map[string]interface{}{
				"name":         map[string]interface{}{},
				"description":  map[string]interface{}{},
				"categoryName": map[string]interface{}{},
			},
		}
	}

	return esQuery
}

// buildMatchClause picks the text-matching strategy by query length: one or
// two characters get substring wildcards (fuzziness on such short input
// matches nearly everything), longer queries get a fuzzy multi-match.
func buildMatchClause(query string) map[string]interface{} {
	query = strings.TrimSpace(query)
	if query == "" {
		return map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	if len([]rune(query)) <= 2 {
		pattern := "*" + strings.ToLower(query) + "*"
		return map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{"wildcard": map[string]interface{}{"name.keyword": map[string]interface{}{"value": pattern, "case_insensitive": true}}},
					map[string]interface{}{"wildcard": map[string]interface{}{"description": map[string]interface{}{"value": pattern}}},
					map[string]interface{}{"wildcard": map[string]interface{}{"categoryName.keyword": map[string]interface{}{"value": pattern, "case_insensitive": true}}},
					map[string]interface{}{"wildcard": map[string]interface{}{"tags": map[string]interface{}{"value": pattern, "case_insensitive": true}}},
				},
				"minimum_should_match": 1,
			},
		}
	}

	return map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":     query,
			"fields":    []string{"name^3", "description^2", "categoryName^2", "tags"},
			"type":      "best_fields",
			"fuzziness": "AUTO",
		},
	}
}

// buildFilters constructs the filter clauses from the filter request.
func buildFilters(filter *domain.FilterRequest) []interface{} {
	filters := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"isActive": true},
		},
	}

	if filter.CategoryID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"categoryId": filter.CategoryID},
		})
	}

	if rf := rangeClause(filter.PriceMin, filter.PriceMax); rf != nil {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"price": rf},
		})
	}
	if rf := rangeClause(filter.RatingMin, filter.RatingMax); rf != nil {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"rating": rf},
		})
	}

	if filter.OnSale != nil {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"isOnSale": *filter.OnSale},
		})
	}
	if filter.Featured != nil {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"isFeatured": *filter.Featured},
		})
	}

	return filters
}

// rangeClause builds an inclusive range body, or nil when both bounds are absent.
func rangeClause(min, max *float64) map[string]interface{} {
	if min == nil && max == nil {
		return nil
	}
	rf := map[string]interface{}{}
	if min != nil {
		rf["gte"] = *min
	}
	if max != nil {
		rf["lte"] = *max
	}
	return rf
}

// buildSort constructs the sort clause for the sort option. Every option
// carries an id tiebreaker so that paging over equal keys is stable.
func buildSort(sortBy string) []interface{} {
	var primary map[string]interface{}
	switch sortBy {
	case domain.SortOldest:
		primary = map[string]interface{}{"createdAt": "asc"}
	case domain.SortPriceLow:
		primary = map[string]interface{}{"price": "asc"}
	case domain.SortPriceHigh:
		primary = map[string]interface{}{"price": "desc"}
	case domain.SortRating:
		primary = map[string]interface{}{"rating": "desc"}
	case domain.SortPopular:
		primary = map[string]interface{}{"viewCount": "desc"}
	case domain.SortName:
		primary = map[string]interface{}{"name.keyword": "asc"}
	default: // SortNewest
		primary = map[string]interface{}{"createdAt": "desc"}
	}

	return []interface{}{
		primary,
		map[string]interface{}{"id": "asc"},
	}
}
