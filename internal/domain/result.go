package domain

// Hit is a single search result: the document plus backend scoring and
// highlighted snippets (present only when the request carried a text query).
type Hit struct {
	Document
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// Pagination describes the page window of a search result.
type Pagination struct {
	CurrentPage    int  `json:"currentPage"`
	TotalPages     int  `json:"totalPages"`
	TotalDocuments int  `json:"totalDocuments"`
	HasNextPage    bool `json:"hasNextPage"`
	HasPrevPage    bool `json:"hasPrevPage"`
}

// NewPagination computes the page window for the given totals.
func NewPagination(page, limit, total int) Pagination {
	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}
	return Pagination{
		CurrentPage:    page,
		TotalPages:     totalPages,
		TotalDocuments: total,
		HasNextPage:    (page-1)*limit+limit < total,
		HasPrevPage:    page > 1,
	}
}

// SearchResult holds the paginated search response.
type SearchResult struct {
	Hits       []Hit        `json:"documents"`
	Pagination Pagination   `json:"pagination"`
	Facets     *FacetResult `json:"facets,omitempty"`
	TookMs     int64        `json:"tookMs"`
}

// FacetBucket is a single term facet entry.
type FacetBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// RangeBucket is a single range facet entry. A nil bound means unbounded.
type RangeBucket struct {
	From  *float64 `json:"from,omitempty"`
	To    *float64 `json:"to,omitempty"`
	Count int      `json:"count"`
}

// FacetResult holds the aggregated count breakdowns over a filtered result set.
type FacetResult struct {
	Categories   []FacetBucket `json:"categories"`
	PriceRanges  []RangeBucket `json:"priceRanges"`
	RatingRanges []RangeBucket `json:"ratingRanges"`
	Tags         []FacetBucket `json:"tags"`
	OnSale       []FacetBucket `json:"onSale"`
	Featured     []FacetBucket `json:"featured"`
}

// Fixed facet bucket edges, in the catalog's currency unit.
var (
	PriceBucketEdges  = []float64{100_000, 500_000, 1_000_000, 5_000_000}
	RatingBucketEdges = []float64{2, 3, 4}
)

// Suggestion kinds, in priority order for tie-breaking.
const (
	SuggestionProduct  = "product"
	SuggestionCategory = "category"
	SuggestionTag      = "tag"
)

// Suggestion is a single ranked autocomplete candidate.
type Suggestion struct {
	Text  string  `json:"text"`
	Kind  string  `json:"kind"`
	Score float64 `json:"score"`
}

// KindPriority orders suggestion kinds for score ties: products beat
// categories beat tags.
func KindPriority(kind string) int {
	switch kind {
	case SuggestionProduct:
		return 0
	case SuggestionCategory:
		return 1
	default:
		return 2
	}
}
