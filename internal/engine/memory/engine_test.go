package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopizen/catalogsearch/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func testDocs() []domain.Document {
	now := time.Now().UTC()
	return []domain.Document{
		{
			ID:            "1",
			Name:          "iPhone 15 Pro",
			Description:   "Apple flagship smartphone with titanium frame",
			Price:         29_990_000,
			OriginalPrice: 32_990_000,
			Discount:      9,
			CategoryID:    "cat-phones",
			CategoryName:  "Smartphones",
			Stock:         10,
			Rating:        4.8,
			ReviewCount:   120,
			ViewCount:     5000,
			Tags:          []string{"apple", "smartphone", "5g"},
			IsActive:      true,
			IsFeatured:    true,
			IsOnSale:      true,
			CreatedAt:     now.Add(-24 * time.Hour),
		},
		{
			ID:            "2",
			Name:          "Samsung Galaxy S24",
			Description:   "Samsung flagship smartphone with AI features",
			Price:         26_990_000,
			OriginalPrice: 26_990_000,
			CategoryID:    "cat-phones",
			CategoryName:  "Smartphones",
			Stock:         8,
			Rating:        4.6,
			ReviewCount:   95,
			ViewCount:     4200,
			Tags:          []string{"samsung", "smartphone", "5g"},
			IsActive:      true,
			CreatedAt:     now.Add(-48 * time.Hour),
		},
		{
			ID:            "3",
			Name:          "Dell XPS 13",
			Description:   "Compact ultrabook for professionals",
			Price:         35_000_000,
			OriginalPrice: 35_000_000,
			CategoryID:    "cat-laptops",
			CategoryName:  "Laptops",
			Stock:         5,
			Rating:        4.5,
			ReviewCount:   40,
			ViewCount:     1800,
			Tags:          []string{"dell", "laptop", "ultrabook"},
			IsActive:      true,
			CreatedAt:     now.Add(-72 * time.Hour),
		},
		{
			ID:            "4",
			Name:          "Discontinued Phone",
			Description:   "An old smartphone no longer sold",
			Price:         5_000_000,
			OriginalPrice: 5_000_000,
			CategoryID:    "cat-phones",
			CategoryName:  "Smartphones",
			Rating:        3.1,
			ViewCount:     90000,
			Tags:          []string{"smartphone"},
			IsActive:      false,
			CreatedAt:     now.Add(-time.Hour),
		},
	}
}

func seededEngine(t *testing.T) *Engine {
	t.Helper()
	e := New()
	for _, d := range testDocs() {
		require.NoError(t, e.Index(context.Background(), &d))
	}
	return e
}

func search(t *testing.T, e *Engine, filter *domain.FilterRequest) *domain.SearchResult {
	t.Helper()
	filter.Normalize()
	require.NoError(t, filter.Validate())
	res, err := e.Search(context.Background(), filter)
	require.NoError(t, err)
	return res
}

func hitIDs(res *domain.SearchResult) []string {
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.Document.ID)
	}
	return ids
}

func TestSearch_FuzzyQueryMatchesOnlyRelevant(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{Query: "iphone"})

	assert.Equal(t, []string{"1"}, hitIDs(res))
	assert.Equal(t, 1, res.Pagination.TotalDocuments)
}

func TestSearch_FuzzyToleratesTypo(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{Query: "ipone"})

	assert.Equal(t, []string{"1"}, hitIDs(res))
}

func TestSearch_ShortQueryUsesSubstring(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{Query: "xp"})

	assert.Equal(t, []string{"3"}, hitIDs(res))
}

func TestSearch_PriceMaxFilter(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{PriceMax: ptr(27_000_000.0)})

	assert.Equal(t, []string{"2"}, hitIDs(res))
}

func TestSearch_InclusiveRangeBounds(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{
		PriceMin: ptr(26_990_000.0),
		PriceMax: ptr(29_990_000.0),
	})

	assert.ElementsMatch(t, []string{"1", "2"}, hitIDs(res))
}

func TestSearch_ExcludesInactive(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{})

	assert.NotContains(t, hitIDs(res), "4")
	assert.Equal(t, 3, res.Pagination.TotalDocuments)
}

func TestSearch_OnSaleTriState(t *testing.T) {
	e := seededEngine(t)

	onSale := search(t, e, &domain.FilterRequest{OnSale: ptr(true)})
	assert.Equal(t, []string{"1"}, hitIDs(onSale))

	fullPrice := search(t, e, &domain.FilterRequest{OnSale: ptr(false)})
	assert.ElementsMatch(t, []string{"2", "3"}, hitIDs(fullPrice))

	all := search(t, e, &domain.FilterRequest{})
	assert.Len(t, all.Hits, 3)
}

func TestSearch_SortOrders(t *testing.T) {
	e := seededEngine(t)

	tests := []struct {
		sortBy string
		want   []string
	}{
		{domain.SortNewest, []string{"1", "2", "3"}},
		{domain.SortOldest, []string{"3", "2", "1"}},
		{domain.SortPriceLow, []string{"2", "1", "3"}},
		{domain.SortPriceHigh, []string{"3", "1", "2"}},
		{domain.SortRating, []string{"1", "2", "3"}},
		{domain.SortPopular, []string{"1", "2", "3"}},
		{domain.SortName, []string{"3", "1", "2"}},
	}
	for _, tc := range tests {
		t.Run(tc.sortBy, func(t *testing.T) {
			res := search(t, e, &domain.FilterRequest{SortBy: tc.sortBy})
			assert.Equal(t, tc.want, hitIDs(res))
		})
	}
}

func TestSearch_SortTieBreaksByID(t *testing.T) {
	e := New()
	now := time.Now().UTC()
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, e.Index(context.Background(), &domain.Document{
			ID: id, Name: "Widget " + id, Price: 100, IsActive: true, CreatedAt: now,
		}))
	}

	res := search(t, e, &domain.FilterRequest{SortBy: domain.SortPriceLow})

	assert.Equal(t, []string{"a", "b", "c"}, hitIDs(res))
}

func TestSearch_Pagination(t *testing.T) {
	e := New()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, e.Index(context.Background(), &domain.Document{
			ID: id, Name: "Item " + id, IsActive: true,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}))
	}

	page1 := search(t, e, &domain.FilterRequest{Page: 1, Limit: 2})
	page2 := search(t, e, &domain.FilterRequest{Page: 2, Limit: 2})
	page3 := search(t, e, &domain.FilterRequest{Page: 3, Limit: 2})

	var seen []string
	for _, res := range []*domain.SearchResult{page1, page2, page3} {
		seen = append(seen, hitIDs(res)...)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, seen)

	assert.True(t, page1.Pagination.HasNextPage)
	assert.False(t, page1.Pagination.HasPrevPage)
	assert.Equal(t, 3, page1.Pagination.TotalPages)
	assert.True(t, page3.Pagination.HasPrevPage)
	assert.False(t, page3.Pagination.HasNextPage)
}

func TestSearch_PageBeyondEnd(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{Page: 50})

	assert.Empty(t, res.Hits)
	assert.Equal(t, 3, res.Pagination.TotalDocuments)
	assert.False(t, res.Pagination.HasNextPage)
}

func TestSearch_Highlights(t *testing.T) {
	e := seededEngine(t)

	res := search(t, e, &domain.FilterRequest{Query: "iphone"})

	require.Len(t, res.Hits, 1)
	require.Contains(t, res.Hits[0].Highlights, "name")
	assert.Equal(t, "<mark>iPhone</mark> 15 Pro", res.Hits[0].Highlights["name"][0])
}

func TestDelete_RemovesFromResults(t *testing.T) {
	e := seededEngine(t)

	require.NoError(t, e.Delete(context.Background(), "1"))

	res := search(t, e, &domain.FilterRequest{Query: "iphone"})
	assert.Empty(t, res.Hits)
}

func TestDelete_AbsentIsNoop(t *testing.T) {
	e := seededEngine(t)

	assert.NoError(t, e.Delete(context.Background(), "missing"))
}

func TestBulkIndex_CollectsFailures(t *testing.T) {
	e := New()

	res, err := e.BulkIndex(context.Background(), []domain.Document{
		{ID: "1", Name: "A", IsActive: true},
		{Name: "missing id"},
		{ID: "2", Name: "B", IsActive: true},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Len(t, res.FailedIDs, 1)
}

func TestRebuild_ReplacesContents(t *testing.T) {
	e := seededEngine(t)

	_, err := e.Rebuild(context.Background(), []domain.Document{
		{ID: "9", Name: "Fresh Item", IsActive: true, CreatedAt: time.Now()},
	})
	require.NoError(t, err)

	res := search(t, e, &domain.FilterRequest{})
	assert.Equal(t, []string{"9"}, hitIDs(res))
}

func TestFacets_Buckets(t *testing.T) {
	e := seededEngine(t)

	facets, err := e.Facets(context.Background(), &domain.FilterRequest{})
	require.NoError(t, err)

	byKey := func(buckets []domain.FacetBucket) map[string]int {
		m := make(map[string]int)
		for _, b := range buckets {
			m[b.Key] = b.Count
		}
		return m
	}

	cats := byKey(facets.Categories)
	assert.Equal(t, 2, cats["Smartphones"])
	assert.Equal(t, 1, cats["Laptops"])

	tags := byKey(facets.Tags)
	assert.Equal(t, 2, tags["smartphone"])

	// Prices 26.99M, 29.99M, 35M all land in the top bucket (>= 5M).
	top := facets.PriceRanges[len(facets.PriceRanges)-1]
	assert.Equal(t, 3, top.Count)

	// Ratings 4.8, 4.6, 4.5 land in the 4..5 bucket.
	ratingTop := facets.RatingRanges[len(facets.RatingRanges)-1]
	assert.Equal(t, 3, ratingTop.Count)

	sale := byKey(facets.OnSale)
	assert.Equal(t, 1, sale["true"])
	assert.Equal(t, 2, sale["false"])
}

func TestFacets_RespectQueryAndCategory(t *testing.T) {
	e := seededEngine(t)

	facets, err := e.Facets(context.Background(), &domain.FilterRequest{CategoryID: "cat-phones"})
	require.NoError(t, err)

	byKey := map[string]int{}
	for _, b := range facets.Categories {
		byKey[b.Key] = b.Count
	}
	assert.Equal(t, 2, byKey["Smartphones"])
	assert.Zero(t, byKey["Laptops"])
}

func TestPopular_OrdersByFeaturedThenViews(t *testing.T) {
	e := seededEngine(t)

	docs, err := e.Popular(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "1", docs[0].ID) // featured
	assert.Equal(t, "2", docs[1].ID) // most views among the rest
	assert.Equal(t, "3", docs[2].ID)
}

func TestMatchSubstring_ChecksNameDescriptionTags(t *testing.T) {
	e := seededEngine(t)

	// "ip" hits the iPhone through its name and the Galaxy through
	// "flagship" in its description; the featured iPhone ranks first.
	docs, err := e.MatchSubstring(context.Background(), "ip", 10)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, "2", docs[1].ID)
}

func TestMoreLikeThis_SharedTerms(t *testing.T) {
	e := seededEngine(t)

	docs, err := e.MoreLikeThis(context.Background(), "1", 10)
	require.NoError(t, err)

	// The Galaxy shares smartphone/flagship/5g terms; the laptop does not.
	require.Len(t, docs, 1)
	assert.Equal(t, "2", docs[0].ID)
}

func TestMoreLikeThis_UnknownReference(t *testing.T) {
	e := seededEngine(t)

	_, err := e.MoreLikeThis(context.Background(), "missing", 10)

	assert.Error(t, err)
}

func TestTrending_WindowAndOrder(t *testing.T) {
	e := seededEngine(t)

	docs, err := e.Trending(context.Background(), 10, 50*time.Hour)
	require.NoError(t, err)

	// Doc 3 was created 72h ago, outside the window; doc 4 is inactive.
	require.Len(t, docs, 2)
	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, "2", docs[1].ID)
}

func TestConcurrentWritesDuringRebuild(t *testing.T) {
	e := seededEngine(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Rebuild(context.Background(), testDocs())
	}()
	require.NoError(t, e.Index(context.Background(), &domain.Document{
		ID: "99", Name: "Late Arrival", IsActive: true, CreatedAt: time.Now(),
	}))
	<-done

	// Depending on interleaving the write lands before or after the swap,
	// but a subsequent write must always be visible.
	require.NoError(t, e.Index(context.Background(), &domain.Document{
		ID: "99", Name: "Late Arrival", IsActive: true, CreatedAt: time.Now(),
	}))
	res := search(t, e, &domain.FilterRequest{Query: "late arrival"})
	assert.Contains(t, hitIDs(res), "99")
}
