package elasticsearch_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopizen/catalogsearch/internal/domain"
	esengine "github.com/shopizen/catalogsearch/internal/engine/elasticsearch"
)

// testLogger returns a discard logger suitable for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine creates an Elasticsearch engine for integration tests.
// It skips the test if ELASTICSEARCH_URL is not set.
func newTestEngine(t *testing.T) *esengine.Engine {
	t.Helper()

	esURL := os.Getenv("ELASTICSEARCH_URL")
	if esURL == "" {
		t.Skip("ELASTICSEARCH_URL not set — skipping Elasticsearch integration tests")
	}

	// Use a unique alias per test run to avoid data conflicts.
	alias := fmt.Sprintf("test_catalog_products_%d", time.Now().UnixNano())

	eng, err := esengine.New(esURL, alias, testLogger())
	require.NoError(t, err, "failed to create Elasticsearch engine")

	t.Cleanup(func() {
		_ = eng.DeleteIndex(context.Background())
	})

	return eng
}

func newTestDocument(name, description string, price float64) domain.Document {
	now := time.Now().UTC()
	return domain.Document{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		Price:         price,
		OriginalPrice: price,
		CategoryID:    "cat-1",
		CategoryName:  "Electronics",
		Stock:         5,
		Rating:        4.0,
		ReviewCount:   10,
		ViewCount:     100,
		Tags:          []string{"test"},
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
		SuggestInputs: domain.SuggestInputs{Input: []string{name}, Weight: 1},
	}
}

func newFilter(query string) *domain.FilterRequest {
	f := &domain.FilterRequest{Query: query}
	f.Normalize()
	return f
}

func TestES_Ping(t *testing.T) {
	eng := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := eng.Ping(ctx)
	assert.NoError(t, err)
}

func TestES_IndexAndSearch(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d := newTestDocument("Wireless Bluetooth Headphones", "High quality noise cancelling headphones", 990_000)
	require.NoError(t, eng.Index(ctx, &d))

	result, err := eng.Search(ctx, newFilter("bluetooth"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pagination.TotalDocuments)
	assert.Equal(t, d.ID, result.Hits[0].Document.ID)
}

func TestES_SearchExcludesInactive(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d := newTestDocument("Hidden Gadget", "Should never appear", 10_000)
	d.IsActive = false
	require.NoError(t, eng.Index(ctx, &d))

	result, err := eng.Search(ctx, newFilter("hidden gadget"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Pagination.TotalDocuments)
}

func TestES_SearchHighlights(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d := newTestDocument("Highlighted Speaker", "A portable speaker", 450_000)
	require.NoError(t, eng.Index(ctx, &d))

	result, err := eng.Search(ctx, newFilter("speaker"))
	require.NoError(t, err)
	require.Equal(t, 1, result.Pagination.TotalDocuments)
	assert.Contains(t, result.Hits[0].Highlights["name"][0], "<mark>")
}

func TestES_Delete(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d := newTestDocument("Deletable Gadget", "Will be deleted", 99_000)
	require.NoError(t, eng.Index(ctx, &d))

	require.NoError(t, eng.Delete(ctx, d.ID))

	result, err := eng.Search(ctx, newFilter("deletable"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Pagination.TotalDocuments)
}

func TestES_DeleteNonExistent(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	err := eng.Delete(ctx, "non-existent-id")
	assert.NoError(t, err)
}

func TestES_BulkIndex(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	docs := []domain.Document{
		newTestDocument("Bulk Item Alpha", "First bulk item", 100_000),
		newTestDocument("Bulk Item Beta", "Second bulk item", 200_000),
		newTestDocument("Bulk Item Gamma", "Third bulk item", 300_000),
	}

	result, err := eng.BulkIndex(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Indexed)
	assert.Empty(t, result.FailedIDs)
}

func TestES_Rebuild_SwapsGeneration(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	old := newTestDocument("Stale Item", "From before the rebuild", 50_000)
	require.NoError(t, eng.Index(ctx, &old))

	fresh := newTestDocument("Fresh Item", "From the rebuild", 60_000)
	result, err := eng.Rebuild(ctx, []domain.Document{fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)

	all, err := eng.Search(ctx, newFilter(""))
	require.NoError(t, err)
	require.Equal(t, 1, all.Pagination.TotalDocuments)
	assert.Equal(t, fresh.ID, all.Hits[0].Document.ID)
}

func TestES_FilterByPriceRange(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d1 := newTestDocument("Budget Phone", "A budget smartphone", 199_000)
	d2 := newTestDocument("Mid Phone", "A mid-range smartphone", 499_000)
	d3 := newTestDocument("Premium Phone", "A premium smartphone", 999_000)

	_, err := eng.BulkIndex(ctx, []domain.Document{d1, d2, d3})
	require.NoError(t, err)

	minPrice := 200_000.0
	maxPrice := 600_000.0
	filter := newFilter("phone")
	filter.PriceMin = &minPrice
	filter.PriceMax = &maxPrice

	result, err := eng.Search(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pagination.TotalDocuments)
	assert.Equal(t, d2.ID, result.Hits[0].Document.ID)
}

func TestES_FilterByOnSale(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d1 := newTestDocument("Discounted Monitor", "A monitor on sale", 2_000_000)
	d1.OriginalPrice = 2_500_000
	d1.IsOnSale = true

	d2 := newTestDocument("Full Price Monitor", "A monitor at list price", 2_000_000)

	_, err := eng.BulkIndex(ctx, []domain.Document{d1, d2})
	require.NoError(t, err)

	onSale := true
	filter := newFilter("monitor")
	filter.OnSale = &onSale

	result, err := eng.Search(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pagination.TotalDocuments)
	assert.Equal(t, d1.ID, result.Hits[0].Document.ID)
}

func TestES_SortByPrice(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d1 := newTestDocument("Sort Item A", "An item", 500_000)
	d2 := newTestDocument("Sort Item B", "An item", 100_000)
	d3 := newTestDocument("Sort Item C", "An item", 300_000)

	_, err := eng.BulkIndex(ctx, []domain.Document{d1, d2, d3})
	require.NoError(t, err)

	filter := newFilter("sort item")
	filter.SortBy = domain.SortPriceLow

	result, err := eng.Search(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, 3, result.Pagination.TotalDocuments)
	assert.Equal(t, 100_000.0, result.Hits[0].Document.Price)
	assert.Equal(t, 300_000.0, result.Hits[1].Document.Price)
	assert.Equal(t, 500_000.0, result.Hits[2].Document.Price)
}

func TestES_Facets(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d1 := newTestDocument("Facet Phone", "A smartphone", 80_000)
	d2 := newTestDocument("Facet Laptop", "A laptop", 1_500_000)
	d2.CategoryName = "Laptops"

	_, err := eng.BulkIndex(ctx, []domain.Document{d1, d2})
	require.NoError(t, err)

	facets, err := eng.Facets(ctx, newFilter(""))
	require.NoError(t, err)

	assert.Len(t, facets.Categories, 2)
	require.NotEmpty(t, facets.PriceRanges)
	// 80k lands below the first edge, 1.5M between 1M and 5M.
	assert.Equal(t, 1, facets.PriceRanges[0].Count)
}

func TestES_Popular(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	d1 := newTestDocument("Popular Gizmo", "Very viewed", 10_000)
	d1.ViewCount = 9000
	d2 := newTestDocument("Quiet Gizmo", "Rarely viewed", 10_000)
	d2.ViewCount = 10
	d3 := newTestDocument("Featured Gizmo", "Promoted", 10_000)
	d3.IsFeatured = true

	_, err := eng.BulkIndex(ctx, []domain.Document{d1, d2, d3})
	require.NoError(t, err)

	docs, err := eng.Popular(ctx, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, d3.ID, docs[0].ID)
	assert.Equal(t, d1.ID, docs[1].ID)
}

func TestES_MoreLikeThis_UnknownReference(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.MoreLikeThis(ctx, "unknown-id", 5)
	assert.Error(t, err)
}

func TestES_Trending(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	recent := newTestDocument("Recent Arrival", "Just added", 10_000)
	stale := newTestDocument("Old Arrival", "Added long ago", 10_000)
	stale.CreatedAt = time.Now().UTC().Add(-60 * 24 * time.Hour)

	_, err := eng.BulkIndex(ctx, []domain.Document{recent, stale})
	require.NoError(t, err)

	docs, err := eng.Trending(ctx, 10, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, recent.ID, docs[0].ID)
}

func TestES_DefaultAliasName(t *testing.T) {
	assert.Equal(t, "catalog_products", esengine.DefaultAliasName)
}
