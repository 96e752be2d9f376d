package engine

import (
	"context"
	"time"

	"github.com/shopizen/catalogsearch/internal/domain"
)

// BulkResult reports the outcome of a bulk write. Per-item failures do not
// abort the operation; failed ids are collected for caller-driven retry.
type BulkResult struct {
	Indexed   int
	FailedIDs []string
}

// SearchEngine defines the capability contract this engine requires from a
// text-search backend. Implementations may use Elasticsearch or in-memory
// storage. The indexer is the only writer; all other callers are read-only,
// and consistency between a write and a subsequent read is eventual, bounded
// by the backend's refresh interval.
type SearchEngine interface {
	// Index adds or updates a single document, keyed by its id.
	Index(ctx context.Context, doc *domain.Document) error

	// Delete removes a document by id. Absent documents are a no-op.
	Delete(ctx context.Context, id string) error

	// BulkIndex adds or updates multiple documents in the current generation.
	BulkIndex(ctx context.Context, docs []domain.Document) (*BulkResult, error)

	// Rebuild replaces the entire index with the given documents using a
	// generation swap: the new generation is built fully, then reads are
	// atomically repointed. Readers never observe a partially-built or empty
	// index, and single-document writes racing the rebuild are applied to the
	// incoming generation as well.
	Rebuild(ctx context.Context, docs []domain.Document) (*BulkResult, error)

	// Search executes a filter request and returns matching documents.
	// Only isActive documents are ever matchable.
	Search(ctx context.Context, filter *domain.FilterRequest) (*domain.SearchResult, error)

	// Facets computes count breakdowns over the filtered result set.
	Facets(ctx context.Context, filter *domain.FilterRequest) (*domain.FacetResult, error)

	// Popular returns the top active documents ordered by
	// (isFeatured desc, viewCount desc, rating desc).
	Popular(ctx context.Context, limit int) ([]domain.Document, error)

	// MatchSubstring returns active documents whose name, description, or
	// tags contain the given text, case-insensitively, ordered like Popular.
	MatchSubstring(ctx context.Context, text string, limit int) ([]domain.Document, error)

	// MoreLikeThis returns active documents textually similar to the
	// referenced one, excluding the reference itself.
	MoreLikeThis(ctx context.Context, id string, limit int) ([]domain.Document, error)

	// Trending returns active documents created within the window, ordered by
	// (viewCount desc, rating desc, createdAt desc).
	Trending(ctx context.Context, limit int, window time.Duration) ([]domain.Document, error)
}
