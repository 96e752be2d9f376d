package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopizen/catalogsearch/internal/cache"
	"github.com/shopizen/catalogsearch/internal/catalog"
	"github.com/shopizen/catalogsearch/internal/domain"
	"github.com/shopizen/catalogsearch/internal/engine"
	"github.com/shopizen/catalogsearch/internal/indexer"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
)

// SearchService implements the business logic for catalog search: querying,
// suggestions, discovery, and the write paths that keep the index in sync.
type SearchService struct {
	engine  engine.SearchEngine
	indexer *indexer.Indexer
	cache   *cache.ResultCache // nil when caching is disabled
	logger  *slog.Logger
}

// NewSearchService creates a new search service. resultCache may be nil.
func NewSearchService(eng engine.SearchEngine, idx *indexer.Indexer, resultCache *cache.ResultCache, logger *slog.Logger) *SearchService {
	return &SearchService{
		engine:  eng,
		indexer: idx,
		cache:   resultCache,
		logger:  logger,
	}
}

// Search executes a filter request. Results are served from the cache when
// possible; engine failures surface as search-unavailable.
func (s *SearchService) Search(ctx context.Context, filter *domain.FilterRequest, withFacets bool) (*domain.SearchResult, error) {
	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	prefix := "search"
	if withFacets {
		prefix = "search+facets"
	}

	if s.cache != nil {
		var cached domain.SearchResult
		if s.cache.Get(ctx, prefix, filter, &cached) {
			s.logger.DebugContext(ctx, "search served from cache", slog.String("query", filter.Query))
			return &cached, nil
		}
	}

	result, err := s.engine.Search(ctx, filter)
	if err != nil {
		return nil, apperrors.SearchUnavailable(fmt.Errorf("search: %w", err))
	}

	if withFacets {
		facets, err := s.engine.Facets(ctx, filter)
		if err != nil {
			return nil, apperrors.SearchUnavailable(fmt.Errorf("search facets: %w", err))
		}
		result.Facets = facets
	}

	if s.cache != nil {
		s.cache.Set(ctx, prefix, filter, result)
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", filter.Query),
		slog.Int("total", result.Pagination.TotalDocuments),
		slog.Int64("took_ms", result.TookMs),
	)

	return result, nil
}

// Facets computes the facet counts for a filter without fetching documents.
func (s *SearchService) Facets(ctx context.Context, filter *domain.FilterRequest) (*domain.FacetResult, error) {
	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached domain.FacetResult
		if s.cache.Get(ctx, "facets", filter, &cached) {
			return &cached, nil
		}
	}

	facets, err := s.engine.Facets(ctx, filter)
	if err != nil {
		return nil, apperrors.SearchUnavailable(fmt.Errorf("facets: %w", err))
	}

	if s.cache != nil {
		s.cache.Set(ctx, "facets", filter, facets)
	}
	return facets, nil
}

// IndexRecord converts and indexes one catalog record pushed by a caller.
func (s *SearchService) IndexRecord(ctx context.Context, rec *catalog.Record) error {
	if err := s.indexer.Upsert(ctx, rec); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// DeleteDocument removes a document from the index. Idempotent.
func (s *SearchService) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidRecord("id", "must not be empty")
	}
	if err := s.indexer.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// SyncRecord reconciles one record with the catalog by id.
func (s *SearchService) SyncRecord(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidRecord("id", "must not be empty")
	}
	if err := s.indexer.Sync(ctx, id); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// Reindex rebuilds the whole index from the catalog. A partial bulk failure
// is reported alongside the result rather than discarding it.
func (s *SearchService) Reindex(ctx context.Context) (*engine.BulkResult, error) {
	result, err := s.indexer.BulkRebuild(ctx)
	if err != nil && !isPartialFailure(err) {
		return nil, err
	}
	s.invalidateCache(ctx)
	return result, err
}

// ReindexCategory re-syncs all records of one category.
func (s *SearchService) ReindexCategory(ctx context.Context, categoryID string) (*engine.BulkResult, error) {
	if categoryID == "" {
		return nil, apperrors.InvalidRecord("category_id", "must not be empty")
	}
	result, err := s.indexer.ReindexCategory(ctx, categoryID)
	if err != nil && !isPartialFailure(err) {
		return nil, err
	}
	s.invalidateCache(ctx)
	return result, err
}

func isPartialFailure(err error) bool {
	var partial *apperrors.PartialBulkFailure
	return errors.As(err, &partial)
}

func (s *SearchService) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
