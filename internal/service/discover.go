package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopizen/catalogsearch/internal/domain"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
)

// DefaultSimilarLimit bounds a similar-documents response.
const DefaultSimilarLimit = 10

// DefaultTrendingWindow is how far back trending looks for new documents.
const DefaultTrendingWindow = 30 * 24 * time.Hour

// Similar returns documents similar to the referenced one. An unknown
// reference is an error; a failing similarity query degrades to an empty
// list, since the widget it feeds is never worth breaking a page over.
func (s *SearchService) Similar(ctx context.Context, id string, limit int) ([]domain.Document, error) {
	if id == "" {
		return nil, apperrors.InvalidFilter("id", "must not be empty")
	}
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}

	docs, err := s.engine.MoreLikeThis(ctx, id, limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "similarity query failed, returning empty",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return []domain.Document{}, nil
	}
	return docs, nil
}

// Trending returns documents created within the window, ranked by
// engagement. A non-positive window falls back to the default.
func (s *SearchService) Trending(ctx context.Context, limit int, window time.Duration) ([]domain.Document, error) {
	if limit <= 0 {
		limit = domain.DefaultLimit
	}
	if limit > domain.MaxLimit {
		limit = domain.MaxLimit
	}
	if window <= 0 {
		window = DefaultTrendingWindow
	}

	docs, err := s.engine.Trending(ctx, limit, window)
	if err != nil {
		return nil, apperrors.SearchUnavailable(fmt.Errorf("trending: %w", err))
	}
	return docs, nil
}
