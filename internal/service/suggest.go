package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopizen/catalogsearch/internal/domain"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
)

// DefaultSuggestLimit is used when the caller asks for no particular count.
const DefaultSuggestLimit = 10

// suggestCandidates is how many documents the engine is asked for before
// texts are extracted and deduplicated; pulling more than the final limit
// keeps variety after dedup collapses repeated names and tags.
const suggestCandidates = 50

// Product suggestion scoring: featured documents get a fixed boost, the
// rest rank by engagement. Category and tag suggestions carry flat scores
// below products.
const (
	featuredSuggestScore = 10
	categorySuggestScore = 5
	tagSuggestScore      = 3
)

// Suggest returns ranked, deduplicated autocomplete suggestions for a
// prefix. An empty prefix yields the most popular documents instead of an
// empty response, in the engine's popularity order.
func (s *SearchService) Suggest(ctx context.Context, prefix string, limit int) ([]domain.Suggestion, error) {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	prefix = strings.TrimSpace(prefix)

	var suggestions []domain.Suggestion
	if prefix == "" {
		docs, err := s.engine.Popular(ctx, suggestCandidates)
		if err != nil {
			return nil, apperrors.SearchUnavailable(fmt.Errorf("suggest: %w", err))
		}
		// Popularity order (featured, views, rating) is already the ranking;
		// re-sorting by score would let a high-view document jump a featured
		// one.
		suggestions = popularSuggestions(docs)
	} else {
		docs, err := s.engine.MatchSubstring(ctx, prefix, suggestCandidates)
		if err != nil {
			return nil, apperrors.SearchUnavailable(fmt.Errorf("suggest: %w", err))
		}
		suggestions = collectSuggestions(docs, prefix)
		rankSuggestions(suggestions)
	}
	suggestions = dedupeSuggestions(suggestions)

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	s.logger.DebugContext(ctx, "suggestions computed",
		slog.String("prefix", prefix),
		slog.Int("count", len(suggestions)),
	)
	return suggestions, nil
}

// popularSuggestions turns popular documents into product suggestions,
// preserving the order they arrived in.
func popularSuggestions(docs []domain.Document) []domain.Suggestion {
	out := make([]domain.Suggestion, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Suggestion{
			Text:  d.Name,
			Kind:  domain.SuggestionProduct,
			Score: productScore(d),
		})
	}
	return out
}

// collectSuggestions extracts suggestion candidates from matched documents.
// Every match contributes its name and its category; a document found
// through its description still suggests the product. Tags are kept only
// where they contain the prefix, so unrelated tags of a matching document
// do not surface.
func collectSuggestions(docs []domain.Document, prefix string) []domain.Suggestion {
	needle := strings.ToLower(prefix)
	var out []domain.Suggestion

	for _, d := range docs {
		out = append(out, domain.Suggestion{
			Text:  d.Name,
			Kind:  domain.SuggestionProduct,
			Score: productScore(d),
		})
		if d.CategoryName != "" {
			out = append(out, domain.Suggestion{
				Text:  d.CategoryName,
				Kind:  domain.SuggestionCategory,
				Score: categorySuggestScore,
			})
		}
		for _, tag := range d.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				out = append(out, domain.Suggestion{
					Text:  tag,
					Kind:  domain.SuggestionTag,
					Score: tagSuggestScore,
				})
			}
		}
	}
	return out
}

func productScore(d domain.Document) float64 {
	if d.IsFeatured {
		return featuredSuggestScore
	}
	return float64(d.ViewCount) + d.Rating
}

// rankSuggestions orders by score, then kind priority, then text for
// determinism.
func rankSuggestions(suggestions []domain.Suggestion) {
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		pi, pj := domain.KindPriority(suggestions[i].Kind), domain.KindPriority(suggestions[j].Kind)
		if pi != pj {
			return pi < pj
		}
		return suggestions[i].Text < suggestions[j].Text
	})
}

// dedupeSuggestions drops repeated texts, keeping the first (best-ranked)
// occurrence. Comparison is case-insensitive so "Apple" the tag cannot
// shadow "apple" the category.
func dedupeSuggestions(suggestions []domain.Suggestion) []domain.Suggestion {
	seen := make(map[string]struct{}, len(suggestions))
	out := suggestions[:0]
	for _, sug := range suggestions {
		key := strings.ToLower(sug.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sug)
	}
	return out
}
