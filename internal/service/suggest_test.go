package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopizen/catalogsearch/internal/catalog"
	"github.com/shopizen/catalogsearch/internal/domain"
)

func suggestionTexts(suggestions []domain.Suggestion) []string {
	texts := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		texts = append(texts, s.Text)
	}
	return texts
}

func TestSuggest_PrefixMatchesProduct(t *testing.T) {
	svc, _ := newTestService()
	seedPhones(t, svc)

	suggestions, err := svc.Suggest(context.Background(), "ip", 5)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	// The iPhone product suggestion must rank above every category and tag
	// suggestion.
	productIdx, otherIdx := -1, len(suggestions)
	for i, s := range suggestions {
		if s.Kind == domain.SuggestionProduct && s.Text == "iPhone 15 Pro" {
			productIdx = i
		}
		if s.Kind != domain.SuggestionProduct && i < otherIdx {
			otherIdx = i
		}
	}
	require.GreaterOrEqual(t, productIdx, 0)
	assert.Less(t, productIdx, otherIdx)
}

func TestSuggest_EmptyPrefixKeepsPopularityOrder(t *testing.T) {
	svc, _ := newTestService()
	seedPhones(t, svc)

	suggestions, err := svc.Suggest(context.Background(), "", 5)
	require.NoError(t, err)

	require.Len(t, suggestions, 2)
	for _, s := range suggestions {
		assert.Equal(t, domain.SuggestionProduct, s.Kind)
	}
	// The featured iPhone must lead even though the non-featured Galaxy's
	// viewCount-based score is numerically larger.
	assert.Equal(t, []string{"iPhone 15 Pro", "Samsung Galaxy S24"}, suggestionTexts(suggestions))
}

func TestSuggest_DescriptionMatchStillSuggestsProduct(t *testing.T) {
	svc, _ := newTestService()
	seedPhones(t, svc)

	// Both seeded descriptions contain "flagship"; neither name does. Each
	// match still contributes its product and category suggestions.
	suggestions, err := svc.Suggest(context.Background(), "flagship", 10)
	require.NoError(t, err)

	texts := suggestionTexts(suggestions)
	assert.Contains(t, texts, "iPhone 15 Pro")
	assert.Contains(t, texts, "Samsung Galaxy S24")
	assert.Contains(t, texts, "Smartphones")
}

func TestSuggest_IncludesCategoryAndTagMatches(t *testing.T) {
	svc, _ := newTestService()
	seedPhones(t, svc)

	suggestions, err := svc.Suggest(context.Background(), "smart", 10)
	require.NoError(t, err)

	kinds := make(map[string]bool)
	for _, s := range suggestions {
		kinds[s.Kind] = true
	}
	assert.True(t, kinds[domain.SuggestionCategory])
	assert.True(t, kinds[domain.SuggestionTag])
}

func TestSuggest_DeduplicatesByText(t *testing.T) {
	svc, _ := newTestService()
	seedPhones(t, svc)

	// Both phones carry the "smartphone" tag; it must appear once.
	suggestions, err := svc.Suggest(context.Background(), "smartphone", 10)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, s := range suggestions {
		seen[s.Text]++
	}
	assert.Equal(t, 1, seen["smartphone"])
}

func TestSuggest_CategoryOutranksTagOnTie(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	rec := catalog.Record{
		ID:         "7",
		Name:       "Plain Widget",
		Price:      1000,
		Tags:       []string{"smartwatch"},
		CategoryID: "cat-phones",
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, svc.IndexRecord(ctx, &rec))

	suggestions, err := svc.Suggest(ctx, "smart", 10)
	require.NoError(t, err)

	var catIdx, tagIdx int
	for i, s := range suggestions {
		switch s.Kind {
		case domain.SuggestionCategory:
			catIdx = i
		case domain.SuggestionTag:
			tagIdx = i
		}
	}
	assert.Less(t, catIdx, tagIdx)
}

func TestSuggest_TruncatesToLimit(t *testing.T) {
	svc, _ := newTestService()
	seedPhones(t, svc)

	suggestions, err := svc.Suggest(context.Background(), "s", 1)
	require.NoError(t, err)

	assert.Len(t, suggestions, 1)
}
