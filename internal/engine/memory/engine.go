package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/shopizen/catalogsearch/internal/domain"
	"github.com/shopizen/catalogsearch/internal/engine"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
)

// Engine is an in-memory implementation of the SearchEngine interface. It
// mirrors the observable semantics of the Elasticsearch engine closely
// enough for service-level tests: substring matching for short queries,
// edit-distance tolerant matching for longer ones, facet aggregation,
// more-like-this term overlap, and generation-swap rebuilds.
//
// Thread-safe via sync.RWMutex. While a rebuild is in flight, single-document
// writes are applied to both the current and the incoming generation so that
// no write racing the rebuild is lost.
type Engine struct {
	mu      sync.RWMutex
	current map[string]domain.Document
	staging map[string]domain.Document

	rebuildMu sync.Mutex
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		current: make(map[string]domain.Document),
	}
}

// Index adds or updates a single document.
func (e *Engine) Index(_ context.Context, doc *domain.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current[doc.ID] = *doc
	if e.staging != nil {
		e.staging[doc.ID] = *doc
	}
	return nil
}

// Delete removes a document by id. Absent documents are a no-op.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.current, id)
	if e.staging != nil {
		delete(e.staging, id)
	}
	return nil
}

// BulkIndex adds or updates multiple documents. Documents without an id are
// collected as failures without aborting the batch.
func (e *Engine) BulkIndex(_ context.Context, docs []domain.Document) (*engine.BulkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &engine.BulkResult{}
	for i := range docs {
		if docs[i].ID == "" {
			res.FailedIDs = append(res.FailedIDs, "")
			continue
		}
		e.current[docs[i].ID] = docs[i]
		if e.staging != nil {
			e.staging[docs[i].ID] = docs[i]
		}
		res.Indexed++
	}
	return res, nil
}

// Rebuild replaces the index contents with docs via a generation swap.
// Readers keep seeing the old generation until the swap, and writes issued
// during the rebuild land in the incoming generation through the dual-write
// in Index/Delete.
func (e *Engine) Rebuild(_ context.Context, docs []domain.Document) (*engine.BulkResult, error) {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	e.mu.Lock()
	e.staging = make(map[string]domain.Document, len(docs))
	e.mu.Unlock()

	res := &engine.BulkResult{}
	e.mu.Lock()
	for i := range docs {
		if docs[i].ID == "" {
			res.FailedIDs = append(res.FailedIDs, "")
			continue
		}
		// A racing single-document write wins over the rebuild snapshot.
		if _, exists := e.staging[docs[i].ID]; !exists {
			e.staging[docs[i].ID] = docs[i]
		}
		res.Indexed++
	}
	e.current = e.staging
	e.staging = nil
	e.mu.Unlock()

	return res, nil
}

// Search executes a filter request against the in-memory index.
func (e *Engine) Search(_ context.Context, filter *domain.FilterRequest) (*domain.SearchResult, error) {
	start := time.Now()

	e.mu.RLock()
	matched := make([]scoredDoc, 0)
	terms := queryTerms(filter.Query)
	for _, d := range e.current {
		score, ok := e.matches(d, filter, terms)
		if !ok {
			continue
		}
		matched = append(matched, scoredDoc{doc: d, score: score})
	}
	e.mu.RUnlock()

	sortDocs(matched, filter.SortBy)

	total := len(matched)
	offset := filter.Offset()
	if offset > total {
		offset = total
	}
	end := offset + filter.Limit
	if end > total {
		end = total
	}

	hits := make([]domain.Hit, 0, end-offset)
	for _, sd := range matched[offset:end] {
		hit := domain.Hit{Document: sd.doc, Score: sd.score}
		if filter.Query != "" {
			hit.Highlights = highlight(sd.doc, terms)
		}
		hits = append(hits, hit)
	}

	return &domain.SearchResult{
		Hits:       hits,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, total),
		TookMs:     time.Since(start).Milliseconds(),
	}, nil
}

// Facets computes aggregations over the filtered result set. Query, category,
// price, and rating constraints apply; the boolean flag dimensions are left
// unconstrained so their own facet counts remain meaningful.
func (e *Engine) Facets(_ context.Context, filter *domain.FilterRequest) (*domain.FacetResult, error) {
	facetFilter := *filter
	facetFilter.OnSale = nil
	facetFilter.Featured = nil

	e.mu.RLock()
	terms := queryTerms(facetFilter.Query)
	var docs []domain.Document
	for _, d := range e.current {
		if _, ok := e.matches(d, &facetFilter, terms); ok {
			docs = append(docs, d)
		}
	}
	e.mu.RUnlock()

	return aggregate(docs), nil
}

// Popular returns the top active documents by (featured, viewCount, rating).
func (e *Engine) Popular(_ context.Context, limit int) ([]domain.Document, error) {
	e.mu.RLock()
	var docs []domain.Document
	for _, d := range e.current {
		if d.IsActive {
			docs = append(docs, d)
		}
	}
	e.mu.RUnlock()

	sortByPopularity(docs)
	return truncate(docs, limit), nil
}

// MatchSubstring returns active documents whose name, description, or tags
// contain text, case-insensitively, ordered by popularity.
func (e *Engine) MatchSubstring(_ context.Context, text string, limit int) ([]domain.Document, error) {
	needle := strings.ToLower(strings.TrimSpace(text))

	e.mu.RLock()
	var docs []domain.Document
	for _, d := range e.current {
		if !d.IsActive {
			continue
		}
		if containsFold(d.Name, needle) || containsFold(d.Description, needle) || anyContainsFold(d.Tags, needle) {
			docs = append(docs, d)
		}
	}
	e.mu.RUnlock()

	sortByPopularity(docs)
	return truncate(docs, limit), nil
}

// MoreLikeThis returns active documents sharing at least 30% of the reference
// document's terms, scored by shared-term count.
func (e *Engine) MoreLikeThis(_ context.Context, id string, limit int) ([]domain.Document, error) {
	e.mu.RLock()
	ref, ok := e.current[id]
	e.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("document", id)
	}

	refTerms := docTerms(ref)
	if len(refTerms) == 0 {
		return []domain.Document{}, nil
	}

	e.mu.RLock()
	var matched []scoredDoc
	for _, d := range e.current {
		if !d.IsActive || d.ID == id {
			continue
		}
		shared := 0
		for t := range docTerms(d) {
			if _, ok := refTerms[t]; ok {
				shared++
			}
		}
		if float64(shared)/float64(len(refTerms)) >= 0.30 {
			matched = append(matched, scoredDoc{doc: d, score: float64(shared)})
		}
	}
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].doc.ID < matched[j].doc.ID
	})

	docs := make([]domain.Document, 0, len(matched))
	for _, sd := range matched {
		docs = append(docs, sd.doc)
	}
	return truncate(docs, limit), nil
}

// Trending returns active documents created within the window, ordered by
// (viewCount desc, rating desc, createdAt desc).
func (e *Engine) Trending(_ context.Context, limit int, window time.Duration) ([]domain.Document, error) {
	cutoff := time.Now().Add(-window)

	e.mu.RLock()
	var docs []domain.Document
	for _, d := range e.current {
		if d.IsActive && !d.CreatedAt.Before(cutoff) {
			docs = append(docs, d)
		}
	}
	e.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].ViewCount != docs[j].ViewCount {
			return docs[i].ViewCount > docs[j].ViewCount
		}
		if docs[i].Rating != docs[j].Rating {
			return docs[i].Rating > docs[j].Rating
		}
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return truncate(docs, limit), nil
}

// --- matching ---

type scoredDoc struct {
	doc   domain.Document
	score float64
}

// Field weights mirroring the fuzzy multi-match boosts.
const (
	weightName        = 3
	weightDescription = 2
	weightCategory    = 2
	weightTags        = 1
)

// matches checks a document against the filter and returns a relevance score.
// Inactive documents never match, regardless of filter input.
func (e *Engine) matches(d domain.Document, filter *domain.FilterRequest, terms []string) (float64, bool) {
	if !d.IsActive {
		return 0, false
	}

	if filter.CategoryID != "" && d.CategoryID != filter.CategoryID {
		return 0, false
	}
	if filter.PriceMin != nil && d.Price < *filter.PriceMin {
		return 0, false
	}
	if filter.PriceMax != nil && d.Price > *filter.PriceMax {
		return 0, false
	}
	if filter.RatingMin != nil && d.Rating < *filter.RatingMin {
		return 0, false
	}
	if filter.RatingMax != nil && d.Rating > *filter.RatingMax {
		return 0, false
	}
	if filter.OnSale != nil && d.IsOnSale != *filter.OnSale {
		return 0, false
	}
	if filter.Featured != nil && d.IsFeatured != *filter.Featured {
		return 0, false
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	if query == "" {
		return 0, true
	}

	// Short queries use substring containment only: fuzzy matching on one or
	// two characters produces too many false positives.
	if len([]rune(query)) <= 2 {
		score := 0.0
		if containsFold(d.Name, query) {
			score += weightName
		}
		if containsFold(d.Description, query) {
			score += weightDescription
		}
		if containsFold(d.CategoryName, query) {
			score += weightCategory
		}
		if anyContainsFold(d.Tags, query) {
			score += weightTags
		}
		return score, score > 0
	}

	score := 0.0
	score += weightName * fieldScore(d.Name, terms)
	score += weightDescription * fieldScore(d.Description, terms)
	score += weightCategory * fieldScore(d.CategoryName, terms)
	for _, tag := range d.Tags {
		score += weightTags * fieldScore(tag, terms)
	}
	return score, score > 0
}

// fieldScore counts query terms matching any token of the field, allowing an
// edit-distance tolerance scaled to term length.
func fieldScore(field string, terms []string) float64 {
	tokens := tokenize(field)
	matched := 0
	for _, term := range terms {
		for _, tok := range tokens {
			if fuzzyEqual(tok, term) {
				matched++
				break
			}
		}
	}
	return float64(matched)
}

// fuzzyEqual reports whether two tokens match within the edit-distance
// tolerance for the term's length: 0 for up to 2 runes, 1 up to 5, 2 beyond.
func fuzzyEqual(token, term string) bool {
	if token == term {
		return true
	}
	n := len([]rune(term))
	var tolerance int
	switch {
	case n <= 2:
		tolerance = 0
	case n <= 5:
		tolerance = 1
	default:
		tolerance = 2
	}
	if tolerance == 0 {
		return false
	}
	return editDistanceAtMost(token, term, tolerance)
}

// editDistanceAtMost reports whether the Levenshtein distance between a and b
// is within max. Bails out early when a row minimum exceeds the bound.
func editDistanceAtMost(a, b string, max int) bool {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la-lb > max || lb-la > max {
		return false
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return false
		}
		prev, curr = curr, prev
	}
	return prev[lb] <= max
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// --- sorting ---

func sortDocs(docs []scoredDoc, sortBy string) {
	var less func(i, j scoredDoc) bool
	switch sortBy {
	case domain.SortOldest:
		less = func(i, j scoredDoc) bool { return i.doc.CreatedAt.Before(j.doc.CreatedAt) }
	case domain.SortPriceLow:
		less = func(i, j scoredDoc) bool { return i.doc.Price < j.doc.Price }
	case domain.SortPriceHigh:
		less = func(i, j scoredDoc) bool { return i.doc.Price > j.doc.Price }
	case domain.SortRating:
		less = func(i, j scoredDoc) bool { return i.doc.Rating > j.doc.Rating }
	case domain.SortPopular:
		less = func(i, j scoredDoc) bool { return i.doc.ViewCount > j.doc.ViewCount }
	case domain.SortName:
		less = func(i, j scoredDoc) bool {
			return strings.ToLower(i.doc.Name) < strings.ToLower(j.doc.Name)
		}
	default: // SortNewest
		less = func(i, j scoredDoc) bool { return i.doc.CreatedAt.After(j.doc.CreatedAt) }
	}

	sort.Slice(docs, func(i, j int) bool {
		if less(docs[i], docs[j]) {
			return true
		}
		if less(docs[j], docs[i]) {
			return false
		}
		// Ties broken by id ascending for determinism.
		return docs[i].doc.ID < docs[j].doc.ID
	})
}

func sortByPopularity(docs []domain.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].IsFeatured != docs[j].IsFeatured {
			return docs[i].IsFeatured
		}
		if docs[i].ViewCount != docs[j].ViewCount {
			return docs[i].ViewCount > docs[j].ViewCount
		}
		if docs[i].Rating != docs[j].Rating {
			return docs[i].Rating > docs[j].Rating
		}
		return docs[i].ID < docs[j].ID
	})
}

// --- facets ---

func aggregate(docs []domain.Document) *domain.FacetResult {
	categories := make(map[string]int)
	tags := make(map[string]int)
	onSale := map[string]int{"true": 0, "false": 0}
	featured := map[string]int{"true": 0, "false": 0}

	priceRanges := rangeBuckets(domain.PriceBucketEdges)
	ratingRanges := rangeBuckets(domain.RatingBucketEdges)

	for _, d := range docs {
		categories[d.CategoryName]++
		for _, t := range d.Tags {
			tags[t]++
		}
		onSale[boolKey(d.IsOnSale)]++
		featured[boolKey(d.IsFeatured)]++
		bucketAdd(priceRanges, d.Price)
		bucketAdd(ratingRanges, d.Rating)
	}

	return &domain.FacetResult{
		Categories:   topBuckets(categories, 20),
		PriceRanges:  priceRanges,
		RatingRanges: ratingRanges,
		Tags:         topBuckets(tags, 20),
		OnSale:       boolBuckets(onSale),
		Featured:     boolBuckets(featured),
	}
}

// rangeBuckets builds contiguous range buckets from sorted edges. The first
// bucket is unbounded below; the last is unbounded above.
func rangeBuckets(edges []float64) []domain.RangeBucket {
	buckets := make([]domain.RangeBucket, 0, len(edges)+1)
	var from *float64
	for i := range edges {
		to := edges[i]
		buckets = append(buckets, domain.RangeBucket{From: from, To: &to})
		from = &edges[i]
	}
	buckets = append(buckets, domain.RangeBucket{From: from})
	return buckets
}

// bucketAdd counts v into its half-open [from, to) bucket, matching the
// semantics of a range aggregation.
func bucketAdd(buckets []domain.RangeBucket, v float64) {
	for i := range buckets {
		if buckets[i].From != nil && v < *buckets[i].From {
			continue
		}
		if buckets[i].To != nil && v >= *buckets[i].To {
			continue
		}
		buckets[i].Count++
		return
	}
}

func topBuckets(counts map[string]int, n int) []domain.FacetBucket {
	buckets := make([]domain.FacetBucket, 0, len(counts))
	for k, c := range counts {
		if k == "" {
			continue
		}
		buckets = append(buckets, domain.FacetBucket{Key: k, Count: c})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Key < buckets[j].Key
	})
	return truncate(buckets, n)
}

func boolBuckets(counts map[string]int) []domain.FacetBucket {
	return []domain.FacetBucket{
		{Key: "true", Count: counts["true"]},
		{Key: "false", Count: counts["false"]},
	}
}

func boolKey(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// --- text helpers ---

func queryTerms(query string) []string {
	return tokenize(strings.ToLower(strings.TrimSpace(query)))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// docTerms collects the unique terms of the fields more-like-this compares,
// dropping single-rune tokens.
func docTerms(d domain.Document) map[string]struct{} {
	terms := make(map[string]struct{})
	add := func(s string) {
		for _, t := range tokenize(s) {
			if len([]rune(t)) >= 2 {
				terms[t] = struct{}{}
			}
		}
	}
	add(d.Name)
	add(d.Description)
	add(d.CategoryName)
	for _, tag := range d.Tags {
		add(tag)
	}
	return terms
}

func containsFold(haystack, needle string) bool {
	return needle != "" && strings.Contains(strings.ToLower(haystack), needle)
}

func anyContainsFold(values []string, needle string) bool {
	for _, v := range values {
		if containsFold(v, needle) {
			return true
		}
	}
	return false
}

// highlight wraps matched terms in <mark> tags for the highlightable fields.
func highlight(d domain.Document, terms []string) map[string][]string {
	out := make(map[string][]string)
	for field, value := range map[string]string{
		"name":         d.Name,
		"description":  d.Description,
		"categoryName": d.CategoryName,
	} {
		if snippet, ok := highlightField(value, terms); ok {
			out[field] = []string{snippet}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func highlightField(value string, terms []string) (string, bool) {
	lower := strings.ToLower(value)
	for _, term := range terms {
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		end := idx + len(term)
		return value[:idx] + "<mark>" + value[idx:end] + "</mark>" + value[end:], true
	}
	return "", false
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	if items == nil {
		return []T{}
	}
	return items
}
