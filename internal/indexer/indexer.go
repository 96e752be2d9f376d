package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/shopizen/catalogsearch/internal/catalog"
	"github.com/shopizen/catalogsearch/internal/domain"
	"github.com/shopizen/catalogsearch/internal/engine"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
)

// rebuildPageSize is how many records a bulk rebuild pulls from the catalog
// per page.
const rebuildPageSize = 200

// maxWriteAttempts bounds the retries of a single-document engine write
// before the failure is surfaced as index-unavailable.
const maxWriteAttempts = 3

// Indexer converts authoritative catalog records into index documents and
// keeps the search engine in sync with the catalog.
type Indexer struct {
	engine  engine.SearchEngine
	catalog catalog.Reader
	logger  *slog.Logger

	mu         sync.Mutex
	rebuilding bool
	// journal records single-document writes that complete while a rebuild
	// is in flight, keyed by document id. A nil value is a tombstone. The
	// journal is replayed against the new generation after the swap, so a
	// delete racing the rebuild cannot be resurrected by the snapshot.
	journal map[string]*domain.Document
}

// New creates an indexer writing to eng and reading from reader.
func New(eng engine.SearchEngine, reader catalog.Reader, logger *slog.Logger) *Indexer {
	return &Indexer{
		engine:  eng,
		catalog: reader,
		logger:  logger,
	}
}

// BuildDocument converts a catalog record into an index document, deriving
// the denormalized fields. The category name is resolved through the catalog;
// a missing category leaves it empty rather than failing the sync.
func (i *Indexer) BuildDocument(ctx context.Context, rec *catalog.Record) (*domain.Document, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	originalPrice := rec.OriginalPrice
	if originalPrice <= 0 {
		originalPrice = rec.Price
	}

	categoryName := ""
	if rec.CategoryID != "" {
		cat, err := i.catalog.GetCategory(ctx, rec.CategoryID)
		switch {
		case err == nil:
			categoryName = cat.Name
		case errors.Is(err, apperrors.ErrNotFound):
			i.logger.Warn("category not found, indexing without name", "record_id", rec.ID, "category_id", rec.CategoryID)
		default:
			return nil, fmt.Errorf("resolve category %s: %w", rec.CategoryID, err)
		}
	}

	doc := &domain.Document{
		ID:            rec.ID,
		Name:          rec.Name,
		Description:   rec.Description,
		Price:         rec.Price,
		OriginalPrice: originalPrice,
		Discount:      domain.DiscountPercent(rec.Price, originalPrice),
		CategoryID:    rec.CategoryID,
		CategoryName:  categoryName,
		Stock:         rec.Stock,
		Rating:        rec.Rating,
		ReviewCount:   rec.ReviewCount,
		ViewCount:     rec.ViewCount,
		Tags:          rec.Tags,
		IsActive:      rec.IsActive,
		IsFeatured:    rec.IsFeatured,
		// Derived here, never taken from the record: the flag must always
		// agree with the prices.
		IsOnSale:      originalPrice > rec.Price,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
		SuggestInputs: buildSuggestInputs(rec, categoryName),
	}
	return doc, nil
}

// validateRecord rejects records that cannot become valid documents.
func validateRecord(rec *catalog.Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return apperrors.InvalidRecord("id", "must not be empty")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return apperrors.InvalidRecord("name", "must not be empty")
	}
	if rec.Price < 0 {
		return apperrors.InvalidRecord("price", "must not be negative")
	}
	if rec.OriginalPrice < 0 {
		return apperrors.InvalidRecord("original_price", "must not be negative")
	}
	return nil
}

// buildSuggestInputs collects the weighted completion inputs: the record
// name, its tags, and the category name, deduplicated.
func buildSuggestInputs(rec *catalog.Record, categoryName string) domain.SuggestInputs {
	seen := make(map[string]struct{})
	var inputs []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		inputs = append(inputs, s)
	}
	add(rec.Name)
	for _, tag := range rec.Tags {
		add(tag)
	}
	add(categoryName)

	weight := 1
	if rec.IsFeatured {
		weight = domain.FeaturedSuggestWeight
	}
	return domain.SuggestInputs{Input: inputs, Weight: weight}
}

// Upsert builds a document from the record and writes it to the engine,
// retrying transient failures with exponential backoff.
func (i *Indexer) Upsert(ctx context.Context, rec *catalog.Record) error {
	doc, err := i.BuildDocument(ctx, rec)
	if err != nil {
		return err
	}

	if err := i.writeWithRetry(ctx, func() error { return i.engine.Index(ctx, doc) }); err != nil {
		return apperrors.IndexUnavailable(fmt.Errorf("upsert %s: %w", rec.ID, err))
	}
	i.journalWrite(doc.ID, doc)

	i.logger.Info("document upserted", "id", doc.ID, "on_sale", doc.IsOnSale, "discount", doc.Discount)
	return nil
}

// Delete removes a document from the engine. Deleting an absent document is
// not an error.
func (i *Indexer) Delete(ctx context.Context, id string) error {
	if err := i.writeWithRetry(ctx, func() error { return i.engine.Delete(ctx, id) }); err != nil {
		return apperrors.IndexUnavailable(fmt.Errorf("delete %s: %w", id, err))
	}
	i.journalWrite(id, nil)

	i.logger.Info("document deleted", "id", id)
	return nil
}

// journalWrite notes a completed write so an in-flight rebuild can replay it
// against the new generation. Outside a rebuild it is a no-op.
func (i *Indexer) journalWrite(id string, doc *domain.Document) {
	i.mu.Lock()
	if i.journal != nil {
		i.journal[id] = doc
	}
	i.mu.Unlock()
}

// Sync re-reads a record from the catalog and reconciles the index with it:
// existing records are upserted, vanished ones deleted. This makes change
// notifications safe to replay in any order.
func (i *Indexer) Sync(ctx context.Context, id string) error {
	rec, err := i.catalog.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return i.Delete(ctx, id)
		}
		return fmt.Errorf("sync %s: %w", id, err)
	}
	return i.Upsert(ctx, rec)
}

// writeWithRetry runs an engine write, retrying with exponential backoff up
// to maxWriteAttempts total tries.
func (i *Indexer) writeWithRetry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxWriteAttempts),
	)
	return err
}

// ErrRebuildInProgress is returned when a bulk rebuild is requested while
// another is still running.
var ErrRebuildInProgress = errors.New("rebuild already in progress")

// BulkRebuild streams every record from the catalog, converts them, and
// rebuilds the engine's index generation in one swap. Records that fail
// conversion are skipped and reported; the rebuild itself still completes.
// Only one rebuild may run at a time.
func (i *Indexer) BulkRebuild(ctx context.Context) (*engine.BulkResult, error) {
	i.mu.Lock()
	if i.rebuilding {
		i.mu.Unlock()
		return nil, ErrRebuildInProgress
	}
	i.rebuilding = true
	i.journal = make(map[string]*domain.Document)
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.rebuilding = false
		i.journal = nil
		i.mu.Unlock()
	}()

	start := time.Now()

	var docs []domain.Document
	var failedIDs []string

	page := 1
	for {
		recPage, err := i.catalog.ListRecords(ctx, catalog.ListFilter{Page: page, PerPage: rebuildPageSize})
		if err != nil {
			return nil, fmt.Errorf("list records page %d: %w", page, err)
		}

		for idx := range recPage.Records {
			rec := &recPage.Records[idx]
			doc, err := i.BuildDocument(ctx, rec)
			if err != nil {
				i.logger.Warn("skipping record during rebuild", "id", rec.ID, "error", err)
				failedIDs = append(failedIDs, rec.ID)
				continue
			}
			docs = append(docs, *doc)
		}

		if page >= recPage.TotalPages || len(recPage.Records) == 0 {
			break
		}
		page++
	}

	result, err := i.engine.Rebuild(ctx, docs)
	if err != nil {
		return nil, apperrors.IndexUnavailable(fmt.Errorf("rebuild: %w", err))
	}
	result.FailedIDs = append(failedIDs, result.FailedIDs...)

	i.replayJournal(ctx)

	i.logger.Info("bulk rebuild finished",
		"indexed", result.Indexed,
		"failed", len(result.FailedIDs),
		"duration", time.Since(start).String())

	if len(result.FailedIDs) > 0 {
		return result, &apperrors.PartialBulkFailure{Indexed: result.Indexed, FailedIDs: result.FailedIDs}
	}
	return result, nil
}

// replayJournal re-applies the single-document writes that completed while
// the rebuild was listing the catalog or loading the new generation. The
// snapshot those writes raced was taken before them, so without the replay
// the swap would revert an upsert or resurrect a deleted document.
func (i *Indexer) replayJournal(ctx context.Context) {
	i.mu.Lock()
	journal := i.journal
	i.journal = make(map[string]*domain.Document)
	i.mu.Unlock()

	for id, doc := range journal {
		var err error
		if doc == nil {
			err = i.writeWithRetry(ctx, func() error { return i.engine.Delete(ctx, id) })
		} else {
			d := doc
			err = i.writeWithRetry(ctx, func() error { return i.engine.Index(ctx, d) })
		}
		if err != nil {
			i.logger.Error("replaying racing write after rebuild failed", "id", id, "error", err)
		}
	}
	if len(journal) > 0 {
		i.logger.Info("replayed writes racing the rebuild", "count", len(journal))
	}
}

// ReindexCategory re-syncs every record of one category without touching the
// rest of the index. Used when a category rename must propagate to the
// denormalized categoryName field.
func (i *Indexer) ReindexCategory(ctx context.Context, categoryID string) (*engine.BulkResult, error) {
	result := &engine.BulkResult{}

	page := 1
	for {
		recPage, err := i.catalog.ListRecords(ctx, catalog.ListFilter{CategoryID: categoryID, Page: page, PerPage: rebuildPageSize})
		if err != nil {
			return nil, fmt.Errorf("list category %s page %d: %w", categoryID, page, err)
		}

		var docs []domain.Document
		for idx := range recPage.Records {
			rec := &recPage.Records[idx]
			doc, err := i.BuildDocument(ctx, rec)
			if err != nil {
				i.logger.Warn("skipping record during category reindex", "id", rec.ID, "error", err)
				result.FailedIDs = append(result.FailedIDs, rec.ID)
				continue
			}
			docs = append(docs, *doc)
		}

		if len(docs) > 0 {
			bulkRes, err := i.engine.BulkIndex(ctx, docs)
			if err != nil {
				return nil, apperrors.IndexUnavailable(fmt.Errorf("reindex category %s: %w", categoryID, err))
			}
			result.Indexed += bulkRes.Indexed
			result.FailedIDs = append(result.FailedIDs, bulkRes.FailedIDs...)
		}

		if page >= recPage.TotalPages || len(recPage.Records) == 0 {
			break
		}
		page++
	}

	i.logger.Info("category reindexed", "category_id", categoryID, "indexed", result.Indexed, "failed", len(result.FailedIDs))

	if len(result.FailedIDs) > 0 {
		return result, &apperrors.PartialBulkFailure{Indexed: result.Indexed, FailedIDs: result.FailedIDs}
	}
	return result, nil
}
