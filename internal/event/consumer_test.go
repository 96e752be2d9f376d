package event

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopizen/catalogsearch/internal/catalog"
	"github.com/shopizen/catalogsearch/internal/domain"
	"github.com/shopizen/catalogsearch/internal/engine/memory"
	"github.com/shopizen/catalogsearch/internal/indexer"
	"github.com/shopizen/catalogsearch/internal/service"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
	pkgkafka "github.com/shopizen/catalogsearch/pkg/kafka"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCatalog struct {
	records    map[string]catalog.Record
	categories map[string]catalog.Category
}

func (f *fakeCatalog) GetRecord(_ context.Context, id string) (*catalog.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, apperrors.NotFound("record", id)
	}
	return &rec, nil
}

func (f *fakeCatalog) ListRecords(_ context.Context, filter catalog.ListFilter) (*catalog.RecordPage, error) {
	var recs []catalog.Record
	for _, rec := range f.records {
		if filter.CategoryID != "" && rec.CategoryID != filter.CategoryID {
			continue
		}
		recs = append(recs, rec)
	}
	return &catalog.RecordPage{Records: recs, Page: 1, TotalPages: 1, TotalCount: len(recs)}, nil
}

func (f *fakeCatalog) GetCategory(_ context.Context, id string) (*catalog.Category, error) {
	cat, ok := f.categories[id]
	if !ok {
		return nil, apperrors.NotFound("category", id)
	}
	return &cat, nil
}

func newTestConsumer(t *testing.T) (*Consumer, *memory.Engine, *fakeCatalog) {
	t.Helper()
	eng := memory.New()
	reader := &fakeCatalog{
		records:    make(map[string]catalog.Record),
		categories: map[string]catalog.Category{"cat-1": {ID: "cat-1", Name: "Electronics"}},
	}
	idx := indexer.New(eng, reader, testLogger())
	svc := service.NewSearchService(eng, idx, nil, testLogger())
	return NewConsumer(svc, testLogger()), eng, reader
}

func newEvent(t *testing.T, eventType, id string) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(eventType, id, "record", "catalog-service", RecordEventData{ID: id})
	require.NoError(t, err)
	return ev
}

func searchTotal(t *testing.T, eng *memory.Engine, query string) int {
	t.Helper()
	filter := &domain.FilterRequest{Query: query}
	filter.Normalize()
	res, err := eng.Search(context.Background(), filter)
	require.NoError(t, err)
	return res.Pagination.TotalDocuments
}

func testRecord(id, name string) catalog.Record {
	return catalog.Record{
		ID:         id,
		Name:       name,
		Price:      1000,
		CategoryID: "cat-1",
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestHandle_RecordCreatedIndexesDocument(t *testing.T) {
	consumer, eng, reader := newTestConsumer(t)
	reader.records["1"] = testRecord("1", "Fresh Gadget")

	err := consumer.Handle(context.Background(), newEvent(t, TopicRecordCreated, "1"))
	require.NoError(t, err)

	assert.Equal(t, 1, searchTotal(t, eng, "gadget"))
}

func TestHandle_RecordUpdatedReflectsCatalogState(t *testing.T) {
	consumer, eng, reader := newTestConsumer(t)
	reader.records["1"] = testRecord("1", "Original Name")
	require.NoError(t, consumer.Handle(context.Background(), newEvent(t, TopicRecordCreated, "1")))

	reader.records["1"] = testRecord("1", "Renamed Gadget")
	require.NoError(t, consumer.Handle(context.Background(), newEvent(t, TopicRecordUpdated, "1")))

	assert.Equal(t, 1, searchTotal(t, eng, "renamed"))
	assert.Equal(t, 0, searchTotal(t, eng, "original"))
}

func TestHandle_UpdateForVanishedRecordDeletes(t *testing.T) {
	consumer, eng, reader := newTestConsumer(t)
	reader.records["1"] = testRecord("1", "Short Lived")
	require.NoError(t, consumer.Handle(context.Background(), newEvent(t, TopicRecordCreated, "1")))

	delete(reader.records, "1")
	require.NoError(t, consumer.Handle(context.Background(), newEvent(t, TopicRecordUpdated, "1")))

	assert.Equal(t, 0, searchTotal(t, eng, "short"))
}

func TestHandle_RecordDeletedRemovesDocument(t *testing.T) {
	consumer, eng, reader := newTestConsumer(t)
	reader.records["1"] = testRecord("1", "Doomed Gadget")
	require.NoError(t, consumer.Handle(context.Background(), newEvent(t, TopicRecordCreated, "1")))

	require.NoError(t, consumer.Handle(context.Background(), newEvent(t, TopicRecordDeleted, "1")))

	assert.Equal(t, 0, searchTotal(t, eng, "doomed"))
}

func TestHandle_DeleteIsIdempotent(t *testing.T) {
	consumer, _, _ := newTestConsumer(t)

	err := consumer.Handle(context.Background(), newEvent(t, TopicRecordDeleted, "never-indexed"))

	assert.NoError(t, err)
}

func TestHandle_CategoryUpdatedRefreshesNames(t *testing.T) {
	consumer, eng, reader := newTestConsumer(t)
	reader.records["1"] = testRecord("1", "Categorized Gadget")
	require.NoError(t, consumer.Handle(context.Background(), newEvent(t, TopicRecordCreated, "1")))

	reader.categories["cat-1"] = catalog.Category{ID: "cat-1", Name: "Gizmos"}
	ev, err := pkgkafka.NewEvent(TopicCategoryUpdated, "cat-1", "category", "catalog-service", CategoryEventData{ID: "cat-1"})
	require.NoError(t, err)
	require.NoError(t, consumer.Handle(context.Background(), ev))

	filter := &domain.FilterRequest{Query: "categorized"}
	filter.Normalize()
	res, err := eng.Search(context.Background(), filter)
	require.NoError(t, err)
	require.Equal(t, 1, res.Pagination.TotalDocuments)
	assert.Equal(t, "Gizmos", res.Hits[0].Document.CategoryName)
}

func TestHandle_UnknownEventTypeIsSkipped(t *testing.T) {
	consumer, _, _ := newTestConsumer(t)

	err := consumer.Handle(context.Background(), newEvent(t, "catalog.record.archived", "1"))

	assert.NoError(t, err)
}
