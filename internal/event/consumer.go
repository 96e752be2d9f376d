package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopizen/catalogsearch/internal/service"
	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
	pkgkafka "github.com/shopizen/catalogsearch/pkg/kafka"
)

// Kafka topics for catalog record events consumed by the search service.
var (
	TopicRecordCreated   = pkgkafka.Topic("record", "created")
	TopicRecordUpdated   = pkgkafka.Topic("record", "updated")
	TopicRecordDeleted   = pkgkafka.Topic("record", "deleted")
	TopicCategoryUpdated = pkgkafka.Topic("category", "updated")
)

// RecordEventData is the payload of record events. Events carry only the
// record id; the consumer re-reads the authoritative state from the catalog,
// so stale or reordered events converge on the current truth.
type RecordEventData struct {
	ID string `json:"id"`
}

// CategoryEventData is the payload of category events.
type CategoryEventData struct {
	ID string `json:"id"`
}

// Consumer handles catalog change events and keeps the index in sync.
type Consumer struct {
	searchService *service.SearchService
	logger        *slog.Logger
}

// NewConsumer creates a new event consumer for the search service.
func NewConsumer(searchService *service.SearchService, logger *slog.Logger) *Consumer {
	return &Consumer{
		searchService: searchService,
		logger:        logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicRecordCreated, TopicRecordUpdated:
		return c.handleRecordChanged(ctx, event)
	case TopicRecordDeleted:
		return c.handleRecordDeleted(ctx, event)
	case TopicCategoryUpdated:
		return c.handleCategoryUpdated(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleRecordChanged reconciles a created or updated record with the
// catalog. Sync also covers the case where the record vanished between the
// event and now.
func (c *Consumer) handleRecordChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data RecordEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal record event data: %w", err)
	}

	if err := c.searchService.SyncRecord(ctx, data.ID); err != nil {
		return fmt.Errorf("sync record from event: %w", err)
	}

	c.logger.InfoContext(ctx, "record synced from event",
		slog.String("record_id", data.ID),
		slog.String("event_type", event.EventType),
	)
	return nil
}

// handleRecordDeleted removes a deleted record from the index.
func (c *Consumer) handleRecordDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data RecordEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal record.deleted data: %w", err)
	}

	if err := c.searchService.DeleteDocument(ctx, data.ID); err != nil {
		return fmt.Errorf("delete record from event: %w", err)
	}

	c.logger.InfoContext(ctx, "record removed from index",
		slog.String("record_id", data.ID),
	)
	return nil
}

// handleCategoryUpdated re-syncs the category's records so the denormalized
// categoryName catches up with the rename.
func (c *Consumer) handleCategoryUpdated(ctx context.Context, event *pkgkafka.Event) error {
	var data CategoryEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal category.updated data: %w", err)
	}

	result, err := c.searchService.ReindexCategory(ctx, data.ID)
	if err != nil {
		var partial *apperrors.PartialBulkFailure
		if !errors.As(err, &partial) {
			return fmt.Errorf("reindex category from event: %w", err)
		}
		// Partial failures are not worth replaying the whole event: the
		// skipped records are already logged by the indexer.
		c.logger.WarnContext(ctx, "category reindex completed with failures",
			slog.String("category_id", data.ID),
			slog.Int("failed", len(partial.FailedIDs)),
		)
	}

	c.logger.InfoContext(ctx, "category reindexed from event",
		slog.String("category_id", data.ID),
		slog.Int("indexed", result.Indexed),
	)
	return nil
}
