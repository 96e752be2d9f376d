package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/shopizen/catalogsearch/internal/domain"
	"github.com/shopizen/catalogsearch/internal/engine"
)

// Engine is an Elasticsearch-backed implementation of the SearchEngine
// interface. Reads and writes go through an alias; Rebuild creates a fresh
// physical index behind the alias and swaps it in atomically. While a rebuild
// is in flight, single-document writes are duplicated into the incoming index
// so they survive the swap.
type Engine struct {
	client *elasticsearch.Client
	alias  string
	logger *slog.Logger

	mu      sync.RWMutex
	staging string // physical index of the in-flight rebuild, empty otherwise
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    domain.Document     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine connected to the given URL.
// It ensures the alias and an initial index generation exist.
// If alias is empty, DefaultAliasName ("catalog_products") is used.
func New(esURL string, alias string, logger *slog.Logger) (*Engine, error) {
	if alias == "" {
		alias = DefaultAliasName
	}

	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	e := &Engine{
		client: client,
		alias:  alias,
		logger: logger,
	}

	if err := e.ensureAlias(); err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to ensure alias: %w", err)
	}

	return e, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// ensureAlias checks whether the alias exists and, if not, creates the first
// index generation and points the alias at it.
func (e *Engine) ensureAlias() error {
	res, err := e.client.Indices.ExistsAlias([]string{e.alias})
	if err != nil {
		return fmt.Errorf("check alias exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 200 {
		e.logger.Info("elasticsearch alias already exists", "alias", e.alias)
		return nil
	}

	index := e.generationName()
	if err := e.createIndex(index); err != nil {
		return err
	}

	actions := map[string]interface{}{
		"actions": []interface{}{
			map[string]interface{}{
				"add": map[string]interface{}{"index": index, "alias": e.alias},
			},
		},
	}
	if err := e.updateAliases(context.Background(), actions); err != nil {
		return fmt.Errorf("attach alias: %w", err)
	}

	e.logger.Info("elasticsearch index created", "alias", e.alias, "index", index)
	return nil
}

// generationName returns a fresh physical index name under the alias.
func (e *Engine) generationName() string {
	return fmt.Sprintf("%s-%d", e.alias, time.Now().UnixNano())
}

// createIndex creates a physical index with the catalog mapping.
func (e *Engine) createIndex(name string) error {
	res, err := e.client.Indices.Create(
		name,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return fmt.Errorf("create index: %s — %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return fmt.Errorf("create index: unexpected status %s", res.Status())
	}
	return nil
}

// updateAliases submits an atomic alias actions request.
func (e *Engine) updateAliases(ctx context.Context, actions map[string]interface{}) error {
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal alias actions: %w", err)
	}

	res, err := e.client.Indices.UpdateAliases(
		bytes.NewReader(data),
		e.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("update aliases: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return fmt.Errorf("update aliases: %s — %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return fmt.Errorf("update aliases: unexpected status %s", res.Status())
	}
	return nil
}

// writeTargets returns the indices a single-document write must reach: the
// alias, plus the staging index of an in-flight rebuild.
func (e *Engine) writeTargets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.staging == "" {
		return []string{e.alias}
	}
	return []string{e.alias, e.staging}
}

// Index adds or updates a single document.
func (e *Engine) Index(ctx context.Context, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	for _, target := range e.writeTargets() {
		res, err := e.client.Index(
			target,
			bytes.NewReader(data),
			e.client.Index.WithDocumentID(doc.ID),
			e.client.Index.WithRefresh("true"),
			e.client.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch index: %w", err)
		}
		if err := closeAndCheck(res, "elasticsearch index"); err != nil {
			return err
		}
	}

	e.logger.Debug("indexed document", "id", doc.ID, "name", doc.Name)
	return nil
}

// Delete removes a document by its ID. A 404 is not an error: deletes are
// idempotent and the document may never have been indexed.
func (e *Engine) Delete(ctx context.Context, id string) error {
	for _, target := range e.writeTargets() {
		res, err := e.client.Delete(
			target,
			id,
			e.client.Delete.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch delete: %w", err)
		}
		if res.StatusCode == 404 {
			_ = res.Body.Close()
			continue
		}
		if err := closeAndCheck(res, "elasticsearch delete"); err != nil {
			return err
		}
	}

	e.logger.Debug("deleted document", "id", id)
	return nil
}

// BulkIndex adds or updates multiple documents using the bulk NDJSON API.
// Per-item failures are collected rather than failing the whole batch.
func (e *Engine) BulkIndex(ctx context.Context, docs []domain.Document) (*engine.BulkResult, error) {
	return e.bulkIndexInto(ctx, e.alias, docs)
}

func (e *Engine) bulkIndexInto(ctx context.Context, target string, docs []domain.Document) (*engine.BulkResult, error) {
	if len(docs) == 0 {
		return &engine.BulkResult{}, nil
	}

	var buf bytes.Buffer

	for i := range docs {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": target,
				"_id":    docs[i].ID,
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return nil, fmt.Errorf("elasticsearch bulk index: %s — %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return nil, fmt.Errorf("elasticsearch bulk index: unexpected status %s", res.Status())
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	result := &engine.BulkResult{}
	for _, item := range bulkResp.Items {
		if item.Index.Error.Type != "" {
			result.FailedIDs = append(result.FailedIDs, item.Index.ID)
			e.logger.Warn("bulk index item failed",
				"id", item.Index.ID,
				"type", item.Index.Error.Type,
				"reason", item.Index.Error.Reason)
			continue
		}
		result.Indexed++
	}

	e.logger.Info("bulk indexed documents", "count", result.Indexed, "failed", len(result.FailedIDs))
	return result, nil
}

// Rebuild creates a fresh index generation, fills it with docs, and swaps the
// alias to it atomically. Readers see the old generation until the swap and a
// fully built one after; single-document writes racing the rebuild reach the
// new generation through the dual-write in Index and Delete.
func (e *Engine) Rebuild(ctx context.Context, docs []domain.Document) (*engine.BulkResult, error) {
	next := e.generationName()
	if err := e.createIndex(next); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.staging = next
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.staging = ""
		e.mu.Unlock()
	}()

	result, err := e.bulkIndexInto(ctx, next, docs)
	if err != nil {
		e.dropIndex(ctx, next)
		return nil, err
	}

	// remove+add on the alias is applied atomically by Elasticsearch, so
	// there is no window where the alias resolves to nothing.
	actions := map[string]interface{}{
		"actions": []interface{}{
			map[string]interface{}{
				"remove": map[string]interface{}{"index": e.alias + "-*", "alias": e.alias},
			},
			map[string]interface{}{
				"add": map[string]interface{}{"index": next, "alias": e.alias},
			},
		},
	}
	if err := e.updateAliases(ctx, actions); err != nil {
		e.dropIndex(ctx, next)
		return nil, fmt.Errorf("swap alias: %w", err)
	}

	e.deleteOldGenerations(ctx, next)

	e.logger.Info("index rebuilt", "alias", e.alias, "index", next, "indexed", result.Indexed, "failed", len(result.FailedIDs))
	return result, nil
}

// dropIndex removes an abandoned index generation, logging failures only.
func (e *Engine) dropIndex(ctx context.Context, name string) {
	res, err := e.client.Indices.Delete(
		[]string{name},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		e.logger.Warn("failed to drop index", "index", name, "error", err)
		return
	}
	_ = res.Body.Close()
}

// deleteOldGenerations removes every physical index under the alias pattern
// except keep. Old generations are garbage after the swap; failing to delete
// them costs disk, not correctness.
func (e *Engine) deleteOldGenerations(ctx context.Context, keep string) {
	res, err := e.client.Indices.Get(
		[]string{e.alias + "-*"},
		e.client.Indices.Get.WithContext(ctx),
	)
	if err != nil {
		e.logger.Warn("failed to list index generations", "error", err)
		return
	}
	defer func() { _ = res.Body.Close() }()

	var indices map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		e.logger.Warn("failed to decode index generations", "error", err)
		return
	}

	for name := range indices {
		if name == keep {
			continue
		}
		e.dropIndex(ctx, name)
		e.logger.Info("removed old index generation", "index", name)
	}
}

// DeleteIndex removes every physical index generation under the alias.
// It is intended for testing and administrative operations only.
// A 404 response is treated as success (indices already absent).
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.alias + "-*"},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != 404 {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return fmt.Errorf("elasticsearch delete index: %s — %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return fmt.Errorf("elasticsearch delete index: unexpected status %s", res.Status())
	}

	e.logger.Info("elasticsearch index deleted", "alias", e.alias)
	return nil
}

// Search executes a filter request against the alias.
func (e *Engine) Search(ctx context.Context, filter *domain.FilterRequest) (*domain.SearchResult, error) {
	esQuery := buildSearchQuery(filter)

	esResp, err := e.runSearch(ctx, esQuery, "elasticsearch search")
	if err != nil {
		return nil, err
	}

	hits := make([]domain.Hit, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		hits = append(hits, domain.Hit{
			Document:   hit.Source,
			Score:      hit.Score,
			Highlights: hit.Highlight,
		})
	}

	return &domain.SearchResult{
		Hits:       hits,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, esResp.Hits.Total.Value),
		TookMs:     int64(esResp.Took),
	}, nil
}

// runSearch marshals and executes a query DSL map against the alias.
func (e *Engine) runSearch(ctx context.Context, esQuery map[string]interface{}, op string) (*esSearchResponse, error) {
	data, err := json.Marshal(esQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.alias),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return nil, fmt.Errorf("%s: %s — %s", op, errResp.Error.Type, errResp.Error.Reason)
		}
		return nil, fmt.Errorf("%s: unexpected status %s", op, res.Status())
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return &esResp, nil
}

// closeAndCheck closes an Elasticsearch response, converting error statuses
// into Go errors with the cluster's type and reason when available.
func closeAndCheck(res *esapi.Response, op string) error {
	defer func() { _ = res.Body.Close() }()

	if !res.IsError() {
		return nil
	}
	var errResp esErrorResponse
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s — %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
