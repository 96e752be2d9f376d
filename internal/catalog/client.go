package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
	"github.com/shopizen/catalogsearch/pkg/httpclient"
)

// Client is an HTTP implementation of Reader against the catalog service's
// REST API. Requests go through a circuit breaker so a failing catalog
// sheds load instead of soaking up retries.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
}

// NewClient creates a catalog client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	base := httpclient.New(httpclient.DefaultConfig())
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("catalog"), logger),
	}
}

// recordEnvelope is the catalog service's single-record response.
type recordEnvelope struct {
	Data Record `json:"data"`
}

// listEnvelope is the catalog service's paginated listing response.
type listEnvelope struct {
	Data       []Record `json:"data"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
}

// categoryEnvelope is the catalog service's single-category response.
type categoryEnvelope struct {
	Data Category `json:"data"`
}

// GetRecord fetches a single catalog record by id.
func (c *Client) GetRecord(ctx context.Context, id string) (*Record, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, url.PathEscape(id)))
	if err != nil {
		return nil, fmt.Errorf("catalog get record: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("record", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog get record: unexpected status %d", resp.StatusCode)
	}

	var env recordEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("catalog get record: decode response: %w", err)
	}
	return &env.Data, nil
}

// ListRecords fetches one page of catalog records, optionally narrowed to a
// category.
func (c *Client) ListRecords(ctx context.Context, filter ListFilter) (*RecordPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 100
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(filter.Page))
	q.Set("per_page", strconv.Itoa(filter.PerPage))
	if filter.CategoryID != "" {
		q.Set("category_id", filter.CategoryID)
	}

	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/api/v1/products?%s", c.baseURL, q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("catalog list records: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog list records: unexpected status %d", resp.StatusCode)
	}

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("catalog list records: decode response: %w", err)
	}

	return &RecordPage{
		Records:    env.Data,
		Page:       env.Page,
		TotalPages: env.TotalPages,
		TotalCount: env.TotalCount,
	}, nil
}

// GetCategory fetches a category reference by id.
func (c *Client) GetCategory(ctx context.Context, id string) (*Category, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/api/v1/categories/%s", c.baseURL, url.PathEscape(id)))
	if err != nil {
		return nil, fmt.Errorf("catalog get category: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("category", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog get category: unexpected status %d", resp.StatusCode)
	}

	var env categoryEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("catalog get category: decode response: %w", err)
	}
	return &env.Data, nil
}
