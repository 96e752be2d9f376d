package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopizen/catalogsearch/internal/domain"
)

// versionKey holds the cache namespace version. Bumping it on every index
// write invalidates all cached results at once without scanning keys.
const versionKey = "catalogsearch:version"

// Store is the minimal key-value surface the result cache needs. Implemented
// by the Redis store and an in-memory one for tests and single-node runs.
type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr atomically increments an integer key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

// ResultCache caches serialized search results keyed by the filter signature
// under a versioned namespace. Cache failures are logged and absorbed: the
// cache accelerates reads, it never gates them.
type ResultCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a result cache over store with the given entry TTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) *ResultCache {
	return &ResultCache{store: store, ttl: ttl, logger: logger}
}

// key builds the namespaced cache key for a filter.
func (c *ResultCache) key(ctx context.Context, prefix string, filter *domain.FilterRequest) (string, error) {
	version, _, err := c.store.Get(ctx, versionKey)
	if err != nil {
		return "", err
	}

	sig, err := Signature(filter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("catalogsearch:v%s:%s:%s", string(version), prefix, sig), nil
}

// Get loads a cached value for the filter into dest, reporting whether a
// usable entry was found.
func (c *ResultCache) Get(ctx context.Context, prefix string, filter *domain.FilterRequest, dest any) bool {
	key, err := c.key(ctx, prefix, filter)
	if err != nil {
		c.logger.Warn("cache key build failed", "error", err)
		return false
	}

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "error", err)
		return false
	}
	if !ok {
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores a value for the filter.
func (c *ResultCache) Set(ctx context.Context, prefix string, filter *domain.FilterRequest, value any) {
	key, err := c.key(ctx, prefix, filter)
	if err != nil {
		c.logger.Warn("cache key build failed", "error", err)
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "error", err)
	}
}

// Invalidate moves the namespace to a new version, orphaning every cached
// entry. Orphans expire through their TTL.
func (c *ResultCache) Invalidate(ctx context.Context) {
	if _, err := c.store.Incr(ctx, versionKey); err != nil {
		c.logger.Warn("cache invalidation failed", "error", err)
	}
}

// Signature produces a stable hash of a normalized filter, used as the
// cache key component. Two filters asking the same question share it.
func Signature(filter *domain.FilterRequest) (string, error) {
	data, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("marshal filter: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
