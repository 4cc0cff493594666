package cache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/snapcache/internal/infrastructure/monitoring"
)

// Store is the backing key-value store of the content cache.
type Store interface {
	// Load returns the record for key; ok is false when there is none.
	Load(ctx context.Context, key string) (rec Record, ok bool, err error)
	Save(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}

// Cache maps keys to snapshot entries.
type Cache struct {
	store   Store
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a Cache over store. logger and metrics may be nil.
func New(store Store, logger *zap.Logger, metrics *monitoring.Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Has reports whether a well-formed entry exists for key.
func (c *Cache) Has(ctx context.Context, key Key) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

// Get returns the entry for key. Malformed records and store failures are
// logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, key Key) (*Entry, bool) {
	rec, ok, err := c.store.Load(ctx, string(key))
	if err != nil {
		if errors.Is(err, ErrMalformedEntry) {
			c.malformed(key, err)
			return nil, false
		}
		c.logger.Error("cache load failed", zap.String("key", key.String()), zap.Error(err))
		c.metrics.RecordCacheLookup("error")
		return nil, false
	}
	if !ok {
		c.metrics.RecordCacheLookup("miss")
		return nil, false
	}

	entry, err := entryFromRecord(rec)
	if err != nil {
		c.malformed(key, err)
		return nil, false
	}

	c.metrics.RecordCacheLookup("hit")
	return entry, true
}

func (c *Cache) malformed(key Key, err error) {
	c.logger.Warn("ignoring malformed cache entry", zap.String("key", key.String()), zap.Error(err))
	c.metrics.RecordCacheLookup("malformed")
}

// Put stores entry under key, replacing any previous value.
func (c *Cache) Put(ctx context.Context, key Key, entry *Entry) error {
	if err := c.store.Save(ctx, string(key), entry.toRecord()); err != nil {
		return fmt.Errorf("store cache entry %s: %w", key, err)
	}
	c.logger.Debug("cache entry stored",
		zap.String("key", key.String()),
		zap.Int("bytes", len(entry.HTML)),
		zap.Bool("partial", entry.Partial),
	)
	return nil
}

// Evict removes the entry for key. Evicting a missing key is not an error.
func (c *Cache) Evict(ctx context.Context, key Key) error {
	if err := c.store.Delete(ctx, string(key)); err != nil {
		return fmt.Errorf("evict cache entry %s: %w", key, err)
	}
	return nil
}
