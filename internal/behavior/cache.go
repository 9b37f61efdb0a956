package behavior

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nugget/daybreak/internal/metrics"
)

// DefaultTTL is how long a loaded copy is served before reloading.
const DefaultTTL = 5 * time.Minute

// Loader reads the raw key/value pairs of a namespace.
// *opstate.Store satisfies it.
type Loader interface {
	List(ctx context.Context, namespace string) (map[string]string, error)
}

// Cache holds the current [Settings] in a single slot with a
// time-based expiry. The slot is replaced wholesale, never mutated, so
// concurrent readers always see a complete snapshot. Readers that race
// on expiry may each reload from the store.
type Cache struct {
	loader       Loader
	defaultModel string
	ttl          time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	slot atomic.Pointer[cacheEntry]
}

// cacheEntry is one generation of the slot. Invalidate installs a new
// empty entry, so a reload that started earlier fails its
// CompareAndSwap and cannot bring back what it read.
type cacheEntry struct {
	settings  Settings
	expiresAt time.Time
	loaded    bool
}

// NewCache creates a settings cache. A non-positive ttl selects DefaultTTL.
func NewCache(loader Loader, defaultModel string, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		loader:       loader,
		defaultModel: defaultModel,
		ttl:          ttl,
		now:          time.Now,
		logger:       logger.With("component", "behavior"),
	}
}

// SetMetrics attaches collectors for hit/miss accounting.
func (c *Cache) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Get returns the current settings. A fresh copy is served from the
// slot unless bypass is set or it has expired, in which case the
// settings are reloaded from the store. Get has no failure mode: if
// the store cannot be read, the last known copy (or the defaults) is
// returned and the slot is left untouched.
func (c *Cache) Get(ctx context.Context, bypass bool) Settings {
	now := c.now()
	held := c.slot.Load()

	if !bypass && held.fresh(now) {
		c.metrics.ObserveSettingsLookup("hit")
		return held.settings
	}

	values, err := c.loader.List(ctx, Namespace)
	if err != nil {
		c.metrics.ObserveSettingsLookup("error")
		if held != nil && held.loaded {
			c.logger.Warn("settings reload failed, serving stale copy", "error", err)
			return held.settings
		}
		c.logger.Warn("settings load failed, using defaults", "error", err)
		return Defaults(c.defaultModel)
	}

	c.metrics.ObserveSettingsLookup("miss")
	settings := FromValues(values, c.defaultModel)
	c.slot.CompareAndSwap(held, &cacheEntry{settings: settings, expiresAt: now.Add(c.ttl), loaded: true})
	return settings
}

func (e *cacheEntry) fresh(now time.Time) bool {
	return e != nil && e.loaded && now.Before(e.expiresAt)
}

// Invalidate clears the slot unconditionally. The settings writer calls
// it right after a successful commit so the next Get reloads. Reloads
// already in flight are discarded rather than installed.
func (c *Cache) Invalidate() {
	c.slot.Store(&cacheEntry{})
	c.logger.Debug("settings cache invalidated")
}

// Writer persists raw key/value pairs atomically.
// *opstate.Store satisfies it.
type Writer interface {
	SetMany(ctx context.Context, namespace string, values map[string]string) error
}

// Updater is the write side of the settings: it persists an update and
// then invalidates the cache before returning.
type Updater struct {
	writer Writer
	cache  *Cache
}

// NewUpdater pairs a store with the cache it must keep coherent.
func NewUpdater(writer Writer, cache *Cache) *Updater {
	return &Updater{writer: writer, cache: cache}
}

// Apply encodes and stores update, then invalidates the cache. The
// cache is left alone if the write fails.
func (u *Updater) Apply(ctx context.Context, update map[string]any) error {
	values, err := EncodeUpdate(update)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if err := u.writer.SetMany(ctx, Namespace, values); err != nil {
		return err
	}
	u.cache.Invalidate()
	return nil
}
