package dimension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"banketl/internal/config"
)

// KeyStore is the warehouse surface the resolver needs. *Store implements it.
type KeyStore interface {
	LoadKeys(ctx context.Context, dim Dimension) (map[string]int, error)
	FindKey(ctx context.Context, dim Dimension, naturalKey string) (int, bool, error)
	Insert(ctx context.Context, dim Dimension, naturalKey string) (int, error)
	TimeKey(ctx context.Context, date time.Time) (int, bool, error)
}

// Resolver turns natural business keys into dimension surrogate keys,
// creating missing dimension rows on demand. One resolver (and its caches)
// belongs to one loader run.
type Resolver struct {
	store  KeyStore
	caches map[Dimension]*Cache
	// timeCache memoizes calendar lookups; the calendar never grows mid-run.
	timeCache *Cache
	// strict turns resolution failures into errors instead of sentinel
	// fallbacks.
	strict bool
	logger *slog.Logger
}

// NewResolver creates a resolver with empty caches.
func NewResolver(store KeyStore, strict bool, logger *slog.Logger) *Resolver {
	return &Resolver{
		store: store,
		caches: map[Dimension]*Cache{
			Customer: NewCache(),
			Product:  NewCache(),
			Branch:   NewCache(),
		},
		timeCache: NewCache(),
		strict:    strict,
		logger:    logger.With(slog.String("component", "dimension_resolver")),
	}
}

// Warm populates every dimension cache from the warehouse.
func (r *Resolver) Warm(ctx context.Context) error {
	for dim, cache := range r.caches {
		keys, err := r.store.LoadKeys(ctx, dim)
		if err != nil {
			return fmt.Errorf("failed to warm %s cache: %w", dim, err)
		}
		cache.Fill(keys)
		r.logger.DebugContext(ctx, "dimension cache warmed",
			slog.String("dimension", string(dim)),
			slog.Int("keys", len(keys)))
	}
	return nil
}

// Resolve returns the surrogate key for a natural key: cache first, then
// insert-new, then re-fetch on a concurrent-insert conflict. When nothing
// resolves, the sentinel key is returned so the fact row always loads.
func (r *Resolver) Resolve(ctx context.Context, dim Dimension, naturalKey string) (int, error) {
	naturalKey = strings.TrimSpace(naturalKey)
	if naturalKey == "" {
		return r.fallback(ctx, dim, naturalKey, nil)
	}

	cache := r.caches[dim]
	if key, ok := cache.Get(naturalKey); ok {
		return key, nil
	}

	key, err := r.store.Insert(ctx, dim, naturalKey)
	if errors.Is(err, ErrUniqueConflict) {
		// Another loader instance created the row between our cache miss and
		// insert. The existing key is the right one.
		var found bool
		key, found, err = r.store.FindKey(ctx, dim, naturalKey)
		if err == nil && !found {
			err = fmt.Errorf("%s key %q vanished after insert conflict", dim, naturalKey)
		}
	}
	if err != nil {
		return r.fallback(ctx, dim, naturalKey, err)
	}

	cache.Put(naturalKey, key)
	return key, nil
}

// ResolveTime resolves a transaction date against the pre-populated calendar.
// There is no dynamic creation: out-of-range dates fall back to the sentinel.
func (r *Resolver) ResolveTime(ctx context.Context, date time.Time) (int, error) {
	cacheKey := date.Format("2006-01-02")
	if key, ok := r.timeCache.Get(cacheKey); ok {
		return key, nil
	}

	key, found, err := r.store.TimeKey(ctx, date)
	if err != nil {
		return r.fallback(ctx, Time, cacheKey, err)
	}
	if !found {
		r.logger.WarnContext(ctx, "transaction date outside calendar range",
			slog.String("date", cacheKey))
		return config.SentinelKey, nil
	}

	r.timeCache.Put(cacheKey, key)
	return key, nil
}

// fallback applies the availability-over-strictness policy: substitute the
// sentinel key and keep loading, unless strict resolution is configured.
func (r *Resolver) fallback(ctx context.Context, dim Dimension, naturalKey string, cause error) (int, error) {
	if r.strict && cause != nil {
		return 0, fmt.Errorf("failed to resolve %s key %q: %w", dim, naturalKey, cause)
	}
	if cause != nil {
		r.logger.WarnContext(ctx, "dimension resolution fell back to sentinel",
			slog.String("dimension", string(dim)),
			slog.String("natural_key", naturalKey),
			slog.String("error", cause.Error()))
	}
	return config.SentinelKey, nil
}
