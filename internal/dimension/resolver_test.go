package dimension

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banketl/internal/config"
)

// fakeKeyStore is an in-memory dimension store.
type fakeKeyStore struct {
	keys       map[Dimension]map[string]int
	timeKeys   map[string]int
	nextKey    int
	insertErr  error
	loadErr    error
	timeErr    error
	inserts    int
	conflictOn string
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys: map[Dimension]map[string]int{
			Customer: {},
			Product:  {},
			Branch:   {},
		},
		timeKeys: map[string]int{},
		nextKey:  100,
	}
}

func (f *fakeKeyStore) LoadKeys(_ context.Context, dim Dimension) (map[string]int, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]int, len(f.keys[dim]))
	for k, v := range f.keys[dim] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeKeyStore) FindKey(_ context.Context, dim Dimension, naturalKey string) (int, bool, error) {
	key, ok := f.keys[dim][naturalKey]
	return key, ok, nil
}

func (f *fakeKeyStore) Insert(_ context.Context, dim Dimension, naturalKey string) (int, error) {
	f.inserts++
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	if naturalKey == f.conflictOn {
		return 0, ErrUniqueConflict
	}
	f.nextKey++
	f.keys[dim][naturalKey] = f.nextKey
	return f.nextKey, nil
}

func (f *fakeKeyStore) TimeKey(_ context.Context, date time.Time) (int, bool, error) {
	if f.timeErr != nil {
		return 0, false, f.timeErr
	}
	key, ok := f.timeKeys[date.Format("2006-01-02")]
	return key, ok, nil
}

func TestResolverResolveInsertsNewKey(t *testing.T) {
	store := newFakeKeyStore()
	resolver := NewResolver(store, false, slog.Default())

	key, err := resolver.Resolve(context.Background(), Customer, "CUST001")
	require.NoError(t, err)
	assert.Equal(t, 101, key)

	// second resolution hits the cache, not the store
	key2, err := resolver.Resolve(context.Background(), Customer, "CUST001")
	require.NoError(t, err)
	assert.Equal(t, key, key2)
	assert.Equal(t, 1, store.inserts)
}

func TestResolverWarmPrimesCaches(t *testing.T) {
	store := newFakeKeyStore()
	store.keys[Product]["Savings Account"] = 7

	resolver := NewResolver(store, false, slog.Default())
	require.NoError(t, resolver.Warm(context.Background()))

	key, err := resolver.Resolve(context.Background(), Product, "Savings Account")
	require.NoError(t, err)
	assert.Equal(t, 7, key)
	assert.Zero(t, store.inserts)
}

func TestResolverResolveConflictRefetches(t *testing.T) {
	store := newFakeKeyStore()
	store.conflictOn = "BR01"
	store.keys[Branch]["BR01"] = 55

	resolver := NewResolver(store, false, slog.Default())

	key, err := resolver.Resolve(context.Background(), Branch, "BR01")
	require.NoError(t, err)
	assert.Equal(t, 55, key)
}

func TestResolverResolveEmptyKeyFallsBack(t *testing.T) {
	resolver := NewResolver(newFakeKeyStore(), false, slog.Default())

	key, err := resolver.Resolve(context.Background(), Customer, "   ")
	require.NoError(t, err)
	assert.Equal(t, config.SentinelKey, key)
}

func TestResolverResolveStoreErrorFallsBack(t *testing.T) {
	store := newFakeKeyStore()
	store.insertErr = errors.New("connection reset")

	resolver := NewResolver(store, false, slog.Default())

	key, err := resolver.Resolve(context.Background(), Customer, "CUST001")
	require.NoError(t, err)
	assert.Equal(t, config.SentinelKey, key)
}

func TestResolverStrictModePropagatesErrors(t *testing.T) {
	store := newFakeKeyStore()
	store.insertErr = errors.New("connection reset")

	resolver := NewResolver(store, true, slog.Default())

	_, err := resolver.Resolve(context.Background(), Customer, "CUST001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUST001")

	// empty keys still fall back even in strict mode: there is nothing to
	// resolve, not a failure
	key, err := resolver.Resolve(context.Background(), Customer, "")
	require.NoError(t, err)
	assert.Equal(t, config.SentinelKey, key)
}

func TestResolverResolveTime(t *testing.T) {
	store := newFakeKeyStore()
	store.timeKeys["2026-08-15"] = 4245

	resolver := NewResolver(store, false, slog.Default())

	key, err := resolver.ResolveTime(context.Background(), time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 4245, key)
}

func TestResolverResolveTimeStoreErrorFallsBack(t *testing.T) {
	store := newFakeKeyStore()
	store.timeErr = errors.New("connection reset")

	resolver := NewResolver(store, false, slog.Default())

	key, err := resolver.ResolveTime(context.Background(), time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, config.SentinelKey, key)
}

func TestResolverResolveTimeStrictModePropagatesErrors(t *testing.T) {
	store := newFakeKeyStore()
	store.timeErr = errors.New("connection reset")

	resolver := NewResolver(store, true, slog.Default())

	_, err := resolver.ResolveTime(context.Background(), time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2026-08-15")
}

func TestResolverResolveTimeOutsideCalendar(t *testing.T) {
	resolver := NewResolver(newFakeKeyStore(), false, slog.Default())

	key, err := resolver.ResolveTime(context.Background(), time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, config.SentinelKey, key)
}

func TestCache(t *testing.T) {
	cache := NewCache()

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Put("CUST001", 42)
	key, ok := cache.Get("CUST001")
	assert.True(t, ok)
	assert.Equal(t, 42, key)

	cache.Fill(map[string]int{"A": 1, "B": 2})
	assert.Equal(t, 2, cache.Len())
	_, ok = cache.Get("CUST001")
	assert.False(t, ok)
}
