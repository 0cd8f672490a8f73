package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/cache"
	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/repository"
)

type counters struct {
	mu           sync.Mutex
	hits, misses map[string]int
}

func newCounters() *counters {
	return &counters{hits: map[string]int{}, misses: map[string]int{}}
}

func (c *counters) hooks() cache.Hooks {
	return cache.Hooks{
		OnHit: func(e string) {
			c.mu.Lock()
			c.hits[e]++
			c.mu.Unlock()
		},
		OnMiss: func(e string) {
			c.mu.Lock()
			c.misses[e]++
			c.mu.Unlock()
		},
	}
}

func newCache(store cache.Store) (*cache.EntityCache, *repository.MockSubscriberRepository, *repository.MockTemplateRepository, *counters) {
	subs := repository.NewMockSubscriberRepository()
	tpls := repository.NewMockTemplateRepository()
	cnt := newCounters()
	return cache.NewEntityCache(store, subs, tpls, zap.NewNop(), cnt.hooks()), subs, tpls, cnt
}

func TestEntityCache_ReadThroughSubscriber(t *testing.T) {
	ctx := context.Background()
	c, subs, _, cnt := newCache(cache.NewMemoryStore(time.Minute))
	subs.Add(&domain.Subscriber{ID: "int-1", EnvironmentID: "env-1", SubscriberID: "sub-1", Locale: "en"})

	first, err := c.GetSubscriber(ctx, "env-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "en", first.Locale)

	second, err := c.GetSubscriber(ctx, "env-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 1, subs.Calls(), "second read must be served from cache")
	assert.Equal(t, 1, cnt.hits[cache.EntitySubscriber])
	assert.Equal(t, 1, cnt.misses[cache.EntitySubscriber])
}

func TestEntityCache_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	c, subs, _, _ := newCache(store)

	_, err := c.GetSubscriber(ctx, "env-1", "late")
	require.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, store.Len())

	subs.Add(&domain.Subscriber{ID: "int-2", EnvironmentID: "env-1", SubscriberID: "late"})
	got, err := c.GetSubscriber(ctx, "env-1", "late")
	require.NoError(t, err)
	assert.Equal(t, "int-2", got.ID)
}

func TestEntityCache_KeysAreEnvironmentScoped(t *testing.T) {
	ctx := context.Background()
	c, _, tpls, _ := newCache(cache.NewMemoryStore(0))
	tpls.Add(&domain.Template{ID: "tpl-1", EnvironmentID: "env-a", Name: "a"})
	tpls.Add(&domain.Template{ID: "tpl-1", EnvironmentID: "env-b", Name: "b"})

	a, err := c.GetTemplate(ctx, "env-a", "tpl-1")
	require.NoError(t, err)
	b, err := c.GetTemplate(ctx, "env-b", "tpl-1")
	require.NoError(t, err)

	assert.Equal(t, "a", a.Name)
	assert.Equal(t, "b", b.Name)
	assert.NotEqual(t, cache.TemplateKey("env-a", "tpl-1"), cache.TemplateKey("env-b", "tpl-1"))
}

func TestEntityCache_LookupErrorPropagates(t *testing.T) {
	c, subs, _, _ := newCache(cache.NewMemoryStore(0))
	subs.FindErr = domain.LookupFailure(errors.New("db down"), "find subscriber")

	_, err := c.GetSubscriber(context.Background(), "env-1", "sub-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLookupFailure))
}

func TestEntityCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, _, tpls, _ := newCache(cache.NewMemoryStore(0))
	tpls.Add(&domain.Template{ID: "tpl-1", EnvironmentID: "env-1", Critical: false})

	_, err := c.GetTemplate(ctx, "env-1", "tpl-1")
	require.NoError(t, err)

	tpls.Add(&domain.Template{ID: "tpl-1", EnvironmentID: "env-1", Critical: true})
	stale, err := c.GetTemplate(ctx, "env-1", "tpl-1")
	require.NoError(t, err)
	assert.False(t, stale.Critical, "stale read between invalidations is tolerated")

	require.NoError(t, c.InvalidateTemplate(ctx, "env-1", "tpl-1"))
	fresh, err := c.GetTemplate(ctx, "env-1", "tpl-1")
	require.NoError(t, err)
	assert.True(t, fresh.Critical)
}

// failingStore simulates a broken cache backend.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache unavailable")
}
func (failingStore) Put(context.Context, string, []byte) error {
	return errors.New("cache unavailable")
}
func (failingStore) Delete(context.Context, ...string) error { return errors.New("cache unavailable") }

func TestEntityCache_StoreFailureFallsBackToLookup(t *testing.T) {
	c, subs, _, _ := newCache(failingStore{})
	subs.Add(&domain.Subscriber{ID: "int-1", EnvironmentID: "env-1", SubscriberID: "sub-1"})

	got, err := c.GetSubscriber(context.Background(), "env-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "int-1", got.ID)
}

func TestEntityCache_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	c, subs, _, _ := newCache(cache.NewMemoryStore(0))
	for i := 0; i < 10; i++ {
		subs.Add(&domain.Subscriber{ID: fmt.Sprintf("int-%d", i), EnvironmentID: "env-1", SubscriberID: fmt.Sprintf("sub-%d", i)})
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				s, err := c.GetSubscriber(ctx, "env-1", fmt.Sprintf("sub-%d", i))
				assert.NoError(t, err)
				assert.Equal(t, fmt.Sprintf("int-%d", i), s.ID)
			}
		}()
	}
	wg.Wait()
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	store := cache.NewRedisStore(rdb, time.Minute)

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "k", []byte(`{"id":"x"}`)))
	v, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":"x"}`, string(v))

	mr.FastForward(2 * time.Minute)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "entry must expire after ttl")

	require.NoError(t, store.Put(ctx, "k2", []byte("1")))
	require.NoError(t, store.Delete(ctx, "k2"))
	_, found, _ = store.Get(ctx, "k2")
	assert.False(t, found)
}

func TestEntityCache_WithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, subs, _, _ := newCache(cache.NewRedisStore(rdb, 0))
	subs.Add(&domain.Subscriber{ID: "int-1", EnvironmentID: "env-1", SubscriberID: "sub-1", Data: map[string]any{"tier": "gold"}})

	_, err := c.GetSubscriber(context.Background(), "env-1", "sub-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.SubscriberKey("env-1", "sub-1")))

	got, err := c.GetSubscriber(context.Background(), "env-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "gold", got.Data["tier"])
	assert.Equal(t, 1, subs.Calls())
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := cache.NewMemoryStore(time.Nanosecond)
	require.NoError(t, store.Put(context.Background(), "k", []byte("v")))
	time.Sleep(time.Millisecond)

	_, found, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, found)
}
