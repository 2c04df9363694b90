package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute, nil), srv
}

type recordingObserver struct {
	resolutions []string
	lookups     []string
}

func (o *recordingObserver) ObserveResolution(outcome string) {
	o.resolutions = append(o.resolutions, outcome)
}

func (o *recordingObserver) ObserveCacheLookup(result string) {
	o.lookups = append(o.lookups, result)
}

func countingLoader(calls *int, perms []string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) {
		*calls++
		return perms, nil
	}
}

func TestCacheMissPopulatesThenHits(t *testing.T) {
	cache, _ := newTestCache(t)
	calls := 0
	loader := countingLoader(&calls, []string{"app/X.view"})

	perms, err := cache.FetchPermissions(context.Background(), "u:idp", []string{"G"}, "app", "X", loader)
	require.NoError(t, err)
	require.Equal(t, []string{"app/X.view"}, perms)
	require.Equal(t, 1, calls)

	perms, err = cache.FetchPermissions(context.Background(), "u:idp", []string{"G"}, "app", "X", loader)
	require.NoError(t, err)
	require.Equal(t, []string{"app/X.view"}, perms)
	require.Equal(t, 1, calls)
}

func TestCacheKeyVariesWithScopeAndGroups(t *testing.T) {
	cache, _ := newTestCache(t)
	calls := 0
	loader := countingLoader(&calls, []string{"app/X.view"})

	_, err := cache.FetchPermissions(context.Background(), "u:idp", []string{"G"}, "app", "X", loader)
	require.NoError(t, err)
	_, err = cache.FetchPermissions(context.Background(), "u:idp", []string{"G"}, "app", "Y", loader)
	require.NoError(t, err)
	_, err = cache.FetchPermissions(context.Background(), "u:idp", []string{"G2"}, "app", "X", loader)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	cache, _ := newTestCache(t)
	calls := 0
	loader := countingLoader(&calls, []string{"app/X.view"})

	_, err := cache.FetchPermissions(context.Background(), "u:idp", nil, "", "", loader)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background()))

	_, err = cache.FetchPermissions(context.Background(), "u:idp", nil, "", "", loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestCacheVersionInitializesOnce(t *testing.T) {
	cache, _ := newTestCache(t)

	ver, err := cache.Version(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	require.NoError(t, cache.Invalidate(context.Background()))
	ver, err = cache.Version(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)
}

func TestCacheLoaderErrorIsReturnedAndNotCached(t *testing.T) {
	cache, _ := newTestCache(t)
	boom := errors.New("resolve failed")
	calls := 0
	loader := func(context.Context) ([]string, error) {
		calls++
		return nil, boom
	}

	_, err := cache.FetchPermissions(context.Background(), "u:idp", nil, "", "", loader)
	require.ErrorIs(t, err, boom)

	_, err = cache.FetchPermissions(context.Background(), "u:idp", nil, "", "", loader)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls)
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	calls := 0

	perms, err := cache.FetchPermissions(context.Background(), "u:idp", nil, "", "",
		countingLoader(&calls, []string{"app/X.view"}))
	require.NoError(t, err)
	require.Equal(t, []string{"app/X.view"}, perms)
	require.Equal(t, 1, calls)
	require.NoError(t, cache.Invalidate(context.Background()))
}

func TestCacheCountsHitsAndMisses(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	observer := &recordingObserver{}
	cache := NewCache(client, time.Minute, observer)

	calls := 0
	loader := countingLoader(&calls, []string{"app/X.view"})
	_, err := cache.FetchPermissions(context.Background(), "u:idp", nil, "", "", loader)
	require.NoError(t, err)
	_, err = cache.FetchPermissions(context.Background(), "u:idp", nil, "", "", loader)
	require.NoError(t, err)

	require.Equal(t, []string{"miss", "hit"}, observer.lookups)
}

func TestCacheFallsBackWhenRedisIsDown(t *testing.T) {
	cache, srv := newTestCache(t)
	srv.Close()

	calls := 0
	_, err := cache.FetchPermissions(context.Background(), "u:idp", nil, "", "",
		countingLoader(&calls, []string{"app/X.view"}))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
