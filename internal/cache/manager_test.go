package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, policy EvictionPolicy) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.Eviction = policy
	cfg.L1MaxEntries = 4
	cfg.CompressAboveBytes = 16
	cfg.L2Enabled = false

	mgr, err := NewManager(cfg, prometheus.NewRegistry())
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mgr.l2 = NewL2CacheFromClient(client)
	return mgr
}

func TestManager_SetGetRoundTrip(t *testing.T) {
	mgr := newTestManager(t, PolicyLRU)
	ctx := context.Background()

	require.NoError(t, mgr.Set(ctx, NamespaceResponse, "health", []byte("ok"), time.Minute))
	val, ok := mgr.Get(ctx, NamespaceResponse, "health")
	require.True(t, ok)
	assert.Equal(t, "ok", string(val))
}

func TestManager_CompressesLargePayloads(t *testing.T) {
	mgr := newTestManager(t, PolicyLRU)
	ctx := context.Background()

	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, mgr.Set(ctx, NamespaceResponse, "big", big, time.Minute))
	val, ok := mgr.Get(ctx, NamespaceResponse, "big")
	require.True(t, ok)
	assert.Equal(t, big, val)
	assert.Equal(t, int64(1), mgr.Stats().Compressions)
}

func TestManager_InvalidatePrefixRemovesMatchingKeys(t *testing.T) {
	mgr := newTestManager(t, PolicyLRU)
	ctx := context.Background()

	require.NoError(t, mgr.Set(ctx, NamespaceResponse, "scope/alpha/todos", []byte("a"), time.Minute))
	require.NoError(t, mgr.Set(ctx, NamespaceResponse, "scope/alpha/knowledge", []byte("b"), time.Minute))
	require.NoError(t, mgr.Set(ctx, NamespaceResponse, "scope/beta/todos", []byte("c"), time.Minute))

	removed := mgr.InvalidatePrefix(ctx, NamespaceResponse, "scope/alpha")
	assert.GreaterOrEqual(t, removed, 2)

	_, ok := mgr.Get(ctx, NamespaceResponse, "scope/beta/todos")
	assert.True(t, ok)
}

func TestManager_GetOrLoadCoalescesMiss(t *testing.T) {
	mgr := newTestManager(t, PolicyLRU)
	ctx := context.Background()

	calls := 0
	load := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	v1, err := mgr.GetOrLoad(ctx, NamespaceResponse, "k", time.Minute, load)
	require.NoError(t, err)
	v2, err := mgr.GetOrLoad(ctx, NamespaceResponse, "k", time.Minute, load)
	require.NoError(t, err)

	assert.Equal(t, "computed", string(v1))
	assert.Equal(t, "computed", string(v2))
	assert.Equal(t, 1, calls)
}

func TestL1Cache_LFUEvictsLeastUsed(t *testing.T) {
	l1 := NewL1Cache(PolicyLFU, 2, 0, time.Minute)
	now := time.Now()
	l1.Set("a", &Entry{Size: 1, CreatedAt: now, ExpiresAt: now.Add(time.Minute), LastAccess: now, AccessCount: 5})
	l1.Set("b", &Entry{Size: 1, CreatedAt: now, ExpiresAt: now.Add(time.Minute), LastAccess: now, AccessCount: 1})
	l1.Set("c", &Entry{Size: 1, CreatedAt: now, ExpiresAt: now.Add(time.Minute), LastAccess: now, AccessCount: 9})

	_, bOk := l1.Get("b")
	_, aOk := l1.Get("a")
	_, cOk := l1.Get("c")
	assert.False(t, bOk)
	assert.True(t, aOk)
	assert.True(t, cOk)
}

func TestGenerateResponseKey_StableAcrossParamOrder(t *testing.T) {
	k1 := GenerateResponseKey("alpha", "search", "GET", "/search", map[string]string{"q": "x", "limit": "10"})
	k2 := GenerateResponseKey("alpha", "search", "GET", "/search", map[string]string{"limit": "10", "q": "x"})
	assert.Equal(t, k1, k2)
}

func TestGenerateResponseKey_CarriesScopePrefix(t *testing.T) {
	k := GenerateResponseKey("alpha/services", "todos", "GET", "/todos", nil)
	assert.True(t, len(k) > len("alpha/services/todos/"))
	assert.Equal(t, "alpha/services/todos/", k[:len("alpha/services/todos/")])
}
