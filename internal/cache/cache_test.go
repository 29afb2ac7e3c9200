package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	ns := "test"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, ns, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, ns, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, ns, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, ns, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, ns, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, ns, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, ns, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, ns, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, ns, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, ns, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, ns, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, ns, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, ns, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, ns, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, ns, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, ns, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "catalog", "shared-key", []byte("catalog-value"), time.Minute)
		_ = cache.Set(ctx, "linkage", "shared-key", []byte("linkage-value"), time.Minute)

		val1, _ := cache.Get(ctx, "catalog", "shared-key")
		val2, _ := cache.Get(ctx, "linkage", "shared-key")

		if string(val1) != "catalog-value" {
			t.Errorf("expected 'catalog-value', got '%s'", string(val1))
		}
		if string(val2) != "linkage-value" {
			t.Errorf("expected 'linkage-value', got '%s'", string(val2))
		}
	})

	t.Run("RequiresNamespace", func(t *testing.T) {
		err := cache.Set(ctx, "", "key", []byte("value"), time.Minute)
		if err == nil {
			t.Error("expected error for empty namespace")
		}

		_, err = cache.Get(ctx, "", "key")
		if err == nil {
			t.Error("expected error for empty namespace")
		}
	})

	t.Run("JSONHelpers", func(t *testing.T) {
		accounts := []domain.AccountSummary{
			{ClientID: "c-2", IP: "10.0.0.1"},
			{ClientID: "c-3", IP: "10.0.0.1"},
		}

		if err := SetJSON(ctx, cache, ns, "ip:10.0.0.1", accounts, time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		got, ok, err := GetJSON[[]domain.AccountSummary](ctx, cache, ns, "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if !ok {
			t.Fatal("expected cache hit")
		}
		if len(got) != 2 || got[1].ClientID != "c-3" {
			t.Errorf("unexpected accounts: %+v", got)
		}

		_, ok, err = GetJSON[[]domain.AccountSummary](ctx, cache, ns, "ip:10.0.0.2")
		if err != nil || ok {
			t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
		}

		_ = cache.Set(ctx, ns, "broken", []byte("{"), time.Minute)
		if _, _, err := GetJSON[[]domain.AccountSummary](ctx, cache, ns, "broken"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, ns, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, ns, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, ns, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		// Cache should be empty after close
		val, _ := testCache.Get(ctx, ns, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	remote := NewLRUCache(100)
	c := newTwoPhase(NewLRUCache(100), remote, time.Minute)

	t.Run("WritesThrough", func(t *testing.T) {
		if err := c.Set(ctx, "catalog", "rules", []byte("v1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, _ := remote.Get(ctx, "catalog", "rules")
		if string(val) != "v1" {
			t.Errorf("expected L2 to hold 'v1', got '%s'", string(val))
		}
	})

	t.Run("PopulatesL1FromL2", func(t *testing.T) {
		_ = remote.Set(ctx, "catalog", "policies", []byte("p1"), time.Minute)

		val, err := c.Get(ctx, "catalog", "policies")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "p1" {
			t.Errorf("expected 'p1', got '%s'", string(val))
		}
		if size, _ := c.Stats(); size != 2 {
			t.Errorf("expected 2 L1 entries, got %d", size)
		}
	})

	t.Run("DeleteBoth", func(t *testing.T) {
		if err := c.Delete(ctx, "catalog", "rules"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, "catalog", "rules"); val != nil {
			t.Error("expected miss after delete")
		}
		if val, _ := remote.Get(ctx, "catalog", "rules"); val != nil {
			t.Error("expected L2 miss after delete")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}
