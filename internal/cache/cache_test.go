package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		c := NewLRUCache(5)
		_ = c.Set(ctx, "x", []byte("1"), time.Minute)
		_ = c.Set(ctx, "y", []byte("2"), time.Minute)

		size, capacity := c.Stats()
		if size != 2 || capacity != 5 {
			t.Errorf("expected (2, 5), got (%d, %d)", size, capacity)
		}
	})
}

func TestLRUTransactionCaching(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	tx := &domain.Transaction{
		ID:                  "tx-001",
		UserID:              "user-1",
		Amount:              250.0,
		Merchant:            "Medi-Global",
		Narrative:           "urgent transfer",
		ZScore:              5.2,
		SignatureMatchScore: 0.85,
		RiskLevel:           domain.RiskCritical,
		Status:              domain.StatusPending,
	}

	if err := cache.SetTransaction(ctx, tx.ID, tx, time.Minute); err != nil {
		t.Fatalf("SetTransaction failed: %v", err)
	}

	got, err := cache.GetTransaction(ctx, "tx-001")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached transaction")
	}
	if got.RiskLevel != domain.RiskCritical || got.ZScore != 5.2 {
		t.Errorf("transaction not round-tripped: %+v", got)
	}

	missing, err := cache.GetTransaction(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for miss, got %v, %v", missing, err)
	}
}

func TestLRUIncrementCounter(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("Increments", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, "velocity:user-1", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}
	})

	t.Run("IndependentKeys", func(t *testing.T) {
		got, _ := cache.IncrementCounter(ctx, "velocity:user-2", time.Minute)
		if got != 1 {
			t.Errorf("expected fresh counter at 1, got %d", got)
		}
	})

	t.Run("WindowReset", func(t *testing.T) {
		cache.IncrementCounter(ctx, "burst", 10*time.Millisecond)
		cache.IncrementCounter(ctx, "burst", 10*time.Millisecond)

		time.Sleep(20 * time.Millisecond)

		got, _ := cache.IncrementCounter(ctx, "burst", time.Minute)
		if got != 1 {
			t.Errorf("expected counter reset to 1 after window, got %d", got)
		}
	})
}

func TestCacheFactory(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
