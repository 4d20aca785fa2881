package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache[V any](maxSize int, expiry time.Duration) (*Cache[V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewWithConfig[V](maxSize, expiry, 0)
	c.now = clock.Now
	return c, clock
}

func TestCache_Basic(t *testing.T) {
	c := New[string]()
	defer c.Close()

	c.Set("42", "si")

	value, exists := c.Get("42")
	if !exists {
		t.Fatal("Expected key 42 to exist")
	}
	if value != "si" {
		t.Errorf("Expected 'si', got %q", value)
	}

	if _, exists := c.Get("nonexistent"); exists {
		t.Error("Expected nonexistent key to not exist")
	}
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache[string](10, time.Minute)

	c.Set("k", "v")
	clock.Advance(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Expected item to exist before expiry")
	}

	clock.Advance(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected item to be expired")
	}
	if c.Size() != 0 {
		t.Errorf("Expected expired item to be removed, size=%d", c.Size())
	}
}

func TestCache_SizeLimitEvictsSoonestExpiry(t *testing.T) {
	c, clock := newTestCache[int](3, time.Hour)

	c.Set("a", 1)
	clock.Advance(time.Second)
	c.Set("b", 2)
	clock.Advance(time.Second)
	c.Set("c", 3)
	clock.Advance(time.Second)
	c.Set("d", 4)

	if c.Size() != 3 {
		t.Fatalf("Expected size 3, got %d", c.Size())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Expected %s to survive eviction", k)
		}
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache[int](2, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Expected overwritten value 10, got %d", v)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("Expected b to survive overwrite of a")
	}
}

func TestCache_SetIfAbsent(t *testing.T) {
	c, clock := newTestCache[struct{}](10, time.Minute)

	if !c.SetIfAbsent("cb-1", struct{}{}) {
		t.Fatal("Expected first SetIfAbsent to store")
	}
	if c.SetIfAbsent("cb-1", struct{}{}) {
		t.Error("Expected duplicate SetIfAbsent to be rejected")
	}

	clock.Advance(2 * time.Minute)
	if !c.SetIfAbsent("cb-1", struct{}{}) {
		t.Error("Expected SetIfAbsent to succeed after expiry")
	}
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache[string](10, time.Hour)

	c.Set("k", "v")
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("Expected deleted key to be gone")
	}
}

func TestCache_Cleanup(t *testing.T) {
	c, clock := newTestCache[string](10, time.Minute)

	c.Set("a", "1")
	c.SetWithExpiry("b", "2", time.Hour)
	clock.Advance(2 * time.Minute)
	c.cleanupExpired()

	if c.Size() != 1 {
		t.Errorf("Expected 1 item after cleanup, got %d", c.Size())
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := NewWithConfig[int](100, time.Minute, 10*time.Millisecond)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("k-%d-%d", id, j)
				c.Set(key, j)
				c.Get(key)
				c.SetIfAbsent(key, j)
			}
		}(i)
	}
	wg.Wait()

	if c.Size() > 100 {
		t.Errorf("Expected size to stay bounded at 100, got %d", c.Size())
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := NewWithConfig[int](10, time.Minute, time.Millisecond)
	c.Close()
	c.Close()
}
