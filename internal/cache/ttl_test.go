package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get = %q, %v; want v, true", got, ok)
	}
}

func TestFalsyValuesAreHits(t *testing.T) {
	// Presence is key existence, not value truthiness.
	t.Run("false", func(t *testing.T) {
		c := New[bool](time.Minute)
		defer c.Stop()
		c.Set("k", false)
		got, ok := c.Get("k")
		if !ok || got != false {
			t.Errorf("Get = %v, %v; want false, true", got, ok)
		}
	})
	t.Run("zero", func(t *testing.T) {
		c := New[int](time.Minute)
		defer c.Stop()
		c.Set("k", 0)
		got, ok := c.Get("k")
		if !ok || got != 0 {
			t.Errorf("Get = %v, %v; want 0, true", got, ok)
		}
	})
	t.Run("empty string", func(t *testing.T) {
		c := New[string](time.Minute)
		defer c.Stop()
		c.Set("k", "")
		got, ok := c.Get("k")
		if !ok || got != "" {
			t.Errorf("Get = %q, %v; want empty hit", got, ok)
		}
	})
	t.Run("nil pointer", func(t *testing.T) {
		c := New[*int](time.Minute)
		defer c.Stop()
		c.Set("k", nil)
		got, ok := c.Get("k")
		if !ok || got != nil {
			t.Errorf("Get = %v, %v; want nil hit", got, ok)
		}
	})
}

func TestExpiryBoundary(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	base := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return base }
	c.Set("k", 42)

	// At exactly expires_at the entry still hits.
	c.now = func() time.Time { return base.Add(time.Minute) }
	if got, ok := c.Get("k"); !ok || got != 42 {
		t.Fatalf("Get at expiry = %v, %v; want 42, true", got, ok)
	}

	// One tick past expiry it misses and is evicted.
	c.now = func() time.Time { return base.Add(time.Minute + time.Nanosecond) }
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss one tick after expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d after eviction, want 0", c.Len())
	}
}

func TestSetResetsExpiry(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	base := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return base }
	c.Set("k", 1)

	// Rewrite halfway through the window; expiry restarts from there.
	c.now = func() time.Time { return base.Add(30 * time.Second) }
	c.Set("k", 2)

	c.now = func() time.Time { return base.Add(80 * time.Second) }
	got, ok := c.Get("k")
	if !ok || got != 2 {
		t.Fatalf("Get after reset = %v, %v; want 2, true", got, ok)
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	base := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	c.sweep()

	if c.Len() != 0 {
		t.Fatalf("Len after sweep = %d, want 0", c.Len())
	}
}

func TestFlush(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Flush()
	if c.Len() != 0 {
		t.Fatalf("Len after flush = %d, want 0", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 10 {
		t.Fatalf("Len = %d, want 10", c.Len())
	}
}
