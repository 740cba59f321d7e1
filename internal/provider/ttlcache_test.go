package provider

import (
	"fmt"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	t.Parallel()

	c := NewTTLCache(10, 5*time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v.(int) != 1 {
		t.Fatalf("expected fresh entry, got %v %v", v, ok)
	}

	now = now.Add(5*time.Minute + time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry removed, len=%d", c.Len())
	}
}

func TestTTLCacheBounded(t *testing.T) {
	t.Parallel()

	c := NewTTLCache(3, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		now = now.Add(time.Second)
	}
	c.Set("k3", 3)

	if c.Len() != 3 {
		t.Fatalf("expected cache capped at 3 entries, len=%d", c.Len())
	}
	// k0 was closest to expiry and should have been evicted.
	if _, ok := c.Get("k0"); ok {
		t.Error("expected oldest entry evicted")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("expected newest entry retained")
	}
}

func TestTTLCacheOverwriteExistingKeyWhenFull(t *testing.T) {
	t.Parallel()

	c := NewTTLCache(2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	if c.Len() != 2 {
		t.Fatalf("expected overwrite not to evict, len=%d", c.Len())
	}
	if v, _ := c.Get("a"); v.(int) != 3 {
		t.Errorf("expected overwritten value 3, got %v", v)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected other entry untouched")
	}
}
