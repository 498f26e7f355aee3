package cache

import (
	"testing"
	"time"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRU[string](2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	c.Set("c", "3") // evicts b, a was refreshed by the Get above
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("expected a to survive eviction, got %q, %v", v, ok)
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU[int](4, time.Millisecond)
	c.Set("k", 7)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestLRUZeroTTLNeverExpires(t *testing.T) {
	c := NewLRU[int](4, 0)
	c.Set("k", 7)
	time.Sleep(2 * time.Millisecond)
	if v, ok := c.Get("k"); !ok || v != 7 {
		t.Fatalf("entry should not expire with zero ttl, got %d, %v", v, ok)
	}
}

func TestHashKeyStable(t *testing.T) {
	if HashKey("x") != HashKey("x") {
		t.Fatalf("hash must be deterministic")
	}
	if HashKey("x") == HashKey("y") {
		t.Fatalf("distinct inputs should hash apart")
	}
}
