package embedding

import (
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	c := NewEmbeddingCache(4)
	src := []float32{1, 2}
	c.Set("k", src)
	src[0] = 99
	got, _ := c.Get("k")
	if got[0] != 1 {
		t.Errorf("Set should store a copy, got %v", got)
	}
	got[1] = 42
	again, _ := c.Get("k")
	if again[1] != 2 {
		t.Errorf("Get should return a copy, got %v", again)
	}
}

func TestEmbeddingCache_ZeroCapacity(t *testing.T) {
	c := NewEmbeddingCache(0)
	c.Set("a", []float32{1})
	if _, ok := c.Get("a"); ok {
		t.Error("zero capacity cache should not store entries")
	}
	if c.lru.Len() != 0 || len(c.cache) != 0 {
		t.Errorf("zero capacity cache holds %d entries", c.lru.Len())
	}
}
