package localcache

import (
	"testing"
)

func TestDisabledCacheIsSafe(t *testing.T) {
	cache := Open("")

	if cache.Enabled() {
		t.Fatal("cache without a directory must be disabled")
	}
	if got := cache.Get("anything"); got != nil {
		t.Fatalf("disabled Get should return nil, got %q", got)
	}
	cache.Set("anything", []byte("value"))
	if got := cache.Get("anything"); got != nil {
		t.Fatal("disabled Set must not store")
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("disabled Close should be a no-op: %v", err)
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var cache *Cache
	if cache.Enabled() {
		t.Fatal("nil cache must report disabled")
	}
	if cache.Get("key") != nil {
		t.Fatal("nil Get should return nil")
	}
}

func TestRoundTrip(t *testing.T) {
	cache := Open(t.TempDir())
	defer cache.Close()

	if !cache.Enabled() {
		t.Fatal("expected an enabled cache")
	}

	if got := cache.Get("missing"); got != nil {
		t.Fatalf("missing key should return nil, got %q", got)
	}

	cache.Set("cursor/whoop/user-1", []byte("2026-03-14T08:00:00Z"))
	if got := string(cache.Get("cursor/whoop/user-1")); got != "2026-03-14T08:00:00Z" {
		t.Fatalf("unexpected value %q", got)
	}

	cache.Set("cursor/whoop/user-1", []byte("2026-03-15T08:00:00Z"))
	if got := string(cache.Get("cursor/whoop/user-1")); got != "2026-03-15T08:00:00Z" {
		t.Fatalf("overwrite failed, got %q", got)
	}
}
