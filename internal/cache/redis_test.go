// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := &RedisCache{
		client: client,
		logger: testLogger(),
	}
	t.Cleanup(func() { _ = cache.Close() })

	return mr, cache
}

func TestRedisCacheSetGet(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("test-key", []float32{0.25, -0.5, 1}, 5*time.Minute)

	vec, found := cache.Get("test-key")
	if !found {
		t.Fatal("expected value to be found")
	}
	if !reflect.DeepEqual(vec, []float32{0.25, -0.5, 1}) {
		t.Errorf("unexpected vector: %v", vec)
	}

	stats := cache.Stats()
	if stats.Sets != 1 {
		t.Errorf("expected 1 set, got %d", stats.Sets)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
}

func TestRedisCacheGetMissing(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	vec, found := cache.Get("nonexistent")
	if found {
		t.Error("expected value to not be found")
	}
	if vec != nil {
		t.Errorf("expected nil vector, got %v", vec)
	}

	stats := cache.Stats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	// Bypass Set to plant a payload that is not a float array.
	if err := mr.Set("bad", "not json"); err != nil {
		t.Fatalf("failed to seed miniredis: %v", err)
	}

	_, found := cache.Get("bad")
	if found {
		t.Error("expected corrupt entry to be treated as a miss")
	}
	if got := cache.Stats().Misses; got != 1 {
		t.Errorf("expected 1 miss, got %d", got)
	}
}

func TestRedisCacheTTL(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("ttl-key", []float32{1, 2}, 100*time.Millisecond)

	_, found := cache.Get("ttl-key")
	if !found {
		t.Fatal("expected value to be found immediately")
	}

	// Fast-forward time in miniredis
	mr.FastForward(200 * time.Millisecond)

	_, found = cache.Get("ttl-key")
	if found {
		t.Error("expected value to be expired")
	}
}

func TestRedisCacheDelete(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("delete-key", []float32{1}, 5*time.Minute)

	_, found := cache.Get("delete-key")
	if !found {
		t.Fatal("expected value to exist before delete")
	}

	cache.Delete("delete-key")

	_, found = cache.Get("delete-key")
	if found {
		t.Error("expected value to be deleted")
	}
}

func TestRedisCacheClear(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("key1", []float32{1}, 5*time.Minute)
	cache.Set("key2", []float32{2}, 5*time.Minute)
	cache.Set("key3", []float32{3}, 5*time.Minute)

	cache.Clear()

	_, found := cache.Get("key1")
	if found {
		t.Error("expected key1 to be cleared")
	}
}

func TestRedisCacheLargeVector(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	vec := make([]float32, 768)
	for i := range vec {
		vec[i] = float32(i) / 768
	}

	cache.Set("embedding", vec, 5*time.Minute)

	got, found := cache.Get("embedding")
	if !found {
		t.Fatal("expected embedding to be found")
	}
	if !reflect.DeepEqual(got, vec) {
		t.Error("embedding did not survive the round trip")
	}
}

func TestRedisCacheHealthCheck(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	ctx := context.Background()

	if err := cache.HealthCheck(ctx); err != nil {
		t.Errorf("expected healthy Redis, got error: %v", err)
	}

	mr.Close()

	if err := cache.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail after Redis shutdown")
	}
}

func TestRedisCacheConcurrentAccess(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	const numGoroutines = 10
	const numOps = 50

	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numOps; j++ {
				cache.Set("concurrent-key", []float32{float32(id)}, 5*time.Minute)
				cache.Get("concurrent-key")
			}
			done <- true
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	stats := cache.Stats()
	expectedSets := int64(numGoroutines * numOps)
	if stats.Sets != expectedSets {
		t.Errorf("expected %d sets, got %d", expectedSets, stats.Sets)
	}
}

func BenchmarkRedisCacheSet(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := &RedisCache{client: client, logger: testLogger()}
	vec := make([]float32, 768)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Set("bench-key", vec, 5*time.Minute)
	}
}

func BenchmarkRedisCacheGet(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := &RedisCache{client: client, logger: testLogger()}
	cache.Set("bench-key", make([]float32, 768), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get("bench-key")
	}
}
