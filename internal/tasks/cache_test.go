package tasks

import (
	"fmt"
	"sync"
	"testing"
)

func TestRequestCache(t *testing.T) {
	t.Run("GetAndSet", func(t *testing.T) {
		cache := NewRequestCache()

		if _, ok := cache.Get("missing"); ok {
			t.Error("Get() on empty cache reported a hit")
		}
		cache.Set("k", 42)
		value, ok := cache.Get("k")
		if !ok {
			t.Fatal("Get() after Set() reported a miss")
		}
		if value.(int) != 42 {
			t.Errorf("Get() = %v, want 42", value)
		}

		stats := cache.Stats()
		if stats.Hits != 1 || stats.Misses != 1 {
			t.Errorf("Stats() = %+v, want 1 hit / 1 miss", stats)
		}
	})

	t.Run("ClearReturnsAndResets", func(t *testing.T) {
		cache := NewRequestCache()
		cache.Set("a", 1)
		cache.Set("b", 2)
		cache.Get("a")
		cache.Get("nope")

		stats := cache.Clear()
		if stats.Hits != 1 || stats.Misses != 1 || stats.EntriesCleared != 2 {
			t.Errorf("Clear() = %+v, want 1/1/2", stats)
		}

		// The cache stays usable with fresh counters.
		if _, ok := cache.Get("a"); ok {
			t.Error("Get() found an entry that Clear() should have dropped")
		}
		after := cache.Stats()
		if after.Hits != 0 || after.Misses != 1 || after.EntriesCleared != 0 {
			t.Errorf("Stats() after Clear() = %+v, want 0/1/0", after)
		}
	})

	t.Run("StatsDoesNotReset", func(t *testing.T) {
		cache := NewRequestCache()
		cache.Get("x")
		cache.Stats()
		if stats := cache.Stats(); stats.Misses != 1 {
			t.Errorf("Stats() = %+v, want the miss to persist", stats)
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		cache := NewRequestCache()
		const goroutines = 10
		const lookups = 50

		var wg sync.WaitGroup
		for g := range goroutines {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				key := fmt.Sprintf("worker:%d", g)
				cache.Set(key, g)
				for range lookups {
					cache.Get(key)
				}
			}(g)
		}
		wg.Wait()

		stats := cache.Stats()
		if total := stats.Hits + stats.Misses; total != goroutines*lookups {
			t.Errorf("lookups counted = %d, want %d", total, goroutines*lookups)
		}
		if stats.EntriesCleared != goroutines {
			t.Errorf("entries = %d, want %d", stats.EntriesCleared, goroutines)
		}
	})
}

func TestCacheKeys(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"commits page", CommitsPageKey("v1.0.0", 2, 200), "commits:v1.0.0:p2:n200"},
		{"compare", CompareKey("v1.0.0", "v1.1.0"), "compare:v1.0.0:v1.1.0"},
		{"tags", TagsKey("galaxy"), "tags:galaxy"},
		{"branch tasks", BranchTasksKey("release/1.0"), "branch_tasks:release/1.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("key = %q, want %q", tc.got, tc.want)
			}
		})
	}
}
