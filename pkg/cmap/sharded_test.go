package cmap

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewWithShardCount(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{4, 4},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := newWithShards[int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("newWithShards(%d) shard count = %d, want %d", tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestMap_SetGetDelete(t *testing.T) {
	m := New[int]()

	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 3)

	if v, ok := m.Get("a"); !ok || v != 3 {
		t.Errorf("Get(a) = (%d, %v), want (3, true)", v, ok)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Error("Get(a) after Delete should miss")
	}

	if v, ok := m.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = (%d, %v), want (2, true)", v, ok)
	}
	m.Delete("b")
	m.Delete("b")
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestMap_SetIfAbsent(t *testing.T) {
	m := New[string]()

	if !m.SetIfAbsent("k", "first") {
		t.Fatal("SetIfAbsent() on empty map = false")
	}
	if m.SetIfAbsent("k", "second") {
		t.Error("SetIfAbsent() on present key = true")
	}
	if v, _ := m.Get("k"); v != "first" {
		t.Errorf("Get(k) = %q, want %q", v, "first")
	}
}

func TestMap_GetOrCreate(t *testing.T) {
	m := New[*int]()
	var calls atomic.Int32

	var wg sync.WaitGroup
	results := make([]*int, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCreate("shared", func() *int {
				calls.Add(1)
				return new(int)
			})
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("create called %d times, want 1", calls.Load())
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
}

func TestMap_RangeAndValues(t *testing.T) {
	m := newWithShards[int](4)
	for i := 0; i < 20; i++ {
		m.Set(fmt.Sprintf("k%02d", i), i)
	}

	values := m.Values()
	sort.Ints(values)
	if len(values) != 20 || values[0] != 0 || values[19] != 19 {
		t.Errorf("Values() = %v", values)
	}

	seen := 0
	m.Range(func(string, int) bool {
		seen++
		return seen < 5
	})
	if seen != 5 {
		t.Errorf("Range() visited %d entries after stop, want 5", seen)
	}
}

func TestMap_DeleteFuncAndClear(t *testing.T) {
	m := New[int]()
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}

	removed := m.DeleteFunc(func(_ string, v int) bool { return v%2 == 0 })
	if removed != 5 {
		t.Errorf("DeleteFunc() = %d, want 5", removed)
	}
	if m.Count() != 5 {
		t.Errorf("Count() = %d, want 5", m.Count())
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", m.Count())
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				m.Set(key, i)
				m.Get(key)
				if i%2 == 0 {
					m.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if m.Count() != 8*100 {
		t.Errorf("Count() = %d, want %d", m.Count(), 8*100)
	}
}
