package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemory_AcquireAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Acquire(ctx, "doc1", "abc"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	l, err := m.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l == nil || l.Value != "abc" {
		t.Fatalf("Expected live lock 'abc', got %+v", l)
	}
	if l.ExpiresAt <= time.Now().Unix() {
		t.Error("Expected expiry in the future")
	}
}

func TestMemory_AcquireIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Acquire(ctx, "doc1", "abc"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := m.Acquire(ctx, "doc1", "abc"); err != nil {
		t.Errorf("Re-acquire with same value must succeed: %v", err)
	}
}

func TestMemory_AcquireConflictCarriesHolder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Acquire(ctx, "doc1", "abc")
	err := m.Acquire(ctx, "doc1", "xyz")

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if conflict.Current != "abc" {
		t.Errorf("Conflict must carry the holder's value, got %q", conflict.Current)
	}
}

func TestMemory_ReleaseRules(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Release of an unlocked file conflicts with an empty current value.
	err := m.Release(ctx, "doc1", "abc")
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Current != "" {
		t.Fatalf("Expected empty-value conflict, got %v", err)
	}

	m.Acquire(ctx, "doc1", "abc")
	if err := m.Release(ctx, "doc1", "wrong"); !errors.As(err, &conflict) || conflict.Current != "abc" {
		t.Fatalf("Expected conflict carrying 'abc', got %v", err)
	}
	if err := m.Release(ctx, "doc1", "abc"); err != nil {
		t.Fatalf("Matching release failed: %v", err)
	}
	if l, _ := m.Get(ctx, "doc1"); l != nil {
		t.Errorf("Expected no lock after release, got %+v", l)
	}
}

func TestMemory_RefreshExtends(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Acquire(ctx, "doc1", "abc")
	first, _ := m.Get(ctx, "doc1")

	time.Sleep(1100 * time.Millisecond)
	if err := m.Refresh(ctx, "doc1", "abc"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	second, _ := m.Get(ctx, "doc1")
	if second.ExpiresAt <= first.ExpiresAt {
		t.Errorf("Expected refresh to extend expiry: %d -> %d", first.ExpiresAt, second.ExpiresAt)
	}

	if err := m.Refresh(ctx, "doc1", "xyz"); err == nil {
		t.Error("Refresh with wrong value must conflict")
	}
}

func TestMemory_TransferAtomic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Acquire(ctx, "doc1", "old")
	if err := m.Transfer(ctx, "doc1", "old", "new"); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	l, _ := m.Get(ctx, "doc1")
	if l == nil || l.Value != "new" {
		t.Fatalf("Expected lock 'new', got %+v", l)
	}

	// A mismatched transfer must leave the lock completely unchanged.
	err := m.Transfer(ctx, "doc1", "stale", "other")
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Current != "new" {
		t.Fatalf("Expected conflict carrying 'new', got %v", err)
	}
	l, _ = m.Get(ctx, "doc1")
	if l == nil || l.Value != "new" {
		t.Errorf("Failed transfer must not disturb the lock, got %+v", l)
	}
}

func TestMemory_LazyExpiry(t *testing.T) {
	m := NewMemory()
	m.ttl = -time.Second // every lock is born expired
	ctx := context.Background()

	if err := m.Acquire(ctx, "doc1", "abc"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if l, _ := m.Get(ctx, "doc1"); l != nil {
		t.Errorf("Expired lock must read as absent, got %+v", l)
	}

	// Acquire with any new value succeeds as if no lock existed.
	m.ttl = DefaultTTL
	if err := m.Acquire(ctx, "doc1", "xyz"); err != nil {
		t.Errorf("Acquire over expired lock failed: %v", err)
	}

	// Refresh and release of an expired lock conflict with empty value.
	m.ttl = -time.Second
	m.Acquire(ctx, "doc2", "abc")
	var conflict *ConflictError
	if err := m.Refresh(ctx, "doc2", "abc"); !errors.As(err, &conflict) || conflict.Current != "" {
		t.Errorf("Expected empty conflict refreshing expired lock, got %v", err)
	}
	if err := m.Release(ctx, "doc2", "abc"); !errors.As(err, &conflict) || conflict.Current != "" {
		t.Errorf("Expected empty conflict releasing expired lock, got %v", err)
	}
}

func entryCount(m *Memory) int {
	n := 0
	m.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func TestMemory_UnlockedEntriesReaped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Reads of never-locked files must not allocate table entries.
	for _, id := range []string{"a", "b", "c"} {
		m.Get(ctx, id)
		m.Release(ctx, id, "x")
		m.Refresh(ctx, id, "x")
	}
	if n := entryCount(m); n != 0 {
		t.Fatalf("Expected empty table after misses, got %d entries", n)
	}

	// A release removes the entry, not just the value.
	m.Acquire(ctx, "doc1", "abc")
	if n := entryCount(m); n != 1 {
		t.Fatalf("Expected 1 entry while held, got %d", n)
	}
	m.Release(ctx, "doc1", "abc")
	if n := entryCount(m); n != 0 {
		t.Errorf("Expected entry gone after release, got %d", n)
	}

	// Lazy expiry reaps too.
	m.ttl = -time.Second
	m.Acquire(ctx, "doc2", "abc")
	m.Get(ctx, "doc2")
	if n := entryCount(m); n != 0 {
		t.Errorf("Expected expired entry reaped on read, got %d", n)
	}
}

func TestMemory_DifferentFilesIndependent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Acquire(ctx, "doc1", "a")
	if err := m.Acquire(ctx, "doc2", "b"); err != nil {
		t.Fatalf("Locks on different files must be independent: %v", err)
	}
}

func TestMemory_ConcurrentAcquire(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Many goroutines race to lock the same file with distinct values;
	// exactly one may win and everyone else must see the winner's value.
	const n = 32
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := string(rune('a' + i%26))
			if err := m.Acquire(ctx, "doc1", value); err == nil {
				wins <- value
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	l, _ := m.Get(ctx, "doc1")
	if l == nil {
		t.Fatal("Expected a lock to be held")
	}
	for w := range wins {
		if w != l.Value {
			t.Fatalf("Winner %q does not match held lock %q", w, l.Value)
		}
	}
}
