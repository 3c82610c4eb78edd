package lock

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process Table for single-instance deployments. Each file
// gets its own entry with its own mutex, so lock traffic on one document
// never blocks another. Entries exist only while a lock is held: releases
// and lazy expiry remove them from the map, so the table does not grow with
// every file identifier ever touched.
type Memory struct {
	entries sync.Map // fileID -> *entry
	ttl     time.Duration
}

type entry struct {
	mu        sync.Mutex
	value     string
	expiresAt int64 // Unix seconds
	evicted   bool
}

// NewMemory creates an in-memory lock table with the default TTL.
func NewMemory() *Memory {
	return &Memory{ttl: DefaultTTL}
}

// lockEntry returns the entry for fileID with its mutex held, creating one
// if needed. An entry evicted between the map load and the mutex
// acquisition is retried so no caller ever mutates a removed entry.
func (m *Memory) lockEntry(fileID string) *entry {
	for {
		v, _ := m.entries.LoadOrStore(fileID, &entry{})
		e := v.(*entry)
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
	}
}

// loadEntry is the non-creating variant for operations that conflict on an
// absent lock anyway. The returned entry is locked; nil means absent.
func (m *Memory) loadEntry(fileID string) *entry {
	v, ok := m.entries.Load(fileID)
	if !ok {
		return nil
	}
	e := v.(*entry)
	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		return nil
	}
	return e
}

// evict removes the entry from the map. Caller holds e.mu.
func (m *Memory) evict(fileID string, e *entry) {
	e.evicted = true
	m.entries.Delete(fileID)
}

// expire applies lazy expiry: an entry past its deadline is reaped and
// reported absent. Caller holds e.mu.
func (m *Memory) expire(fileID string, e *entry, now int64) bool {
	if e.expiresAt <= now {
		m.evict(fileID, e)
		return true
	}
	return false
}

func (m *Memory) Get(_ context.Context, fileID string) (*Lock, error) {
	e := m.loadEntry(fileID)
	if e == nil {
		return nil, nil
	}
	defer e.mu.Unlock()

	if m.expire(fileID, e, time.Now().Unix()) {
		return nil, nil
	}
	return &Lock{FileID: fileID, Value: e.value, ExpiresAt: e.expiresAt}, nil
}

func (m *Memory) Acquire(_ context.Context, fileID, value string) error {
	e := m.lockEntry(fileID)
	defer e.mu.Unlock()

	now := time.Now().Unix()
	if e.value != "" && e.expiresAt > now && e.value != value {
		return &ConflictError{Current: e.value}
	}
	e.value = value
	e.expiresAt = now + int64(m.ttl.Seconds())
	return nil
}

func (m *Memory) Release(_ context.Context, fileID, value string) error {
	e := m.loadEntry(fileID)
	if e == nil {
		return &ConflictError{Current: ""}
	}
	defer e.mu.Unlock()

	if m.expire(fileID, e, time.Now().Unix()) {
		return &ConflictError{Current: ""}
	}
	if e.value != value {
		return &ConflictError{Current: e.value}
	}
	m.evict(fileID, e)
	return nil
}

func (m *Memory) Refresh(_ context.Context, fileID, value string) error {
	e := m.loadEntry(fileID)
	if e == nil {
		return &ConflictError{Current: ""}
	}
	defer e.mu.Unlock()

	now := time.Now().Unix()
	if m.expire(fileID, e, now) {
		return &ConflictError{Current: ""}
	}
	if e.value != value {
		return &ConflictError{Current: e.value}
	}
	e.expiresAt = now + int64(m.ttl.Seconds())
	return nil
}

func (m *Memory) Transfer(_ context.Context, fileID, oldValue, newValue string) error {
	e := m.loadEntry(fileID)
	if e == nil {
		return &ConflictError{Current: ""}
	}
	defer e.mu.Unlock()

	now := time.Now().Unix()
	if m.expire(fileID, e, now) {
		return &ConflictError{Current: ""}
	}
	if e.value != oldValue {
		return &ConflictError{Current: e.value}
	}
	e.value = newValue
	e.expiresAt = now + int64(m.ttl.Seconds())
	return nil
}
