// Package lock implements the WOPI lock table: at most one live lock per
// file, identified by an opaque client-chosen value, expiring 30 minutes
// after the last acquire or refresh. Expiry is evaluated lazily on every
// access; a lock past its deadline is treated as absent before any rule
// applies.
package lock

import (
	"context"
	"time"
)

// DefaultTTL is the lock lifetime from the last acquire/refresh/transfer.
const DefaultTTL = 30 * time.Minute

// Lock is a client-held marker on a single file.
type Lock struct {
	FileID    string `json:"file_id" dynamodbav:"file_id"`
	Value     string `json:"lock_value" dynamodbav:"lock_value"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
}

// ConflictError reports a lock-ownership mismatch. Current is the live
// holder's value ("" when no live lock exists) and is surfaced to the client
// in the X-WOPI-Lock response header for reconciliation.
type ConflictError struct {
	Current string
}

func (e *ConflictError) Error() string {
	return "lock conflict"
}

// Table is the lock table. Implementations must make every operation atomic
// with respect to other operations on the same fileID; operations on
// different fileIDs must not block each other. Value comparison is always
// exact-string and case-sensitive.
type Table interface {
	// Get returns the live lock for fileID, or nil when none exists.
	Get(ctx context.Context, fileID string) (*Lock, error)

	// Acquire creates or idempotently re-takes the lock. A live lock with a
	// different value yields a ConflictError carrying that value.
	Acquire(ctx context.Context, fileID, value string) error

	// Release removes the lock when the value matches a live lock.
	Release(ctx context.Context, fileID, value string) error

	// Refresh extends the lock's expiry on an exact value match.
	Refresh(ctx context.Context, fileID, value string) error

	// Transfer atomically replaces oldValue with newValue. On mismatch the
	// table is left exactly as it was; it is never left lockless.
	Transfer(ctx context.Context, fileID, oldValue, newValue string) error
}
