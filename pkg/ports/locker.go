package ports

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when a lock is owned by someone else.
var ErrLockHeld = errors.New("lock is held by another owner")

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It lets replicas agree that only one run remediates a given workload at a time.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key (e.g., a remediation target).
	// It blocks until the lock is acquired, the context is canceled, or the TTL expires (implementation specific).
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
