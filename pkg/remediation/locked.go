// Package remediation provides Remediator implementations and decorators.
package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can block a target.
const DefaultLockTTL = 30 * time.Second

// Locked serializes remediation per target across replicas.
type Locked struct {
	next   ports.Remediator
	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// NewLocked wraps next so that actions on the same target never overlap.
func NewLocked(next ports.Remediator, locker ports.DistributedLocker, ttl time.Duration, logger *slog.Logger) *Locked {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Locked{next: next, locker: locker, ttl: ttl, logger: logger}
}

// Apply acquires the target lock, applies the action and releases the lock.
func (l *Locked) Apply(ctx context.Context, action domain.Action) error {
	key := "remediate:" + action.Target()
	unlock, err := l.locker.Lock(ctx, key, l.ttl)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", action.Target(), err)
	}
	defer func() {
		// Release even if ctx was cancelled mid-apply.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("failed to release remediation lock", "target", action.Target(), "error", err)
		}
	}()

	l.logger.DebugContext(ctx, "remediation lock acquired", "target", action.Target(), "type", action.Kind)
	return l.next.Apply(ctx, action)
}
