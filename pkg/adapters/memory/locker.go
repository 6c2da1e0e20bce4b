package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

// Locker is an in-process ports.DistributedLocker for single replica setups.
// The TTL is ignored: a lock lives until its UnlockFunc is called.
type Locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocker creates an empty locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]chan struct{})}
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// Lock blocks until key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	s := l.slot(key)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-s })
		return nil
	}, nil
}
