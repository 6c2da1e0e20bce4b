package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "default/api", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:default/api"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:default/api"))
}

func TestLocker_Contention(t *testing.T) {
	_, client := newClient(t)
	locker := NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "default/api", 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(waitCtx, "default/api", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(250*time.Millisecond), time.Now(), 150*time.Millisecond)
}

func TestLocker_UnlockKeepsForeignLock(t *testing.T) {
	mr, client := newClient(t)
	locker := NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	// Lock expired and was taken by another owner.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("test:lock:k", "someone-else"))

	require.NoError(t, unlock(ctx))
	val, err := mr.Get("test:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
