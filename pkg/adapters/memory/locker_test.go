package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Exclusive(t *testing.T) {
	l := memory.NewLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "deploy/api", time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "deploy/api", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Lock(ctx, "deploy/worker", time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "unlock is idempotent")

	again, err := l.Lock(ctx, "deploy/api", time.Second)
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}
