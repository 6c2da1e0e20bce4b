package remediation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/redis"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/remediation"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var restart = domain.Action{
	Kind:            domain.RemedyRestart,
	TargetKind:      "Deployment",
	TargetName:      "api",
	TargetNamespace: "default",
}

func TestWebhook_Apply(t *testing.T) {
	var got domain.Action
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := remediation.NewWebhook(srv.URL, remediation.WithHeader("X-Token", "secret"))
	require.NoError(t, wh.Apply(context.Background(), restart))
	assert.Equal(t, restart, got)
}

func TestWebhook_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden namespace", http.StatusForbidden)
	}))
	defer srv.Close()

	wh := remediation.NewWebhook(srv.URL)
	err := wh.Apply(context.Background(), restart)
	assert.ErrorContains(t, err, "403")
	assert.ErrorContains(t, err, "forbidden namespace")

	err = wh.Apply(context.Background(), domain.Action{Kind: "Delete"})
	assert.ErrorContains(t, err, "unsupported remedy type")
}

// slowRemediator records the peak number of concurrent Apply calls.
type slowRemediator struct {
	active, peak atomic.Int32
}

func (s *slowRemediator) Apply(ctx context.Context, _ domain.Action) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}

func TestLocked_SerializesSameTarget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &slowRemediator{}
	locked := remediation.NewLocked(inner, redis.NewLocker(client, "test:"), time.Second, nil)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, locked.Apply(context.Background(), restart))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.peak.Load())
	assert.Empty(t, mr.Keys())
}

func TestLocked_PropagatesErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := memory.NewRemediator()
	inner.Fail = assert.AnError
	locked := remediation.NewLocked(inner, redis.NewLocker(client, "test:"), 0, nil)

	assert.ErrorIs(t, locked.Apply(context.Background(), restart), assert.AnError)
	assert.Empty(t, mr.Keys(), "lock must be released after a failed apply")
}
