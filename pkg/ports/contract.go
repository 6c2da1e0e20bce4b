package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRunStoreContract runs a suite of tests to verify that a RunStore implementation
// adheres to the defined interface contract.
func RunRunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405.000000")

	record := func(id string, finished time.Time) domain.RunRecord {
		return domain.RunRecord{
			ID:     id,
			Graph:  "contract",
			Status: domain.StatusCompleted,
			State: domain.State{
				Messages:  []domain.Message{domain.HumanMessage("hi"), domain.AssistantMessage("hello")},
				CallCount: 1,
				Values:    map[string]any{"foo": "bar"},
			},
			StartedAt:  finished.Add(-time.Second),
			FinishedAt: finished,
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		rec := record(runID, time.Now().UTC())
		require.NoError(t, store.Save(ctx, rec), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.ID, loaded.ID)
		assert.Equal(t, rec.Status, loaded.Status)
		assert.Equal(t, rec.State.Messages, loaded.State.Messages)
		assert.Equal(t, 1, loaded.State.CallCount)
		assert.Equal(t, "bar", loaded.State.Values["foo"])
		assert.True(t, rec.FinishedAt.Equal(loaded.FinishedAt))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, record(runID, time.Now())))
		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List Newest First", func(t *testing.T) {
		base := time.Now().Add(time.Hour)
		ids := make([]string, 3)
		for i := range ids {
			ids[i] = fmt.Sprintf("%s-%d", runID, i)
			require.NoError(t, store.Save(ctx, record(ids[i], base.Add(time.Duration(i)*time.Minute))))
		}
		defer func() {
			for _, id := range ids {
				_ = store.Delete(ctx, id)
			}
		}()

		listed, err := store.List(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2], ids[1]}, listed)
	})
}

// RunKnowledgeStoreContract verifies the observable behavior of a KnowledgeStore.
// Ranking is implementation specific, so only relevance and limits are asserted.
func RunKnowledgeStoreContract(t *testing.T, store KnowledgeStore) {
	ctx := context.Background()

	docs := []domain.Document{
		{Text: "High CPU on the deployment controller is usually fixed by scaling replicas", Metadata: map[string]string{"topic": "cpu"}},
		{Text: "OOMKilled pods need a higher memory limit", Metadata: map[string]string{"topic": "memory"}},
		{Text: "Workqueue latency grows when the controller is CPU throttled"},
	}

	t.Run("Add and Search", func(t *testing.T) {
		require.NoError(t, store.Add(ctx, docs))

		hits, err := store.Search(ctx, "memory limit", 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, docs[1].Text, hits[0])
	})

	t.Run("TopK Limit", func(t *testing.T) {
		hits, err := store.Search(ctx, "controller cpu", 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("No Match", func(t *testing.T) {
		hits, err := store.Search(ctx, "zebra", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("Re-add Replaces By ID", func(t *testing.T) {
		doc := domain.Document{ID: "runbook-crashloop", Text: "restart crashloop pod"}
		require.NoError(t, store.Add(ctx, []domain.Document{doc}))
		require.NoError(t, store.Add(ctx, []domain.Document{doc, doc}))

		hits, err := store.Search(ctx, "crashloop", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{doc.Text}, hits)

		doc.Text = "cordon crashloop node"
		require.NoError(t, store.Add(ctx, []domain.Document{doc}))
		hits, err = store.Search(ctx, "crashloop", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{doc.Text}, hits)

		hits, err = store.Search(ctx, "restart", 5)
		require.NoError(t, err)
		assert.Empty(t, hits, "terms of the replaced passage must be unindexed")
	})

	t.Run("Empty Add", func(t *testing.T) {
		assert.ErrorIs(t, store.Add(ctx, nil), domain.ErrNoDocuments)
	})
}
