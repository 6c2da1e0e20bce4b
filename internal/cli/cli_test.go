package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nvrdftd/evolve-ai-infra/internal/config"
	"github.com/nvrdftd/evolve-ai-infra/internal/workflow"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/redis"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{"WORKFLOW_MAX_ATTEMPTS": "2"}
	for k, v := range vars {
		env[k] = v
	}
	cfg, err := config.LoadWith("", func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func TestExecute_Assistant(t *testing.T) {
	cfg := baseConfig(t, map[string]string{"WORKFLOW_GRAPH": "assistant"})
	model := memory.NewModel(
		domain.AssistantMessage("", domain.ToolCall{ID: "c1", Name: "add", Arguments: json.RawMessage(`{"a":3,"b":4}`)}),
		domain.AssistantMessage("3 + 4 = 7"),
	)
	c, err := Build(context.Background(), cfg, nil, WithModel(model))
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, workflow.AssistantGraph, c.Engine.Graph().Name())

	var out bytes.Buffer
	res, err := Execute(context.Background(), c, RunOptions{Message: "add 3 and 4", JSON: true, Output: &out})
	require.NoError(t, err)
	assert.Equal(t, domain.EventCompleted, res.Final.Type)
	require.NotNil(t, res.Final.State)
	assert.Equal(t, 2, res.Final.State.CallCount)
	assert.Equal(t, []string{workflow.NodeLLMCall, workflow.NodeTools, workflow.NodeLLMCall}, res.Visited)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "completed", last["type"])

	assert.Eventually(t, func() bool {
		ids, err := c.Runs.List(context.Background(), 10)
		return err == nil && len(ids) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestExecute_RejectsEmptyMessage(t *testing.T) {
	cfg := baseConfig(t, map[string]string{"WORKFLOW_GRAPH": "assistant"})
	c, err := Build(context.Background(), cfg, nil, WithModel(memory.NewModel()))
	require.NoError(t, err)

	_, err = Execute(context.Background(), c, RunOptions{Message: "   ", Output: &bytes.Buffer{}})
	assert.ErrorContains(t, err, "invalid message")
}

func TestExecute_FailedRun(t *testing.T) {
	cfg := baseConfig(t, map[string]string{"WORKFLOW_GRAPH": "assistant"})
	c, err := Build(context.Background(), cfg, nil, WithModel(memory.NewModel().ThenError(assert.AnError)))
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := Execute(context.Background(), c, RunOptions{Message: "hi", Output: &out})
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, domain.EventFailed, res.Final.Type)
	assert.Contains(t, out.String(), "failed")
}

func TestBuild_Incident(t *testing.T) {
	t.Run("Requires Metrics Endpoint", func(t *testing.T) {
		_, err := Build(context.Background(), baseConfig(t, nil), nil, WithModel(memory.NewModel()))
		assert.ErrorContains(t, err, "metrics.endpoint")
	})

	t.Run("Prometheus Endpoint", func(t *testing.T) {
		cfg := baseConfig(t, map[string]string{"METRICS_ENDPOINT": "http://localhost:9090"})
		c, err := Build(context.Background(), cfg, nil, WithModel(memory.NewModel()))
		require.NoError(t, err)
		assert.Equal(t, workflow.IncidentGraph, c.Engine.Graph().Name())
		assert.IsType(t, &memory.Store{}, c.Runs)
	})

	t.Run("Redis Backend", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		c, err := Build(context.Background(), baseConfig(t, nil), nil,
			WithModel(memory.NewModel()),
			WithMetricsSource(memory.NewMetrics()),
			WithRedisClient(client),
		)
		require.NoError(t, err)
		assert.IsType(t, &redis.Store{}, c.Runs)
		assert.IsType(t, &redis.Knowledge{}, c.Knowledge)
	})

	t.Run("Unreachable Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := baseConfig(t, map[string]string{"REDIS_ADDR": addr})
		_, err := Build(context.Background(), cfg, nil, WithModel(memory.NewModel()), WithMetricsSource(memory.NewMetrics()))
		assert.ErrorContains(t, err, "failed to reach redis")
	})
}

func TestBuildTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: uptime
    command: sh
    args: ["-c", "echo up"]
`), 0o644))

	reg, err := buildTools(config.AgentConfig{ToolsFile: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "multiply", "uptime"}, reg.Names())

	reg, err = buildTools(config.AgentConfig{ToolsFile: path, Tools: []string{"up*"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"uptime"}, reg.Names())

	_, err = buildTools(config.AgentConfig{Tools: []string{"divide"}})
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "runbooks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runbooks", "oom.md"), []byte("# OOMKilled\n\nRaise the memory limit of the pod."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.bin"), []byte{0, 1, 2}, 0o644))

	kb := memory.NewKnowledge()
	n, err := Ingest(context.Background(), kb, dir, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := kb.Search(context.Background(), "memory limit", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0], "memory limit")

	// Ingesting the same tree again replaces passages instead of duplicating them.
	_, err = Ingest(context.Background(), kb, dir, 0)
	require.NoError(t, err)
	hits, err = kb.Search(context.Background(), "memory limit", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Len(t, kb.Documents(), 1)

	_, err = Ingest(context.Background(), kb, dir, 0, "*.pdf")
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
}

func TestBuild_ProtectsRuns(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cfg := baseConfig(t, map[string]string{"WORKFLOW_GRAPH": "assistant", "RUNS_ENCRYPTION_KEY": key})
	cfg.Runs.RedactKeys = []string{"password"}

	c, err := Build(context.Background(), cfg, nil, WithModel(memory.NewModel(domain.AssistantMessage("done"))))
	require.NoError(t, err)

	res, err := Execute(context.Background(), c, RunOptions{Message: "hi", Output: &bytes.Buffer{}})
	require.NoError(t, err)

	var rec domain.RunRecord
	require.Eventually(t, func() bool {
		rec, err = c.Runs.Load(context.Background(), res.Final.RunID)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	require.Len(t, rec.State.Messages, 2)

	cfg.Runs.RedactKeys = []string{"("}
	_, err = Build(context.Background(), cfg, nil, WithModel(memory.NewModel()))
	assert.ErrorContains(t, err, "runs.redact_keys")
}
