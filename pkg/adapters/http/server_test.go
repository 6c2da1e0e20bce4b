package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nvrdftd/evolve-ai-infra"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, handler graph.Handler, opts ...evolve.Option) *evolve.Engine {
	t.Helper()
	g, err := graph.New("echo").
		AddNode("reply", handler).
		AddEdge("reply", graph.END).
		SetEntry("reply").
		Compile()
	require.NoError(t, err)
	eng, err := evolve.New(g, opts...)
	require.NoError(t, err)
	return eng
}

func echo(_ context.Context, s domain.State) (domain.Update, error) {
	last, _ := s.LastMessage()
	return domain.Update{Messages: []domain.Message{domain.AssistantMessage("echo: " + last.Content)}, CallCount: 1}, nil
}

func newServer(t *testing.T, eng Engine, opts ...Option) *httptest.Server {
	t.Helper()
	h, err := NewHandler(eng, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sseData(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			out = append(out, line)
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestInvokeAgent_Streams(t *testing.T) {
	srv := newServer(t, newEngine(t, echo))

	resp := post(t, srv.URL+"/api/v1/agent/invoke", `{"message":"disk full on node-3"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	data := sseData(t, resp)
	require.Len(t, data, 3)
	assert.Equal(t, "[DONE]", data[2])

	var delta struct {
		Type  string            `json:"type"`
		Delta domain.StateDelta `json:"delta"`
	}
	require.NoError(t, json.Unmarshal([]byte(data[0]), &delta))
	assert.Equal(t, "delta", delta.Type)
	assert.Equal(t, "reply", delta.Delta.Node)
	require.Len(t, delta.Delta.Messages, 1)
	assert.Equal(t, "echo: disk full on node-3", delta.Delta.Messages[0].Content)

	var final struct {
		Type  string       `json:"type"`
		State domain.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(data[1]), &final))
	assert.Equal(t, "completed", final.Type)
	assert.Equal(t, 1, final.State.CallCount)
}

func TestInvokeAgent_FailureIsSanitized(t *testing.T) {
	eng := newEngine(t, func(context.Context, domain.State) (domain.Update, error) {
		return domain.Update{}, errors.New("dial tcp 10.0.0.7:443: secret-host refused")
	})
	srv := newServer(t, eng)

	data := sseData(t, post(t, srv.URL+"/api/v1/agent/invoke", `{"message":"hi"}`))
	require.Len(t, data, 2)
	assert.Contains(t, data[0], `"type":"failed"`)
	assert.Contains(t, data[0], `Agent invocation failed: node \"reply\" failed`)
	assert.NotContains(t, data[0], "secret-host")
}

func TestInvokeAgent_BadRequests(t *testing.T) {
	srv := newServer(t, newEngine(t, echo))

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"Missing Message", `{}`, MsgMissingFields},
		{"Wrong Type", `{"message": 42}`, MsgMissingFields},
		{"Empty Message", `{"message": ""}`, MsgMissingFields},
		{"Malformed JSON", `{"message":`, MsgInvalidBody},
		{"Whitespace Only", `{"message": "   "}`, MsgInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/v1/agent/invoke", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, http.StatusBadRequest, body.Status)
			assert.False(t, body.Timestamp.IsZero())
		})
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(t, newEngine(t, echo))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, strings.TrimSpace(evolve.Version), body["version"])
	_, err = time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	srv := newServer(t, newEngine(t, echo))

	resp, err := http.Get(srv.URL + "/api/v2/nothing")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, MsgRouteNotFound, decodeError(t, resp).Error)
}

func TestGraphAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("evolve_runs_total 1\n"))
	})
	srv := newServer(t, newEngine(t, echo), WithMetricsHandler(metrics))

	resp, err := http.Get(srv.URL + "/api/v1/graph")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sb strings.Builder
	_, _ = bufio.NewReader(resp.Body).WriteTo(&sb)
	assert.Contains(t, sb.String(), "graph TD")
	assert.Contains(t, sb.String(), "reply --> __end__")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRuns(t *testing.T) {
	store := memory.NewStore()
	eng := newEngine(t, echo, evolve.WithRunStore(store))
	srv := newServer(t, eng, WithRunStore(store))

	data := sseData(t, post(t, srv.URL+"/api/v1/agent/invoke", `{"message":"hi"}`))
	var final struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal([]byte(data[len(data)-2]), &final))

	require.Eventually(t, func() bool {
		_, err := store.Load(context.Background(), final.RunID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/v1/runs?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, []string{final.RunID}, list["runs"])

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + final.RunID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var rec domain.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, domain.StatusCompleted, rec.Status)

	resp, err = http.Get(srv.URL + "/api/v1/runs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/runs?limit=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newServer(t, newEngine(t, echo), WithAllowedOrigins("https://ops.example.com"))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/agent/invoke", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ops.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ops.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, MsgRouteNotFound, sanitize(MsgRouteNotFound, 404))
	assert.Equal(t, "An error occurred", sanitize("sql: no rows in result set", 400))
	assert.Equal(t, MsgInternal, sanitize(MsgInvalidBody, 500))
}

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/api/v1/agent/invoke"))
	assert.NotNil(t, doc.Paths.Find("/api/v1/runs/{id}"))
}

func TestGetRun_FailureIsSanitized(t *testing.T) {
	store := memory.NewStore()
	eng := newEngine(t, func(context.Context, domain.State) (domain.Update, error) {
		return domain.Update{}, errors.New("dial tcp 10.0.0.7:9090: secret-token=abc123")
	}, evolve.WithRunStore(store))
	srv := newServer(t, eng, WithRunStore(store))

	data := sseData(t, post(t, srv.URL+"/api/v1/agent/invoke", `{"message":"hi"}`))
	var final struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal([]byte(data[0]), &final))

	require.Eventually(t, func() bool {
		_, err := store.Load(context.Background(), final.RunID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + final.RunID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var rec domain.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, `node "reply" failed`, rec.Error)
	assert.NotContains(t, rec.Error, "secret-token")
}

func TestInvokeAgent_RouteFailureIsSanitized(t *testing.T) {
	g, err := graph.New("routed").
		AddNode("verify", echo).
		AddNode("done", echo).
		AddConditionalEdge("verify", func(domain.State) string { return "sideways" }, map[string]string{"internal_resolved": "done"}).
		AddEdge("done", graph.END).
		SetEntry("verify").
		Compile()
	require.NoError(t, err)
	eng, err := evolve.New(g)
	require.NoError(t, err)
	srv := newServer(t, eng)

	data := sseData(t, post(t, srv.URL+"/api/v1/agent/invoke", `{"message":"hi"}`))
	failed := data[len(data)-2]
	assert.Contains(t, failed, `"type":"failed"`)
	assert.Contains(t, failed, `Agent invocation failed: node \"verify\" failed`)
	assert.NotContains(t, failed, "sideways")
	assert.NotContains(t, failed, "internal_resolved")
}
