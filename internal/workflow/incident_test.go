package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/internal/runtime"
	"github.com/nvrdftd/evolve-ai-infra/internal/workflow"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	reportText = "# Incident\n\nRoot cause: CPU throttling on the deployment controller."
	plan       = `{"type":"Scaling","targetKind":"Deployment","targetName":"controller","targetNamespace":"kube-system","parameters":{"replicas":"3"},"reasoning":"more capacity"}`
)

// incidentModel answers every incident prompt. Verification reports resolved
// from the resolvedAt-th check on; zero never resolves.
func incidentModel(resolvedAt int) *memory.Model {
	checks := 0
	return memory.NewModel().Respond(func(_ context.Context, req ports.CompletionRequest) (domain.Message, error) {
		if req.Format == nil {
			if strings.HasPrefix(req.Messages[0].Content, "Write a concise incident report") {
				return domain.AssistantMessage(reportText), nil
			}
			return domain.AssistantMessage("CPU throttling on the deployment controller"), nil
		}
		switch req.Format.Name {
		case "knowledge_topics":
			return domain.AssistantMessage(`{"topics":["cpu throttling","deployment controller","workqueue latency"]}`), nil
		case "remedy_plan":
			return domain.AssistantMessage(plan), nil
		case "verification":
			checks++
			if resolvedAt > 0 && checks >= resolvedAt {
				return domain.AssistantMessage(`{"resolved":true,"summary":"latency is back to normal"}`), nil
			}
			return domain.AssistantMessage(`{"resolved":false,"summary":"latency still high"}`), nil
		}
		return domain.Message{}, errors.New("unexpected format " + req.Format.Name)
	})
}

type fixture struct {
	model      *memory.Model
	metrics    *memory.Metrics
	knowledge  *memory.Knowledge
	remediator *memory.Remediator
}

func newFixture(resolvedAt int) *fixture {
	now := time.Unix(1700000000, 0)
	return &fixture{
		model: incidentModel(resolvedAt),
		metrics: memory.NewMetrics().Set(workflow.DefaultQuery,
			domain.Series{Samples: []domain.Sample{{Labels: map[string]string{"name": "deployment"}, Value: 4.2, Timestamp: now}}},
			domain.Series{Samples: []domain.Sample{{Labels: map[string]string{"name": "deployment"}, Value: 0.3, Timestamp: now}}},
		),
		knowledge: memory.NewKnowledge(
			domain.Document{Text: "Workqueue latency grows when the deployment controller is CPU throttling"},
			domain.Document{Text: "Scale the deployment when workqueue latency grows"},
		),
		remediator: memory.NewRemediator(),
	}
}

func (f *fixture) deps() workflow.Dependencies {
	return workflow.Dependencies{Model: f.model, Metrics: f.metrics, Knowledge: f.knowledge, Remediator: f.remediator}
}

func visits(t *testing.T, run *runtime.Run) ([]string, runtime.Outcome) {
	t.Helper()
	var nodes []string
	for ev := range run.Events() {
		if ev.Type == domain.EventDelta {
			nodes = append(nodes, ev.Delta.Node)
		}
	}
	return nodes, run.Outcome()
}

func TestIncident_ResolvedOnSecondAttempt(t *testing.T) {
	f := newFixture(2)
	g, err := workflow.NewIncident(f.deps(), workflow.IncidentConfig{MaxAttempts: 3})
	require.NoError(t, err)

	run := runtime.NewExecutor().Start(context.Background(), g, domain.NewState(domain.HumanMessage("workqueue latency alert")))
	nodes, out := visits(t, run)
	require.NoError(t, out.Err)
	assert.Equal(t, domain.StatusCompleted, out.Status)

	assert.Equal(t, []string{
		"collectMetrics", "analyzeMetrics", "retrieveKnowledge",
		"findRootCause", "applyRemedy", "verifyResolution",
		"findRootCause", "applyRemedy", "verifyResolution",
		"generateIncidentReport", "updateKnowledgeBase",
	}, nodes)

	// analyze + 2x(root cause, remedy, verify) + report
	assert.Equal(t, 8, out.State.CallCount)

	topics, ok := workflow.KeyTopics.Get(out.State)
	require.True(t, ok)
	assert.Len(t, topics, 3)

	knowledge, _ := workflow.KeyKnowledge.Get(out.State)
	assert.Contains(t, knowledge, "CPU throttling")
	assert.Contains(t, knowledge, "\n---\n", "passages are separated")

	attempts, _ := workflow.KeyAttempts.Get(out.State)
	assert.Len(t, attempts, 2)
	assert.Len(t, f.remediator.Applied(), 2)
	assert.Equal(t, domain.RemedyScaling, f.remediator.Applied()[0].Kind)
	assert.Equal(t, "3", f.remediator.Applied()[0].Parameters["replicas"])

	v, _ := workflow.KeyVerification.Get(out.State)
	assert.True(t, v.Resolved)
	report, _ := workflow.KeyReport.Get(out.State)
	assert.Equal(t, reportText, report)

	docs := f.knowledge.Documents()
	require.Len(t, docs, 3)
	assert.Equal(t, reportText, docs[2].Text)
	assert.Equal(t, "true", docs[2].Metadata["resolved"])
	assert.Equal(t, run.ID(), docs[2].Metadata["run_id"])
	assert.Equal(t, "Deployment/kube-system/controller", docs[2].Metadata["target"])

	last, _ := out.State.LastMessage()
	assert.Equal(t, "Summary of incident for knowledge base update.", last.Content)
	assert.Equal(t, 3, f.metrics.Calls(workflow.DefaultQuery), "collection plus two verifications")
}

func TestIncident_EscalatesAtLoopLimit(t *testing.T) {
	f := newFixture(0)
	g, err := workflow.NewIncident(f.deps(), workflow.IncidentConfig{MaxAttempts: 1})
	require.NoError(t, err)

	run := runtime.NewExecutor().Start(context.Background(), g, domain.NewState(domain.HumanMessage("alert")))
	nodes, out := visits(t, run)
	require.NoError(t, out.Err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, 2, strings.Count(strings.Join(nodes, ","), "verifyResolution"))
	assert.Equal(t, "updateKnowledgeBase", nodes[len(nodes)-1])

	var escalated bool
	for _, req := range f.model.Requests() {
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "escalated to a human operator") {
				escalated = true
				assert.Contains(t, m.Content, "after 2 remediation attempts")
			}
		}
	}
	assert.True(t, escalated, "report prompt mentions escalation")
	assert.Equal(t, "false", f.knowledge.Documents()[2].Metadata["resolved"])
}

func TestIncident_FailedRemediationIsRecorded(t *testing.T) {
	f := newFixture(1)
	f.remediator.Fail = errors.New("forbidden")
	g, err := workflow.NewIncident(f.deps(), workflow.IncidentConfig{MaxAttempts: 1})
	require.NoError(t, err)

	out := runtime.NewExecutor().Start(context.Background(), g, domain.NewState(domain.HumanMessage("alert"))).Wait()
	require.Equal(t, domain.StatusCompleted, out.Status)
	attempts, _ := workflow.KeyAttempts.Get(out.State)
	require.Len(t, attempts, 1)
	assert.Equal(t, "forbidden", attempts[0].Error)
	assert.Contains(t, attempts[0].String(), "failed: forbidden")
}

func TestIncident_MissingMetricsDoNotFail(t *testing.T) {
	f := newFixture(1)
	f.metrics = memory.NewMetrics()
	g, err := workflow.NewIncident(f.deps(), workflow.IncidentConfig{MaxAttempts: 1})
	require.NoError(t, err)

	out := runtime.NewExecutor().Start(context.Background(), g, domain.NewState()).Wait()
	require.Equal(t, domain.StatusCompleted, out.Status)
	assert.Contains(t, out.State.Messages[0].Content, "No data available")
}

func TestIncident_ModelFailureFailsRun(t *testing.T) {
	f := newFixture(1)
	f.model = memory.NewModel().ThenError(errors.New("quota exceeded"))
	g, err := workflow.NewIncident(f.deps(), workflow.IncidentConfig{MaxAttempts: 1})
	require.NoError(t, err)

	out := runtime.NewExecutor().Start(context.Background(), g, domain.NewState()).Wait()
	assert.Equal(t, domain.StatusFailed, out.Status)
	var he *runtime.HandlerError
	require.ErrorAs(t, out.Err, &he)
	assert.Equal(t, workflow.NodeAnalyzeMetrics, he.Node)
	assert.ErrorContains(t, out.Err, "quota exceeded")
}

func TestNewIncident_Validation(t *testing.T) {
	f := newFixture(1)

	_, err := workflow.NewIncident(f.deps(), workflow.IncidentConfig{})
	assert.ErrorContains(t, err, "max attempts must be positive")

	_, err = workflow.NewIncident(workflow.Dependencies{}, workflow.IncidentConfig{MaxAttempts: 1})
	assert.ErrorContains(t, err, "model is required")
	assert.ErrorContains(t, err, "remediator is required")
}

func TestIncident_Topology(t *testing.T) {
	g, err := workflow.NewIncident(newFixture(1).deps(), workflow.IncidentConfig{MaxAttempts: 2})
	require.NoError(t, err)

	cond, ok := g.Conditional(workflow.NodeVerifyResolution)
	require.True(t, ok)
	assert.True(t, cond.Loops(workflow.LabelRetry))
	assert.False(t, cond.Loops(workflow.LabelEscalate))
	limit, ok := cond.Limit()
	require.True(t, ok)
	assert.Equal(t, graph.Limit{Max: 2, Exit: workflow.LabelEscalate}, limit)
}
