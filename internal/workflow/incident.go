package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/llm"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// Incident node names.
const (
	NodeCollectMetrics    = "collectMetrics"
	NodeAnalyzeMetrics    = "analyzeMetrics"
	NodeRetrieveKnowledge = "retrieveKnowledge"
	NodeFindRootCause     = "findRootCause"
	NodeApplyRemedy       = "applyRemedy"
	NodeVerifyResolution  = "verifyResolution"
	NodeGenerateReport    = "generateIncidentReport"
	NodeUpdateKnowledge   = "updateKnowledgeBase"
)

// Verification routes.
const (
	LabelRetry    = "retry"
	LabelResolved = "resolved"
	LabelEscalate = "escalate"
)

// DefaultQuery is the signal watched when no query is configured.
const DefaultQuery = `rate(workqueue_work_duration_seconds_sum{name="deployment"}[5m])`

// IncidentConfig tunes the incident graph.
type IncidentConfig struct {
	// MaxAttempts caps how often verification may send the run back to diagnosis.
	// It has no default and must be positive.
	MaxAttempts int
	// Queries are evaluated on collection and again on verification.
	Queries []string
	// TopK bounds the passages retrieved from the knowledge base.
	TopK int
	// FormatRetries is how often a malformed structured reply is re-requested.
	FormatRetries int
}

var (
	topicsFormat       = llm.MustFormat[Topics]("knowledge_topics")
	planFormat         = llm.MustFormat[RemedyPlan]("remedy_plan")
	verificationFormat = llm.MustFormat[Verification]("verification")
)

type incident struct {
	deps Dependencies
	cfg  IncidentConfig
}

// NewIncident compiles the incident remediation graph.
func NewIncident(deps Dependencies, cfg IncidentConfig) (*graph.Graph, error) {
	if err := deps.validateIncident(); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("workflow: max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = []string{DefaultQuery}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	n := &incident{deps: deps, cfg: cfg}

	b := graph.New(IncidentGraph)
	graph.DeclareKey(b, KeyMetrics, graph.LastWriteWins())
	graph.DeclareKey(b, KeyTopics, graph.LastWriteWins())
	graph.DeclareKey(b, KeyKnowledge, graph.LastWriteWins())
	graph.DeclareKey(b, KeyRootCause, graph.LastWriteWins())
	graph.DeclareKey(b, KeyPlan, graph.LastWriteWins())
	graph.DeclareKey(b, KeyAttempts, graph.Append[Attempt]())
	graph.DeclareKey(b, KeyVerification, graph.LastWriteWins())
	graph.DeclareKey(b, KeyReport, graph.LastWriteWins())

	b.AddNode(NodeCollectMetrics, n.collectMetrics).
		AddNode(NodeAnalyzeMetrics, n.analyzeMetrics).
		AddNode(NodeRetrieveKnowledge, n.retrieveKnowledge).
		AddNode(NodeFindRootCause, n.findRootCause).
		AddNode(NodeApplyRemedy, n.applyRemedy).
		AddNode(NodeVerifyResolution, n.verifyResolution).
		AddNode(NodeGenerateReport, n.generateReport).
		AddNode(NodeUpdateKnowledge, n.updateKnowledge).
		SetEntry(NodeCollectMetrics).
		AddEdge(NodeCollectMetrics, NodeAnalyzeMetrics).
		AddEdge(NodeAnalyzeMetrics, NodeRetrieveKnowledge).
		AddEdge(NodeRetrieveKnowledge, NodeFindRootCause).
		AddEdge(NodeFindRootCause, NodeApplyRemedy).
		AddEdge(NodeApplyRemedy, NodeVerifyResolution).
		AddConditionalEdge(NodeVerifyResolution, routeVerification, map[string]string{
			LabelRetry:    NodeFindRootCause,
			LabelResolved: NodeGenerateReport,
			LabelEscalate: NodeGenerateReport,
		}, graph.LoopLimit(cfg.MaxAttempts, LabelEscalate)).
		AddEdge(NodeGenerateReport, NodeUpdateKnowledge).
		AddEdge(NodeUpdateKnowledge, graph.END)

	return b.Compile()
}

func routeVerification(state domain.State) string {
	if v, ok := KeyVerification.Get(state); ok && v.Resolved {
		return LabelResolved
	}
	return LabelRetry
}

// collect evaluates every query concurrently. Missing data is reported in the
// text rather than failing, so diagnosis can still proceed.
func (n *incident) collect(ctx context.Context) ([]domain.Series, string, error) {
	series := make([]domain.Series, len(n.cfg.Queries))
	notes := make([]string, len(n.cfg.Queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range n.cfg.Queries {
		g.Go(func() error {
			s, err := n.deps.Metrics.Query(gctx, q)
			switch {
			case err == nil:
				series[i] = s
				notes[i] = s.String()
			case errors.Is(err, context.Canceled):
				return err
			default:
				n.deps.logger().WarnContext(ctx, "metrics query failed", "query", q, "error", err)
				series[i] = domain.Series{Query: q}
				notes[i] = fmt.Sprintf("query: %s\n  No data available\n", q)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	return series, strings.Join(notes, ""), nil
}

func (n *incident) collectMetrics(ctx context.Context, state domain.State) (domain.Update, error) {
	series, text, err := n.collect(ctx)
	if err != nil {
		return domain.Update{}, err
	}
	u := KeyMetrics.Update(series)
	u.Messages = []domain.Message{domain.SystemMessage("Metrics collected from Prometheus as follows:\n" + text)}
	return u, nil
}

func (n *incident) analyzeMetrics(ctx context.Context, state domain.State) (domain.Update, error) {
	msgs := withSystem(promptAnalyze, state.Messages)
	topics, _, err := topicsFormat.Complete(ctx, n.deps.Model, msgs, n.cfg.FormatRetries)
	if err != nil {
		return domain.Update{}, fmt.Errorf("analyze metrics: %w", err)
	}
	u := KeyTopics.Update(topics.Topics)
	u.Messages = []domain.Message{domain.AssistantMessage("Extracted knowledge topics: " + strings.Join(topics.Topics, ", "))}
	u.CallCount = 1
	return u, nil
}

func (n *incident) retrieveKnowledge(ctx context.Context, state domain.State) (domain.Update, error) {
	topics, _ := KeyTopics.Get(state)
	var passages []string
	if len(topics) > 0 {
		var err error
		passages, err = n.deps.Knowledge.Search(ctx, strings.Join(topics, ", "), n.cfg.TopK)
		if err != nil {
			return domain.Update{}, fmt.Errorf("retrieve knowledge: %w", err)
		}
	}
	n.deps.logger().DebugContext(ctx, "knowledge retrieved", "topics", topics, "passages", len(passages))

	joined := strings.Join(passages, "\n---\n")
	text := joined
	if text == "" {
		text = "No relevant knowledge found."
	}
	u := KeyKnowledge.Update(joined)
	u.Messages = []domain.Message{domain.SystemMessage("Retrieved context from knowledge base:\n" + text)}
	return u, nil
}

func (n *incident) findRootCause(ctx context.Context, state domain.State) (domain.Update, error) {
	reply, err := n.deps.Model.Complete(ctx, ports.CompletionRequest{Messages: withSystem(promptRootCause, state.Messages)})
	if err != nil {
		return domain.Update{}, fmt.Errorf("find root cause: %w", err)
	}
	if strings.TrimSpace(reply.Content) == "" {
		return domain.Update{}, fmt.Errorf("find root cause: %w", domain.ErrEmptyInput)
	}
	u := KeyRootCause.Update(reply.Content)
	u.Messages = []domain.Message{domain.AssistantMessage(reply.Content)}
	u.CallCount = 1
	return u, nil
}

// applyRemedy plans and applies one action. A rejected action is recorded and
// left to verification instead of failing the run.
func (n *incident) applyRemedy(ctx context.Context, state domain.State) (domain.Update, error) {
	plan, _, err := planFormat.Complete(ctx, n.deps.Model, withSystem(promptRemedy, state.Messages), n.cfg.FormatRetries)
	if err != nil {
		return domain.Update{}, fmt.Errorf("plan remedy: %w", err)
	}

	attempt := Attempt{Plan: plan}
	var text string
	if err := n.deps.Remediator.Apply(ctx, plan.Action()); err != nil {
		if ctx.Err() != nil {
			return domain.Update{}, ctx.Err()
		}
		n.deps.logger().WarnContext(ctx, "remediation failed", "type", plan.Type, "target", plan.Action().Target(), "error", err)
		attempt.Error = err.Error()
		text = fmt.Sprintf("Remediation %s for %s/%s failed: %v", plan.Type, plan.TargetKind, plan.TargetName, err)
	} else {
		text = fmt.Sprintf("Applied remediation: %s for %s/%s. Reasoning: %s", plan.Type, plan.TargetKind, plan.TargetName, plan.Reasoning)
	}

	u := KeyPlan.Update(plan)
	u = KeyAttempts.Set(u, []Attempt{attempt})
	u.Messages = []domain.Message{domain.AssistantMessage(text)}
	u.CallCount = 1
	return u, nil
}

func (n *incident) verifyResolution(ctx context.Context, state domain.State) (domain.Update, error) {
	series, text, err := n.collect(ctx)
	if err != nil {
		return domain.Update{}, err
	}
	observed := domain.SystemMessage("Metrics after remediation:\n" + text)
	msgs := append(withSystem(promptVerify, state.Messages), observed)

	verdict, _, err := verificationFormat.Complete(ctx, n.deps.Model, msgs, n.cfg.FormatRetries)
	if err != nil {
		return domain.Update{}, fmt.Errorf("verify resolution: %w", err)
	}

	status := "not resolved"
	if verdict.Resolved {
		status = "resolved"
	}
	u := KeyVerification.Update(verdict)
	u = KeyMetrics.Set(u, series)
	u.Messages = []domain.Message{observed, domain.AssistantMessage(fmt.Sprintf("Verification: %s. %s", status, verdict.Summary))}
	u.CallCount = 1
	return u, nil
}

func (n *incident) generateReport(ctx context.Context, state domain.State) (domain.Update, error) {
	msgs := withSystem(promptReport, state.Messages)
	if v, _ := KeyVerification.Get(state); !v.Resolved {
		attempts, _ := KeyAttempts.Get(state)
		msgs = append(msgs, domain.SystemMessage(fmt.Sprintf(
			"The incident was not resolved after %d remediation attempts and is escalated to a human operator.", len(attempts))))
	}

	reply, err := n.deps.Model.Complete(ctx, ports.CompletionRequest{Messages: msgs})
	if err != nil {
		return domain.Update{}, fmt.Errorf("generate report: %w", err)
	}
	u := KeyReport.Update(reply.Content)
	u.Messages = []domain.Message{domain.AssistantMessage(reply.Content)}
	u.CallCount = 1
	return u, nil
}

func (n *incident) updateKnowledge(ctx context.Context, state domain.State) (domain.Update, error) {
	report, _ := KeyReport.Get(state)
	if strings.TrimSpace(report) == "" {
		return domain.Update{}, nil
	}

	v, _ := KeyVerification.Get(state)
	attempts, _ := KeyAttempts.Get(state)
	meta := map[string]string{
		"kind":     "incident_report",
		"resolved": strconv.FormatBool(v.Resolved),
		"attempts": strconv.Itoa(len(attempts)),
	}
	if info, ok := domain.RunFromContext(ctx); ok {
		meta["run_id"] = info.RunID
	}
	if plan, ok := KeyPlan.Get(state); ok {
		meta["remedy"] = string(plan.Type)
		meta["target"] = plan.Action().Target()
	}

	if err := n.deps.Knowledge.Add(ctx, []domain.Document{{Text: report, Metadata: meta}}); err != nil {
		return domain.Update{}, fmt.Errorf("update knowledge base: %w", err)
	}
	return domain.Update{Messages: []domain.Message{domain.SystemMessage("Summary of incident for knowledge base update.")}}, nil
}

// withSystem prepends a system prompt without touching the state's slice.
func withSystem(prompt string, msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs)+1)
	out = append(out, domain.SystemMessage(prompt))
	return append(out, msgs...)
}
