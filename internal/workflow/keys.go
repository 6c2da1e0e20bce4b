package workflow

import (
	"fmt"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Topics is the structured reply of the metrics analysis.
type Topics struct {
	Topics []string `json:"topics" jsonschema:"description=Topics relevant for searching a knowledge base about Kubernetes incidents"`
}

// RemedyPlan is the structured remediation decision.
type RemedyPlan struct {
	Type            domain.RemedyKind `json:"type" jsonschema:"enum=Scaling,enum=Restart,enum=ConfigUpdate,enum=ResourceLimit"`
	TargetKind      string            `json:"targetKind"`
	TargetName      string            `json:"targetName"`
	TargetNamespace string            `json:"targetNamespace"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	Reasoning       string            `json:"reasoning"`
}

// Action converts the plan to the remediator's request.
func (p RemedyPlan) Action() domain.Action {
	return domain.Action{
		Kind:            p.Type,
		TargetKind:      p.TargetKind,
		TargetName:      p.TargetName,
		TargetNamespace: p.TargetNamespace,
		Parameters:      p.Parameters,
	}
}

// Attempt records one remediation.
type Attempt struct {
	Plan  RemedyPlan `json:"plan"`
	Error string     `json:"error,omitempty"`
}

func (a Attempt) String() string {
	target := a.Plan.Action().Target()
	if a.Error != "" {
		return fmt.Sprintf("%s for %s failed: %s", a.Plan.Type, target, a.Error)
	}
	return fmt.Sprintf("%s for %s applied", a.Plan.Type, target)
}

// Verification is the structured verdict after remediation.
type Verification struct {
	Resolved bool   `json:"resolved"`
	Summary  string `json:"summary"`
}

// Typed state fields of the incident graph.
var (
	KeyMetrics      = domain.NewKey[[]domain.Series]("metrics")
	KeyTopics       = domain.NewKey[[]string]("topics")
	KeyKnowledge    = domain.NewKey[string]("knowledge")
	KeyRootCause    = domain.NewKey[string]("root_cause")
	KeyPlan         = domain.NewKey[RemedyPlan]("plan")
	KeyAttempts     = domain.NewKey[[]Attempt]("attempts")
	KeyVerification = domain.NewKey[Verification]("verification")
	KeyReport       = domain.NewKey[string]("report")
)
