// Package workflow assembles the graphs shipped with evolve: incident
// remediation and the arithmetic tool-calling assistant.
package workflow

import (
	"errors"
	"log/slog"

	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

// Graph names.
const (
	IncidentGraph  = "incident"
	AssistantGraph = "assistant"
)

// Dependencies are the collaborators the node bodies call.
type Dependencies struct {
	Model      ports.Model
	Metrics    ports.MetricsSource
	Knowledge  ports.KnowledgeStore
	Remediator ports.Remediator
	Logger     *slog.Logger
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func (d Dependencies) validateIncident() error {
	var errs []error
	if d.Model == nil {
		errs = append(errs, errors.New("workflow: model is required"))
	}
	if d.Metrics == nil {
		errs = append(errs, errors.New("workflow: metrics source is required"))
	}
	if d.Knowledge == nil {
		errs = append(errs, errors.New("workflow: knowledge store is required"))
	}
	if d.Remediator == nil {
		errs = append(errs, errors.New("workflow: remediator is required"))
	}
	return errors.Join(errs...)
}
