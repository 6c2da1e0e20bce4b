package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Sample is one observed value of a metric series.
type Sample struct {
	Labels    map[string]string `json:"labels,omitempty"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
}

// Series is the result of a single metrics query.
type Series struct {
	Query   string   `json:"query"`
	Samples []Sample `json:"samples"`
}

// String renders the series as compact text suitable for a prompt.
func (s Series) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "query: %s\n", s.Query)
	for _, smp := range s.Samples {
		fmt.Fprintf(&sb, "  %s = %g @ %s\n", formatLabels(smp.Labels), smp.Value, smp.Timestamp.UTC().Format(time.RFC3339))
	}
	return sb.String()
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Document is a passage stored in the knowledge base.
type Document struct {
	ID       string            `json:"id,omitempty"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RemedyKind enumerates the corrective actions the workflow may take.
type RemedyKind string

const (
	RemedyScaling       RemedyKind = "Scaling"
	RemedyRestart       RemedyKind = "Restart"
	RemedyConfigUpdate  RemedyKind = "ConfigUpdate"
	RemedyResourceLimit RemedyKind = "ResourceLimit"
)

// Valid reports whether k is one of the known remedy kinds.
func (k RemedyKind) Valid() bool {
	switch k {
	case RemedyScaling, RemedyRestart, RemedyConfigUpdate, RemedyResourceLimit:
		return true
	}
	return false
}

// Action is a corrective action addressed to a workload.
type Action struct {
	Kind            RemedyKind        `json:"type" mapstructure:"type"`
	TargetKind      string            `json:"targetKind" mapstructure:"targetKind"`
	TargetName      string            `json:"targetName" mapstructure:"targetName"`
	TargetNamespace string            `json:"targetNamespace" mapstructure:"targetNamespace"`
	Parameters      map[string]string `json:"parameters,omitempty" mapstructure:"parameters"`
}

// Target renders kind/namespace/name.
func (a Action) Target() string {
	return fmt.Sprintf("%s/%s/%s", a.TargetKind, a.TargetNamespace, a.TargetName)
}
