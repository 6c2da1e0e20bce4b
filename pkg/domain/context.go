package domain

import "context"

type runInfoKey struct{}

// RunInfo identifies the node execution a context belongs to.
type RunInfo struct {
	RunID string
	Node  string
	Step  int
}

// ContextWithRun attaches run coordinates to ctx for collaborators and hooks.
func ContextWithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunFromContext returns the run coordinates, if any.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
