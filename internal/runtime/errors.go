package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled matches every cancellation outcome via errors.Is.
var ErrCancelled = errors.New("run cancelled")

// CancelledError reports that the caller withdrew interest before completion.
type CancelledError struct {
	// Node is the node in flight when cancellation was observed, if any.
	Node  string
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("run cancelled during node %q: %v", e.Node, e.Cause)
	}
	return fmt.Sprintf("run cancelled: %v", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// RouteError reports a router label missing from its edge's label map.
type RouteError struct {
	Node    string
	Label   string
	Allowed []string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("node %q routed to undeclared label %q (allowed: %s)", e.Node, e.Label, strings.Join(e.Allowed, ", "))
}

// HandlerError reports a node whose work failed or returned data the reducers rejected.
type HandlerError struct {
	Node string
	Step int
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("node %q failed at step %d: %v", e.Node, e.Step, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// LoopLimitError reports a loop edge that exhausted its iteration cap with no exit label.
type LoopLimitError struct {
	Node string
	Max  int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("node %q exceeded its loop limit of %d", e.Node, e.Max)
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Public describes a run failure without its cause or routing details,
// for callers outside the process. The full error belongs in logs.
func Public(err error) string {
	if err == nil {
		return ""
	}
	var (
		ce *CancelledError
		he *HandlerError
		re *RouteError
		le *LoopLimitError
	)
	switch {
	case errors.As(err, &ce):
		return ErrCancelled.Error()
	case errors.As(err, &he):
		return nodeFailed(he.Node)
	case errors.As(err, &re):
		return nodeFailed(re.Node)
	case errors.As(err, &le):
		return nodeFailed(le.Node)
	}
	return "run failed"
}

func nodeFailed(node string) string {
	return fmt.Sprintf("node %q failed", node)
}
