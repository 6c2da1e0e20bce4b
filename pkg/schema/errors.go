package schema

import (
	"fmt"
	"strings"
)

// Violation is a single schema failure.
type Violation struct {
	Path   string // JSON pointer into the document, "" for the root
	Reason string // Human-readable reason for failure
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Reason
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Reason)
}

// ValidationError reports a document that does not conform to a schema.
type ValidationError struct {
	Schema     string
	Violations []Violation
	// Err is set when the document could not be decoded at all.
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Schema, e.Err)
	}
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", e.Schema, e.Violations[0])
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d validation errors:\n", e.Schema, len(e.Violations))
	for i, v := range e.Violations {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, v)
	}
	return sb.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }
