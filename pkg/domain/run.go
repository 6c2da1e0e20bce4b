package domain

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the persisted summary of a finished run.
type RunRecord struct {
	ID         string    `json:"id"`
	Graph      string    `json:"graph"`
	Status     RunStatus `json:"status"`
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
