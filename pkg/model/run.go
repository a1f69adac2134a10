// Package model defines the entities shared between the CLI, the
// server, and the run-history store.
package model

import "time"

// RunState mirrors the engine's workflow states, plus Submitted for
// runs the engine has accepted but not yet reported on.
type RunState string

const (
	RunSubmitted RunState = "Submitted"
	RunRunning   RunState = "Running"
	RunSucceeded RunState = "Succeeded"
	RunFailed    RunState = "Failed"
	RunAborted   RunState = "Aborted"
)

// Terminal reports whether the state can no longer change.
func (s RunState) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunAborted:
		return true
	}
	return false
}

// Run records one workflow submission made through this wrapper. The
// engine owns execution state; this is local bookkeeping so `list`
// works without querying the engine for runs it has already expired.
type Run struct {
	// ID is the wrapper-local identifier (UUID).
	ID string `json:"id"`

	// EngineID is the identifier returned by the workflow engine.
	EngineID string `json:"engine_id"`

	// Workflow is the workflow definition that was submitted.
	Workflow string `json:"workflow"`

	// Inputs is the original input document URI, if any.
	Inputs string `json:"inputs,omitempty"`

	// LocalizedInputs is the rewritten input document handed to the
	// engine, when deepcopy produced one.
	LocalizedInputs string `json:"localized_inputs,omitempty"`

	// TargetKind names the storage kind inputs were localized to.
	TargetKind string `json:"target_kind,omitempty"`

	State       RunState          `json:"state"`
	Labels      map[string]string `json:"labels,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ListOptions pages and filters run listings.
type ListOptions struct {
	// State filters to a single state when non-empty.
	State RunState

	// Limit caps the number of results; zero means no cap.
	Limit int

	// Offset skips results for paging.
	Offset int
}
