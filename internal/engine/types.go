package engine

import "encoding/json"

// SubmitRequest carries everything needed to start a workflow.
// Source holds the workflow definition text; Dependencies is an
// optional zip of sub-workflow imports.
type SubmitRequest struct {
	Source       string
	Inputs       string
	Options      string
	Labels       map[string]string
	Dependencies []byte
	OnHold       bool
}

// WorkflowStatus is a single entry returned by the query endpoint.
type WorkflowStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	Submission string `json:"submission,omitempty"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
}

// QueryResponse is the envelope around a status query.
type QueryResponse struct {
	Results           []WorkflowStatus `json:"results"`
	TotalResultsCount int              `json:"totalResultsCount"`
}

// Metadata is the raw metadata document for a workflow. The engine's
// metadata shape varies by version and options, so it stays untyped.
type Metadata map[string]json.RawMessage

// BackendsResponse lists the backends the engine can run on.
type BackendsResponse struct {
	DefaultBackend    string   `json:"defaultBackend"`
	SupportedBackends []string `json:"supportedBackends"`
}

// submitResponse is the engine's reply to a submission.
type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
