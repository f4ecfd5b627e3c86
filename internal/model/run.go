package model

import "time"

// StageName identifies a pipeline stage.
type StageName string

const (
	StageLand     StageName = "land"
	StageValidate StageName = "validate"
	StageProject  StageName = "project"
	StageAnnotate StageName = "annotate"
)

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// StageReport holds per-stage accept/reject counts so an operator can audit
// data quality without reading logs.
type StageReport struct {
	Stage      StageName   `json:"stage"`
	Accepted   int         `json:"accepted"`
	Rejected   int         `json:"rejected"`
	Skipped    bool        `json:"skipped,omitempty"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// RunReport is the user-visible outcome of one pipeline run.
type RunReport struct {
	RunID        string        `json:"run_id"`
	Status       RunStatus     `json:"status"`
	SnapshotDate *time.Time    `json:"snapshot_date,omitempty"`
	Annotated    bool          `json:"annotated"`
	Stages       []StageReport `json:"stages"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	Error        string        `json:"error,omitempty"`
}

// StageFor returns the report for the named stage, or nil.
func (r *RunReport) StageFor(name StageName) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Stage == name {
			return &r.Stages[i]
		}
	}
	return nil
}
