package services

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the outcome of one orchestrator step
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step names, in the order a full run records them
const (
	StepConfig  = "config"
	StepCleanup = "cleanup"
	StepExport  = "export"
	StepHandoff = "handoff"
	StepLoad    = "load"
)

// RunStatus summarizes a whole run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	// RunDegraded means the load exited 0 but an earlier step failed.
	RunDegraded RunStatus = "degraded"
	RunFailed   RunStatus = "failed"
	// RunLocked means another run held the lock and nothing was done.
	RunLocked RunStatus = "locked"
)

// StepResult records what a single step did
type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	// Target is the file or script the step acted on
	Target     string `json:"target,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RunReport is the structured outcome of one orchestrator run
type RunReport struct {
	ID             uuid.UUID    `json:"id"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	ExportFilename string       `json:"export_filename"`
	ArtifactPath   string       `json:"artifact_path,omitempty"`
	Status         RunStatus    `json:"status"`
	ExitCode       int          `json:"exit_code"`
	Steps          []StepResult `json:"steps"`
}

func newRunReport(now time.Time) *RunReport {
	return &RunReport{
		ID:        uuid.New(),
		StartedAt: now,
		Status:    RunRunning,
	}
}

func (r *RunReport) add(step StepResult) {
	r.Steps = append(r.Steps, step)
}

// Step returns the first recorded step with the given name
func (r *RunReport) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Count returns how many steps ended with the given status
func (r *RunReport) Count(status StepStatus) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// finish stamps the end time and derives Status from the exit code and the
// recorded steps.
func (r *RunReport) finish(now time.Time, exitCode int) {
	r.FinishedAt = now
	r.ExitCode = exitCode
	switch {
	case r.Status == RunLocked:
	case exitCode != 0:
		r.Status = RunFailed
	case r.Count(StepFailed) > 0:
		r.Status = RunDegraded
	default:
		r.Status = RunSucceeded
	}
}

func intPtr(v int) *int {
	return &v
}
