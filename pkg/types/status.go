package types

import "time"

// StageStatus represents the outcome of a stage within one run
type StageStatus string

const (
	// StageStatusPending indicates the stage has not been evaluated yet
	StageStatusPending StageStatus = "pending"

	// StageStatusSkipped indicates the completion predicate already held
	StageStatusSkipped StageStatus = "skipped"

	// StageStatusDone indicates the body ran and established its postcondition
	StageStatusDone StageStatus = "done"

	// StageStatusWouldRun is reported by dry runs for unsatisfied stages
	StageStatusWouldRun StageStatus = "would-run"

	// StageStatusFailed indicates the stage aborted the run
	StageStatusFailed StageStatus = "failed"
)

// RunOutcome is the terminal state of a provisioning run
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunFailed    RunOutcome = "failed"
)

// StageReport describes what happened to a single stage
type StageReport struct {
	Name     string        `json:"name" yaml:"name"`
	Label    string        `json:"label" yaml:"label"`
	Status   StageStatus   `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Error    error         `json:"-" yaml:"-"`
}

// RunReport is the result of a provisioning or status run
type RunReport struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Outcome     RunOutcome    `json:"outcome" yaml:"outcome"`
	DryRun      bool          `json:"dry_run" yaml:"dry_run"`
	Stages      []StageReport `json:"stages" yaml:"stages"`
	FailedStage string        `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	LogPath     string        `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// AllSkipped reports whether every stage in the report was skipped
func (r RunReport) AllSkipped() bool {
	if len(r.Stages) == 0 {
		return false
	}
	for _, s := range r.Stages {
		if s.Status != StageStatusSkipped {
			return false
		}
	}
	return true
}

// Stage returns the report for the named stage
func (r RunReport) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}
