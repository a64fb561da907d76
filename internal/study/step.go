package study

import (
	"time"
)

// StepStatus is the lifecycle state of one pipeline step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepState records the outcome of one pipeline step for the run report.
type StepState struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// newStepState creates a pending step state.
func newStepState(id, name string) *StepState {
	return &StepState{ID: id, Name: name, Status: StepStatusPending}
}

func (s *StepState) start() {
	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
}

func (s *StepState) complete() {
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
}

func (s *StepState) fail(err error) {
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	s.Error = err.Error()
}

// Duration returns the elapsed step time, zero while pending or active.
func (s *StepState) Duration() time.Duration {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(*s.StartTime)
}
