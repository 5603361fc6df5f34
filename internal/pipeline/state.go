package pipeline

import (
	"sync"
	"time"

	"kpicli/internal/analysis"
	"kpicli/internal/cleaning"
	"kpicli/internal/infrastructure"
	"kpicli/internal/kpi"
	"kpicli/internal/report"
	"kpicli/internal/source"
)

// RunStatus is the overall status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState is the state of one run. Steps read the payloads earlier steps
// produced and write their own; payloads are only touched by the step
// executing, so they carry no lock.
type RunState struct {
	mu sync.RWMutex

	ID        string                `json:"id"`
	Status    RunStatus             `json:"status"`
	StartTime time.Time             `json:"start_time"`
	EndTime   *time.Time            `json:"end_time,omitempty"`
	Steps     map[string]*StepState `json:"steps"`
	Error     error                 `json:"-"`

	// load
	Raw source.Tables `json:"-"`
	// clean
	Cleaned  source.Tables      `json:"-"`
	Cleaning []*cleaning.Report `json:"-"`
	// kpi
	Calculator *kpi.Calculator     `json:"-"`
	Profit     *kpi.ProfitTable    `json:"-"`
	Grouped    *kpi.MetricTable    `json:"-"`
	Metrics    []*kpi.MetricTable  `json:"-"`
	Retention  []kpi.RetentionFact `json:"-"`
	// analysis
	Hypotheses []*analysis.TestResult `json:"-"`
	DaysActive analysis.Distribution  `json:"-"`
	// report
	Summary *report.Summary `json:"summary,omitempty"`
}

// NewRunState creates a pending run. An empty id gets a generated one.
func NewRunState(id string) *RunState {
	if id == "" {
		id = infrastructure.GenerateRunID()
	}
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
	}
}

// Start marks the run as running
func (s *RunState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = RunStatusRunning
	s.StartTime = time.Now()
}

// Complete marks the run as completed
func (s *RunState) Complete() {
	s.finish(RunStatusCompleted, nil)
}

// Fail marks the run as failed
func (s *RunState) Fail(err error) {
	s.finish(RunStatusFailed, err)
}

// Cancel marks the run as cancelled
func (s *RunState) Cancel(err error) {
	s.finish(RunStatusCancelled, err)
}

func (s *RunState) finish(status RunStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = status
	s.Error = err
}

// GetStatus returns the run status
func (s *RunState) GetStatus() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// GetStep returns the state of one step, nil when it never ran
func (s *RunState) GetStep(id string) *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Steps[id]
}

// SetStep records the state of one step
func (s *RunState) SetStep(id string, state *StepState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Steps[id] = state
}

// Duration returns the run duration so far
func (s *RunState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// ReportData gathers the payloads the reporting layer consumes
func (s *RunState) ReportData() *report.Data {
	return &report.Data{
		Profit:     s.Profit,
		Grouped:    s.Grouped,
		Metrics:    s.Metrics,
		Retention:  s.Retention,
		Hypotheses: s.Hypotheses,
		DaysActive: s.DaysActive,
		Cleaning:   s.Cleaning,
		Cleaned:    s.Cleaned,
	}
}
