package pipeline

import (
	"sync"
	"time"

	"banketl/internal/ledger"
)

// Status tracks a run or a single stage within it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StageState is the runtime state of one stage in a run.
type StageState struct {
	mu        sync.RWMutex
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// NewStageState creates a pending stage state.
func NewStageState(id, name string) *StageState {
	return &StageState{
		ID:     id,
		Name:   name,
		Status: StatusPending,
	}
}

// Start marks the stage active.
func (s *StageState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.StartTime = &now
	s.Status = StatusRunning
}

// Complete marks the stage finished.
func (s *StageState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.EndTime = &now
	s.Status = StatusCompleted
}

// Fail marks the stage failed with the given error.
func (s *StageState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.EndTime = &now
	s.Status = StatusFailed
	if err != nil {
		s.Error = err.Error()
	}
}

// Duration returns how long the stage has run, or ran.
func (s *StageState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// RunState is the complete state of one pipeline run.
type RunState struct {
	mu sync.RWMutex

	BatchID   string        `json:"batch_id"`
	Status    Status        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Stages    []*StageState `json:"stages"`

	// Counts accumulates row totals across stages.
	Counts ledger.Counts `json:"counts"`

	// QualityPassed is false until the quality stage reports a clean batch.
	QualityPassed bool `json:"quality_passed"`
}

// NewRunState creates a pending run state for a batch.
func NewRunState(batchID string) *RunState {
	return &RunState{
		BatchID:   batchID,
		Status:    StatusPending,
		StartTime: time.Now().UTC(),
	}
}

// Start marks the run active.
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = StatusRunning
	r.StartTime = time.Now().UTC()
}

// Complete marks the run finished.
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.EndTime = &now
	r.Status = StatusCompleted
}

// Fail marks the run failed.
func (r *RunState) Fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.EndTime = &now
	r.Status = StatusFailed
}

// AddStage registers a stage with the run.
func (r *RunState) AddStage(stage *StageState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages = append(r.Stages, stage)
}

// AddCounts folds a stage's row totals into the run totals.
func (r *RunState) AddCounts(c ledger.Counts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts.Extracted += c.Extracted
	r.Counts.Transformed += c.Transformed
	r.Counts.Loaded += c.Loaded
	r.Counts.Rejected += c.Rejected
}

// SetQualityPassed records the quality verdict for the run.
func (r *RunState) SetQualityPassed(passed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.QualityPassed = passed
}

// StageSnapshot is an immutable copy of a stage state.
type StageSnapshot struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// RunSnapshot is an immutable copy of a run state, safe to serialize while
// the run continues.
type RunSnapshot struct {
	BatchID       string          `json:"batch_id"`
	Status        Status          `json:"status"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       *time.Time      `json:"end_time,omitempty"`
	Stages        []StageSnapshot `json:"stages"`
	Counts        ledger.Counts   `json:"counts"`
	QualityPassed bool            `json:"quality_passed"`
}

// Snapshot returns an immutable copy of the run state.
func (r *RunState) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RunSnapshot{
		BatchID:       r.BatchID,
		Status:        r.Status,
		StartTime:     r.StartTime,
		Counts:        r.Counts,
		QualityPassed: r.QualityPassed,
	}
	if r.EndTime != nil {
		end := *r.EndTime
		snap.EndTime = &end
	}
	for _, s := range r.Stages {
		s.mu.RLock()
		stageCopy := StageSnapshot{
			ID:     s.ID,
			Name:   s.Name,
			Status: s.Status,
			Error:  s.Error,
		}
		if s.StartTime != nil {
			start := *s.StartTime
			stageCopy.StartTime = &start
		}
		if s.EndTime != nil {
			end := *s.EndTime
			stageCopy.EndTime = &end
		}
		s.mu.RUnlock()
		snap.Stages = append(snap.Stages, stageCopy)
	}
	return snap
}
