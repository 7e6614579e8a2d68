package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// allowed lists the legal stage status transitions
var allowed = map[Status][]Status{
	StatusPending: {StatusRunning, StatusSkipped},
	StatusRunning: {StatusSucceeded, StatusFailed, StatusSkipped},
}

func canTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// newReport creates the report for a run with every stage pending
func newReport(module, version string, stages []Stage) *Report {
	r := &Report{
		ID:        uuid.New().String(),
		Module:    module,
		Version:   version,
		StartTime: time.Now(),
		Status:    StatusRunning,
		History:   make([]Event, 0),
	}
	for _, s := range stages {
		r.Stages = append(r.Stages, &StageReport{
			Name:   s.Name,
			Label:  s.Label,
			Policy: s.Policy.String(),
			Status: StatusPending,
		})
	}
	return r
}

// AddEvent adds an event to the run history in a thread-safe manner
func (r *Report) AddEvent(stage, typ, format string, args ...any) {
	r.Lock()
	defer r.Unlock()
	r.History = append(r.History, Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Stage:     stage,
		Type:      typ,
		Message:   fmt.Sprintf(format, args...),
	})
}

// UpdateStageStatus moves a stage to a new status. Illegal transitions are
// rejected so a stage can never finish twice.
func (r *Report) UpdateStageStatus(index int, to Status, message string) error {
	r.Lock()
	defer r.Unlock()

	if index < 0 || index >= len(r.Stages) {
		return fmt.Errorf("stage index %d out of range", index)
	}
	st := r.Stages[index]
	if !canTransition(st.Status, to) {
		return fmt.Errorf("stage %s: illegal transition %s -> %s", st.Name, st.Status, to)
	}

	now := time.Now()
	switch to {
	case StatusRunning:
		st.StartTime = now
	default:
		if !st.StartTime.IsZero() {
			st.Duration = now.Sub(st.StartTime)
		}
	}
	st.Status = to
	st.Message = message
	return nil
}

// GetStageStatus gets a stage's status in a thread-safe manner
func (r *Report) GetStageStatus(name string) Status {
	r.RLock()
	defer r.RUnlock()
	for _, st := range r.Stages {
		if st.Name == name {
			return st.Status
		}
	}
	return StatusPending
}

// Failed returns the stages that failed, fatal or not
func (r *Report) Failed() []StageReport {
	r.RLock()
	defer r.RUnlock()
	var failed []StageReport
	for _, st := range r.Stages {
		if st.Status == StatusFailed {
			failed = append(failed, *st)
		}
	}
	return failed
}

func (r *Report) finish(status Status) {
	r.Lock()
	defer r.Unlock()
	r.Status = status
	r.EndTime = time.Now()
}

// Save writes a summary of the run to a YAML file
func (r *Report) Save(outputPath string) error {
	r.RLock()
	summary := map[string]interface{}{
		"id":        r.ID,
		"module":    r.Module,
		"version":   r.Version,
		"status":    r.Status,
		"startTime": r.StartTime,
		"endTime":   r.EndTime,
	}

	stages := make([]map[string]interface{}, 0, len(r.Stages))
	for _, st := range r.Stages {
		entry := map[string]interface{}{
			"name":     st.Name,
			"label":    st.Label,
			"policy":   st.Policy,
			"status":   st.Status,
			"duration": st.Duration.Round(time.Millisecond).String(),
		}
		if st.Message != "" {
			entry["message"] = st.Message
		}
		stages = append(stages, entry)
	}
	summary["stages"] = stages

	events := make([]map[string]interface{}, 0, len(r.History))
	for _, e := range r.History {
		events = append(events, map[string]interface{}{
			"id":        e.ID,
			"timestamp": e.Timestamp,
			"stage":     e.Stage,
			"type":      e.Type,
			"message":   e.Message,
		})
	}
	summary["history"] = events
	r.RUnlock()

	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal build report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write build report: %w", err)
	}

	return nil
}
