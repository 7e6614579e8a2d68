// Package pipeline runs the ordered build stages of a module and decides
// whether a failing stage halts the build.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSkipped is wrapped by stage actions that had nothing to do
var ErrSkipped = errors.New("stage skipped")

// Skip returns an error that marks the stage as skipped with a reason
func Skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}

// Action is the work of one stage
type Action func(ctx context.Context, bc *BuildContext) error

// Policy decides what a stage failure does to the rest of the run
type Policy int

const (
	// Fatal failures halt the pipeline
	Fatal Policy = iota
	// Continuable failures are logged and the pipeline goes on
	Continuable
)

func (p Policy) String() string {
	if p == Continuable {
		return "continuable"
	}
	return "fatal"
}

// Stage is a named unit of work
type Stage struct {
	Name    string
	Label   string
	Action  Action
	Policy  Policy
	Enabled bool
}

// Status types

// Status is the state of a stage or of the whole run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// IsTerminal reports whether no further transition is allowed
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// StageError is returned by Run when a fatal stage fails
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// State-related types

// StageReport is the outcome of one stage
type StageReport struct {
	Name      string
	Label     string
	Policy    string
	Status    Status
	StartTime time.Time
	Duration  time.Duration
	Message   string
}

// Event is an entry in the run history
type Event struct {
	ID        string
	Timestamp time.Time
	Stage     string
	Type      string
	Message   string
}

// Report represents the state of one pipeline run
type Report struct {
	sync.RWMutex // Protects all fields below

	ID        string
	Module    string
	Version   string
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Stages    []*StageReport
	History   []Event
}
