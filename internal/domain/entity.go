// Package domain contains core entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Process identifies one of the two independently tracked activities.
type Process string

const (
	ProcessRecording Process = "recording"
	ProcessExecution Process = "execution"
)

// Processes lists every tracked process in a stable order.
var Processes = []Process{ProcessRecording, ProcessExecution}

// Other returns the opposite process.
func (p Process) Other() Process {
	if p == ProcessRecording {
		return ProcessExecution
	}
	return ProcessRecording
}

func (p Process) String() string { return string(p) }

// ProcessState is the lifecycle state of a process.
type ProcessState string

const (
	StateStopped ProcessState = "STOPPED"
	StateRunning ProcessState = "RUNNING"
	StatePaused  ProcessState = "PAUSED"
)

func (s ProcessState) String() string { return string(s) }

// Active reports whether the state is RUNNING or PAUSED.
func (s ProcessState) Active() bool {
	return s == StateRunning || s == StatePaused
}

// StateTransition is an immutable record of an accepted state change.
type StateTransition struct {
	From      ProcessState
	To        ProcessState
	Timestamp time.Time
	Reason    string
}

// ProcessInfo is the bookkeeping the state machine keeps per process.
// Values handed out by the state machine are copies.
type ProcessInfo struct {
	State     ProcessState
	StartTime time.Time // zero when stopped
	PauseTime time.Time // zero unless paused

	// TotalDuration accumulates running and paused wall-clock time.
	TotalDuration time.Duration
	// PausedDuration accumulates only the paused share of TotalDuration.
	PausedDuration time.Duration

	ActionCount        int
	CurrentActionIndex int
	LoopCount          int
	CurrentLoop        int

	Transitions []StateTransition
}

// NewProcessInfo returns the initial info for a stopped process.
func NewProcessInfo() ProcessInfo {
	return ProcessInfo{State: StateStopped}
}

// ActiveDuration returns the accumulated time spent RUNNING.
func (i ProcessInfo) ActiveDuration() time.Duration {
	return i.TotalDuration - i.PausedDuration
}

// Clone returns a deep copy of the info.
func (i ProcessInfo) Clone() ProcessInfo {
	c := i
	c.Transitions = append([]StateTransition(nil), i.Transitions...)
	return c
}

// SystemStatus is a snapshot of both processes.
type SystemStatus struct {
	Recording ProcessInfo
	Execution ProcessInfo
}

// AnyActive reports whether either process is RUNNING or PAUSED.
func (s SystemStatus) AnyActive() bool {
	return s.Recording.State.Active() || s.Execution.State.Active()
}

// RunKind distinguishes recorded history entries.
type RunKind string

const (
	RunRecording RunKind = "recording"
	RunExecution RunKind = "execution"
)

// RunRecord is a persisted summary of one recording session or execution run.
type RunRecord struct {
	ID             string
	Kind           RunKind
	StartedAt      time.Time
	FinishedAt     time.Time
	Success        bool
	ActionCount    int
	Loops          int
	LoopsCompleted int
	DryRun         bool
	Transitions    int
	Error          string
}

// Duration returns how long the run lasted.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Instance describes the live `listen` session holding the global hotkeys.
type Instance struct {
	PID           int
	StartedAt     time.Time
	LastHeartbeat time.Time
	AppVersion    string
}
