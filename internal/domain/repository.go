package domain

import "time"

// InputSource delivers global mouse and keyboard events.
// Implementation: gohook reactor fanned out to listeners (infra/osinput).
type InputSource interface {
	// Listen starts delivering events to handler until the returned listener is stopped.
	// Several listeners may be active at once without interfering.
	Listen(handler EventHandler) (Listener, error)
}

// Listener is a live subscription to an InputSource.
type Listener interface {
	// Stop ends delivery. Safe to call more than once and from inside the handler.
	Stop() error
}

// CursorLocator queries the current cursor position.
type CursorLocator interface {
	Position() (x, y int, err error)
}

// InputSink injects synthetic input.
// Implementation: robotgo (infra/osinput).
type InputSink interface {
	// MoveTo moves the cursor to (x, y), instantly when duration is zero.
	MoveTo(x, y int, duration time.Duration) error

	// Click presses and releases a mouse button at the current position.
	Click(button MouseButton) error

	// KeyPress taps a single key.
	KeyPress(key string) error

	// KeyChord taps key while holding modifiers.
	KeyChord(modifiers []string, key string) error

	// ScrollVertical scrolls by dy notches.
	ScrollVertical(dy int) error

	// ScrollHorizontal scrolls by dx notches.
	ScrollHorizontal(dx int) error
}

// SettingsProvider returns the current configuration.
// Callers re-fetch at each decision point so edits apply to the next action.
type SettingsProvider interface {
	Settings() Settings
}

// RunStore persists run history and the live-instance marker.
// Implementation: SQLCipher encrypted database.
type RunStore interface {
	// SaveRun inserts or replaces a run record.
	SaveRun(run RunRecord) error

	// GetRun returns a single record, ErrNotFound when absent.
	GetRun(id string) (*RunRecord, error)

	// ListRuns returns the newest records first.
	ListRuns(limit int) ([]RunRecord, error)

	// RegisterInstance marks inst as the session owning the global hotkeys.
	RegisterInstance(inst Instance) error

	// GetInstance returns the registered instance or nil.
	GetInstance() (*Instance, error)

	// ClearInstance removes the marker if it belongs to pid.
	ClearInstance(pid int) error

	// UpdateHeartbeat updates the instance liveness timestamp.
	UpdateHeartbeat(pid int) error

	Close() error
}

// ProcessManager handles OS process queries.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the run store encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}
