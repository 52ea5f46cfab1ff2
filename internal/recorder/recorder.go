// Package recorder turns live input events into a timed action sequence.
package recorder

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
	"github.com/eliteGoblin/macroflow/internal/hotkey"
	"github.com/eliteGoblin/macroflow/internal/state"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source used for delays and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithKeySet makes the recorder read held modifiers from keys, typically the
// hotkey router's set, so modifiers pressed before recording started or
// resumed are still seen.
func WithKeySet(keys *hotkey.KeySet) Option {
	return func(r *Recorder) {
		r.keys = keys
		r.sharedKeys = true
	}
}

// Recorder follows the recording process: it listens for input while RUNNING
// and appends every non-hotkey click, scroll and keypress to its action log.
type Recorder struct {
	machine  *state.Machine
	source   domain.InputSource
	locator  domain.CursorLocator
	settings domain.SettingsProvider
	logger   *zap.Logger
	now      func() time.Time

	mu               sync.Mutex
	actions          []domain.Action
	lastActionTime   time.Time
	pauseStart       time.Time
	onActionRecorded func(domain.Action)

	listenerMu sync.Mutex
	listener   domain.Listener

	keys       *hotkey.KeySet
	sharedKeys bool
	sub        *state.Subscription
}

// NewRecorder creates a recorder subscribed to the recording process.
func NewRecorder(
	machine *state.Machine,
	source domain.InputSource,
	locator domain.CursorLocator,
	settings domain.SettingsProvider,
	logger *zap.Logger,
	opts ...Option,
) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		machine:  machine,
		source:   source,
		locator:  locator,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		keys:     hotkey.NewKeySet(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sub = machine.Subscribe(domain.ProcessRecording, r.onStateChange)
	return r
}

// SetOnActionRecorded sets the callback invoked after each recorded action.
func (r *Recorder) SetOnActionRecorded(fn func(domain.Action)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onActionRecorded = fn
}

// StartRecording starts the recording process.
func (r *Recorder) StartRecording() bool {
	return r.machine.Start(domain.ProcessRecording, "start recording")
}

// PauseRecording pauses a running recording.
func (r *Recorder) PauseRecording() bool {
	if !r.machine.IsRunning(domain.ProcessRecording) {
		return false
	}
	return r.machine.Pause(domain.ProcessRecording, "pause recording")
}

// ResumeRecording resumes a paused recording.
func (r *Recorder) ResumeRecording() bool {
	if !r.machine.IsPaused(domain.ProcessRecording) {
		return false
	}
	return r.machine.Resume(domain.ProcessRecording, "resume recording")
}

// StopRecording stops recording and returns a copy of the captured actions.
// Calling it while stopped returns the current log.
func (r *Recorder) StopRecording() []domain.Action {
	if r.machine.IsActive(domain.ProcessRecording) {
		r.machine.Stop(domain.ProcessRecording, "stop recording")
	}
	return r.Actions()
}

// Actions returns a copy of the action log.
func (r *Recorder) Actions() []domain.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.CloneActions(r.actions)
}

// ActionCount returns the number of recorded actions.
func (r *Recorder) ActionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

// Clear empties the log.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.actions = nil
	r.mu.Unlock()
	r.machine.SetActionCount(domain.ProcessRecording, 0)
}

// Close detaches the recorder from the state machine and drops its listener.
func (r *Recorder) Close() {
	r.sub.Unsubscribe()
	r.stopListener()
}

// RecordPosition records a left click at the current cursor position.
func (r *Recorder) RecordPosition() bool {
	if !r.machine.IsRunning(domain.ProcessRecording) {
		return false
	}
	x, y, err := r.locator.Position()
	if err != nil {
		r.logger.Warn("failed to read cursor position", zap.Error(err))
		return false
	}
	r.record(func(delay, ts float64) domain.Action {
		return domain.ClickAction{
			Monitor:           1,
			AbsX:              x,
			AbsY:              y,
			Button:            domain.ButtonLeft,
			Delay:             delay,
			Timestamp:         ts,
			RecordedViaHotkey: true,
		}
	})
	return true
}

// RecordAltClick records a left click at (x, y).
func (r *Recorder) RecordAltClick(x, y int) bool {
	if !r.machine.IsRunning(domain.ProcessRecording) {
		return false
	}
	r.record(func(delay, ts float64) domain.Action {
		return domain.ClickAction{
			Monitor:              1,
			AbsX:                 x,
			AbsY:                 y,
			Button:               domain.ButtonLeft,
			Delay:                delay,
			Timestamp:            ts,
			RecordedViaAltHotkey: true,
		}
	})
	return true
}

func (r *Recorder) onStateChange(from, to domain.ProcessState) {
	now := r.now()

	switch {
	case from == domain.StateStopped && to == domain.StateRunning:
		r.mu.Lock()
		r.actions = nil
		r.lastActionTime = now
		r.pauseStart = time.Time{}
		r.mu.Unlock()
		r.machine.SetActionCount(domain.ProcessRecording, 0)
		r.startListener()
		r.logger.Info("recording started")

	case to == domain.StatePaused:
		r.mu.Lock()
		r.pauseStart = now
		r.mu.Unlock()
		r.stopListener()
		r.logger.Info("recording paused")

	case from == domain.StatePaused && to == domain.StateRunning:
		r.mu.Lock()
		if !r.pauseStart.IsZero() {
			r.lastActionTime = r.lastActionTime.Add(now.Sub(r.pauseStart))
			r.pauseStart = time.Time{}
		}
		r.mu.Unlock()
		r.startListener()
		r.logger.Info("recording resumed")

	case to == domain.StateStopped:
		r.stopListener()
		count := r.ActionCount()
		r.machine.SetActionCount(domain.ProcessRecording, count)
		r.logger.Info("recording stopped", zap.Int("actions", count))
	}
}

func (r *Recorder) startListener() {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()

	if r.listener != nil {
		return
	}
	// A private set missed every release while the listener was down.
	if !r.sharedKeys {
		r.keys.Reset()
	}
	l, err := r.source.Listen(r.handleEvent)
	if err != nil {
		r.logger.Error("failed to start recording listener", zap.Error(err))
		return
	}
	r.listener = l
}

func (r *Recorder) stopListener() {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()

	if r.listener == nil {
		return
	}
	if err := r.listener.Stop(); err != nil {
		r.logger.Warn("failed to stop recording listener", zap.Error(err))
	}
	r.listener = nil
}

func (r *Recorder) handleEvent(ev domain.InputEvent) {
	if ev.Kind == domain.EventKeyUp {
		r.keys.Release(ev.Key)
		return
	}
	var held domain.Modifier
	if ev.Kind == domain.EventKeyDown {
		held = r.keys.Press(ev.Key)
	} else {
		held = r.keys.Modifiers()
	}

	if !r.machine.IsRunning(domain.ProcessRecording) {
		return
	}
	bindings := r.settings.Settings().KeyBindings

	switch ev.Kind {
	case domain.EventMouseDown:
		if domain.ParseChord(bindings.RecordAltClick).Matches(held, string(ev.Button)) {
			return
		}
		if !ev.Button.Valid() {
			r.logger.Debug("ignoring unsupported mouse button", zap.String("button", string(ev.Button)))
			return
		}
		r.record(func(delay, ts float64) domain.Action {
			return domain.ClickAction{
				Monitor:   1,
				AbsX:      ev.X,
				AbsY:      ev.Y,
				Button:    ev.Button,
				Delay:     delay,
				Timestamp: ts,
			}
		})

	case domain.EventScroll:
		r.record(func(delay, ts float64) domain.Action {
			return domain.ScrollAction{
				DX:        ev.DX,
				DY:        ev.DY,
				AbsX:      ev.X,
				AbsY:      ev.Y,
				Delay:     delay,
				Timestamp: ts,
			}
		})

	case domain.EventKeyDown:
		if domain.IsModifierKey(ev.Key) {
			return
		}
		for _, c := range bindings.ControlChords() {
			if c.Matches(held, ev.Key) {
				r.logger.Debug("hotkey suppressed", zap.Stringer("chord", c))
				return
			}
		}
		key := domain.NormalizeKey(ev.Key)
		if key == "" {
			return
		}
		r.record(func(delay, ts float64) domain.Action {
			if held == domain.ModNone {
				return domain.KeyPressAction{Key: key, Delay: delay, Timestamp: ts}
			}
			names := held.Names()
			return domain.KeyPressAction{
				Key:           domain.CombinationKey(names, key),
				IsCombination: true,
				Modifiers:     names,
				MainKey:       key,
				Delay:         delay,
				Timestamp:     ts,
			}
		})
	}
}

// record computes the delay since the previous action, appends the action
// and notifies the callback outside the lock.
func (r *Recorder) record(build func(delay, timestamp float64) domain.Action) {
	now := r.now()

	r.mu.Lock()
	delay := now.Sub(r.lastActionTime).Seconds()
	if delay < 0 {
		delay = 0
	}
	r.lastActionTime = now
	action := build(delay, float64(now.UnixNano())/float64(time.Second))
	r.actions = append(r.actions, action)
	count := len(r.actions)
	cb := r.onActionRecorded
	r.mu.Unlock()

	r.machine.SetActionCount(domain.ProcessRecording, count)

	fields := []zap.Field{
		zap.String("type", string(action.Type())),
		zap.Float64("delay", delay),
		zap.Int("count", count),
	}
	if r.settings.Settings().Recording.ShowRealTimeFeedback {
		r.logger.Info("action recorded", fields...)
	} else {
		r.logger.Debug("action recorded", fields...)
	}

	if cb != nil {
		r.notify(cb, action)
	}
}

func (r *Recorder) notify(cb func(domain.Action), action domain.Action) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("action recorded callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(action)
}
