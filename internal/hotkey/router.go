// Package hotkey routes global key chords to process state changes.
package hotkey

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
	"github.com/eliteGoblin/macroflow/internal/state"
)

// Intent is a control action bound to a chord.
type Intent string

const (
	IntentRecordStartStop     Intent = "record_start_stop"
	IntentRecordPauseResume   Intent = "record_pause_resume"
	IntentRecordPosition      Intent = "record_position"
	IntentExecuteStartStop    Intent = "execute_start_stop"
	IntentExecutePauseResume  Intent = "execute_pause_resume"
	IntentExecuteKill         Intent = "execute_kill"
	IntentGlobalEmergencyStop Intent = "global_emergency_stop"
	IntentRecordAltClick      Intent = "record_alt_click"
)

type binding struct {
	intent Intent
	chord  domain.Chord
}

// keyBindings returns the keyboard bindings in dispatch order. The first match wins.
func keyBindings(kb domain.KeyBindings) []binding {
	return []binding{
		{IntentRecordStartStop, domain.ParseChord(kb.RecordStartStop)},
		{IntentRecordPauseResume, domain.ParseChord(kb.RecordPauseResume)},
		{IntentRecordPosition, domain.ParseChord(kb.RecordPosition)},
		{IntentExecuteStartStop, domain.ParseChord(kb.ExecuteStartStop)},
		{IntentExecutePauseResume, domain.ParseChord(kb.ExecutePauseResume)},
		{IntentExecuteKill, domain.ParseChord(kb.ExecuteKill)},
		{IntentGlobalEmergencyStop, domain.ParseChord(kb.GlobalEmergencyStop)},
	}
}

// Router owns a global listener and turns configured chords into state machine calls.
type Router struct {
	machine  *state.Machine
	source   domain.InputSource
	settings domain.SettingsProvider
	logger   *zap.Logger

	mu       sync.Mutex
	listener domain.Listener
	done     chan struct{}

	onRecordPosition func()
	onAltClick       func(x, y int)
	onExecuteRequest func() bool
	onEmergencyStop  func()

	keys *KeySet
}

// NewRouter creates a router. Call Start to begin listening.
func NewRouter(
	machine *state.Machine,
	source domain.InputSource,
	settings domain.SettingsProvider,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &Router{
		machine:  machine,
		source:   source,
		settings: settings,
		logger:   logger,
		done:     done,
		keys:     NewKeySet(),
	}
}

// SetOnRecordPosition sets the callback fired by record_position while recording runs.
func (r *Router) SetOnRecordPosition(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRecordPosition = fn
}

// SetOnAltClick sets the callback fired by the record_alt_click mouse chord while recording runs.
func (r *Router) SetOnAltClick(fn func(x, y int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAltClick = fn
}

// SetOnExecuteRequest sets the handler for execute_start_stop while execution is stopped.
// Without one the router only transitions the execution process.
func (r *Router) SetOnExecuteRequest(fn func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExecuteRequest = fn
}

// SetOnEmergencyStop sets the callback fired after an emergency stop.
func (r *Router) SetOnEmergencyStop(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEmergencyStop = fn
}

// Start installs the global listener. Starting a running router is a no-op.
func (r *Router) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener != nil {
		return nil
	}

	r.keys.Reset()
	l, err := r.source.Listen(func(ev domain.InputEvent) { r.Handle(ev) })
	if err != nil {
		r.logger.Error("failed to start hotkey listener", zap.Error(err))
		return fmt.Errorf("start hotkey listener: %w", err)
	}
	r.listener = l
	r.done = make(chan struct{})
	r.logger.Info("hotkey listener started")
	return nil
}

// Stop removes the global listener. Stopping a stopped router is a no-op.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked("stopped")
}

func (r *Router) stopLocked(why string) error {
	if r.listener == nil {
		return nil
	}
	err := r.listener.Stop()
	if err != nil {
		r.logger.Warn("hotkey listener stop failed", zap.Error(err))
	}
	r.listener = nil
	close(r.done)
	r.logger.Info("hotkey listener terminated", zap.String("why", why))
	return err
}

// Running reports whether the listener is installed.
func (r *Router) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener != nil
}

// Keys returns the held-key set the router maintains. It sees every press,
// including ones made before another listener was installed.
func (r *Router) Keys() *KeySet { return r.keys }

// Done is closed when the listener terminates, including after an emergency stop.
func (r *Router) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Handle processes one raw event and reports whether it was consumed by a chord.
func (r *Router) Handle(ev domain.InputEvent) bool {
	switch ev.Kind {
	case domain.EventKeyDown:
		held := r.keys.Press(ev.Key)
		intent, ok := r.matchKey(held, ev.Key)
		if !ok {
			return false
		}
		r.dispatch(intent)
		return true

	case domain.EventKeyUp:
		r.keys.Release(ev.Key)
		return false

	case domain.EventMouseDown:
		return r.handleMouseDown(ev)
	}
	return false
}

func (r *Router) matchKey(held domain.Modifier, key string) (Intent, bool) {
	for _, b := range keyBindings(r.settings.Settings().KeyBindings) {
		if b.chord.Matches(held, key) {
			r.logger.Debug("hotkey matched",
				zap.String("intent", string(b.intent)),
				zap.Stringer("chord", b.chord))
			return b.intent, true
		}
	}
	return "", false
}

func (r *Router) handleMouseDown(ev domain.InputEvent) bool {
	chord := domain.ParseChord(r.settings.Settings().KeyBindings.RecordAltClick)
	if !chord.Matches(r.keys.Modifiers(), string(ev.Button)) {
		return false
	}
	if !r.machine.IsRunning(domain.ProcessRecording) {
		return false
	}

	r.mu.Lock()
	fn := r.onAltClick
	r.mu.Unlock()

	r.logger.Debug("alt click hotkey", zap.Int("x", ev.X), zap.Int("y", ev.Y))
	if fn != nil {
		r.safeCall(IntentRecordAltClick, func() { fn(ev.X, ev.Y) })
	}
	return true
}

func (r *Router) dispatch(intent Intent) {
	reason := "hotkey " + string(intent)

	switch intent {
	case IntentRecordStartStop:
		r.toggle(domain.ProcessRecording, reason, true)
	case IntentRecordPauseResume:
		r.toggle(domain.ProcessRecording, reason, false)
	case IntentRecordPosition:
		if !r.machine.IsRunning(domain.ProcessRecording) {
			return
		}
		r.mu.Lock()
		fn := r.onRecordPosition
		r.mu.Unlock()
		if fn != nil {
			r.safeCall(intent, fn)
		}
	case IntentExecuteStartStop:
		r.toggle(domain.ProcessExecution, reason, true)
	case IntentExecutePauseResume:
		r.toggle(domain.ProcessExecution, reason, false)
	case IntentExecuteKill:
		r.machine.Stop(domain.ProcessExecution, reason)
	case IntentGlobalEmergencyStop:
		r.emergencyStop(reason)
	}
}

// toggle pauses a running process and resumes a paused one. A stopped process
// is started only when start is set.
func (r *Router) toggle(p domain.Process, reason string, start bool) {
	switch r.machine.State(p) {
	case domain.StateRunning:
		r.machine.Pause(p, reason)
	case domain.StatePaused:
		r.machine.Resume(p, reason)
	case domain.StateStopped:
		if !start {
			return
		}
		if p == domain.ProcessExecution {
			r.mu.Lock()
			fn := r.onExecuteRequest
			r.mu.Unlock()
			if fn != nil {
				r.safeCall(IntentExecuteStartStop, func() {
					if !fn() {
						r.logger.Warn("execution request rejected")
					}
				})
				return
			}
		}
		r.machine.Start(p, reason)
	}
}

func (r *Router) emergencyStop(reason string) {
	r.logger.Warn("emergency stop")
	r.machine.Stop(domain.ProcessRecording, reason)
	r.machine.Stop(domain.ProcessExecution, reason)

	r.mu.Lock()
	_ = r.stopLocked("emergency stop")
	fn := r.onEmergencyStop
	r.mu.Unlock()

	if fn != nil {
		r.safeCall(IntentGlobalEmergencyStop, fn)
	}
}

func (r *Router) safeCall(intent Intent, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hotkey callback panicked",
				zap.String("intent", string(intent)),
				zap.Any("panic", rec))
		}
	}()
	fn()
}
