// Package state implements the recording/execution process state machine.
package state

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// Subscriber is notified after an accepted transition. Subscribers run
// synchronously in registration order while the process's transition lock is
// held, so they must not transition the same process themselves.
type Subscriber func(from, to domain.ProcessState)

// allowedTransitions is the edge table. Same-state requests are handled separately.
var allowedTransitions = map[domain.ProcessState][]domain.ProcessState{
	domain.StateStopped: {domain.StateRunning},
	domain.StateRunning: {domain.StatePaused, domain.StateStopped},
	domain.StatePaused:  {domain.StateRunning, domain.StateStopped},
}

// IsValidTransition reports whether from -> to is an allowed edge.
func IsValidTransition(from, to domain.ProcessState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithExclusive controls whether recording and execution may be active at the same time.
func WithExclusive(exclusive bool) Option {
	return func(m *Machine) { m.exclusive = exclusive }
}

// Machine tracks the state of the recording and execution processes.
type Machine struct {
	logger    *zap.Logger
	now       func() time.Time
	exclusive bool

	// admission serializes STOPPED->RUNNING across processes when exclusive.
	admission sync.Mutex
	slots     map[domain.Process]*slot
}

// slot is the per-process instance. transitionMu orders transitions and is
// held across subscriber calls; mu guards data and is never held across calls out.
type slot struct {
	process      domain.Process
	transitionMu sync.Mutex

	mu           sync.RWMutex
	info         domain.ProcessInfo
	segmentStart time.Time
	subs         []*Subscription
	nextID       int
}

// NewMachine creates a machine with both processes STOPPED.
// Recording and execution are mutually exclusive unless WithExclusive(false) is given.
func NewMachine(logger *zap.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		logger:    logger,
		now:       time.Now,
		exclusive: true,
		slots:     make(map[domain.Process]*slot, len(domain.Processes)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, p := range domain.Processes {
		m.slots[p] = &slot{process: p, info: domain.NewProcessInfo()}
	}
	return m
}

// Transition moves process p to state to. It returns false for edges outside
// the allowed table, for unknown processes and when exclusivity rejects a start.
// Requesting the current state is a successful no-op.
func (m *Machine) Transition(p domain.Process, to domain.ProcessState, reason string) bool {
	s, ok := m.slots[p]
	if !ok {
		m.logger.Error("transition for unknown process", zap.Stringer("process", p))
		return false
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	from := s.state()
	if from == to {
		m.logger.Debug("state unchanged",
			zap.Stringer("process", p),
			zap.Stringer("state", to),
			zap.String("reason", reason))
		return true
	}

	if !IsValidTransition(from, to) {
		m.logger.Warn("invalid state transition",
			zap.Stringer("process", p),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.String("reason", reason))
		return false
	}

	if m.exclusive && from == domain.StateStopped && to == domain.StateRunning {
		if !m.admit(s, to, reason) {
			return false
		}
	} else {
		m.apply(s, from, to, reason)
	}

	m.logger.Info("state transition",
		zap.Stringer("process", p),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("reason", reason))

	for _, sub := range s.subscribers() {
		m.notify(p, sub, from, to)
	}
	return true
}

// admit commits a start only while the other process is inactive.
func (m *Machine) admit(s *slot, to domain.ProcessState, reason string) bool {
	m.admission.Lock()
	defer m.admission.Unlock()

	other := s.process.Other()
	if st := m.State(other); st.Active() {
		m.logger.Warn("start rejected, other process active",
			zap.Stringer("process", s.process),
			zap.Stringer("other", other),
			zap.Stringer("other_state", st),
			zap.String("reason", reason))
		return false
	}
	m.apply(s, domain.StateStopped, to, reason)
	return true
}

func (m *Machine) apply(s *slot, from, to domain.ProcessState, reason string) {
	now := m.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	info := &s.info
	info.Transitions = append(info.Transitions, domain.StateTransition{
		From:      from,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	})

	elapsed := now.Sub(s.segmentStart)
	if elapsed < 0 {
		elapsed = 0
	}

	switch to {
	case domain.StateRunning:
		if from == domain.StatePaused {
			info.TotalDuration += elapsed
			info.PausedDuration += elapsed
			info.PauseTime = time.Time{}
		} else {
			info.StartTime = now
		}
		s.segmentStart = now
	case domain.StatePaused:
		info.TotalDuration += elapsed
		info.PauseTime = now
		s.segmentStart = now
	case domain.StateStopped:
		info.TotalDuration += elapsed
		if from == domain.StatePaused {
			info.PausedDuration += elapsed
		}
		info.StartTime = time.Time{}
		info.PauseTime = time.Time{}
		s.segmentStart = time.Time{}
	}
	info.State = to
}

func (m *Machine) notify(p domain.Process, sub *Subscription, from, to domain.ProcessState) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("state subscriber panicked",
				zap.Stringer("process", p),
				zap.Int("subscriber", sub.id),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
				zap.Any("panic", r))
		}
	}()
	sub.fn(from, to)
}

// Start transitions p to RUNNING.
func (m *Machine) Start(p domain.Process, reason string) bool {
	return m.Transition(p, domain.StateRunning, reason)
}

// Pause transitions p to PAUSED.
func (m *Machine) Pause(p domain.Process, reason string) bool {
	return m.Transition(p, domain.StatePaused, reason)
}

// Resume transitions p to RUNNING.
func (m *Machine) Resume(p domain.Process, reason string) bool {
	return m.Transition(p, domain.StateRunning, reason)
}

// Stop transitions p to STOPPED.
func (m *Machine) Stop(p domain.Process, reason string) bool {
	return m.Transition(p, domain.StateStopped, reason)
}

// State returns the current state of p.
func (m *Machine) State(p domain.Process) domain.ProcessState {
	s, ok := m.slots[p]
	if !ok {
		return domain.StateStopped
	}
	return s.state()
}

// IsActive reports whether p is RUNNING or PAUSED.
func (m *Machine) IsActive(p domain.Process) bool { return m.State(p).Active() }

// IsRunning reports whether p is RUNNING.
func (m *Machine) IsRunning(p domain.Process) bool { return m.State(p) == domain.StateRunning }

// IsPaused reports whether p is PAUSED.
func (m *Machine) IsPaused(p domain.Process) bool { return m.State(p) == domain.StatePaused }

// Exclusive reports whether the processes are mutually exclusive.
func (m *Machine) Exclusive() bool { return m.exclusive }

// Info returns a copy of p's bookkeeping.
func (m *Machine) Info(p domain.Process) domain.ProcessInfo {
	s, ok := m.slots[p]
	if !ok {
		return domain.NewProcessInfo()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Clone()
}

// Status returns a snapshot of both processes.
func (m *Machine) Status() domain.SystemStatus {
	return domain.SystemStatus{
		Recording: m.Info(domain.ProcessRecording),
		Execution: m.Info(domain.ProcessExecution),
	}
}

// SetActionCount records how many actions p has recorded or will replay.
func (m *Machine) SetActionCount(p domain.Process, n int) {
	m.update(p, func(info *domain.ProcessInfo) { info.ActionCount = n })
}

// SetLoopCount records the number of loops requested for p.
func (m *Machine) SetLoopCount(p domain.Process, n int) {
	m.update(p, func(info *domain.ProcessInfo) { info.LoopCount = n })
}

// SetProgress records the current action index and loop of p.
func (m *Machine) SetProgress(p domain.Process, actionIndex, loop int) {
	m.update(p, func(info *domain.ProcessInfo) {
		info.CurrentActionIndex = actionIndex
		info.CurrentLoop = loop
	})
}

func (m *Machine) update(p domain.Process, fn func(*domain.ProcessInfo)) {
	s, ok := m.slots[p]
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.info)
}

// Reset returns both processes to a fresh STOPPED info without notifying subscribers.
func (m *Machine) Reset() {
	for _, p := range domain.Processes {
		s := m.slots[p]
		s.transitionMu.Lock()
		s.mu.Lock()
		s.info = domain.NewProcessInfo()
		s.segmentStart = time.Time{}
		s.mu.Unlock()
		s.transitionMu.Unlock()
	}
	m.logger.Info("all process states reset")
}

// Subscribe registers fn for transitions of p.
func (m *Machine) Subscribe(p domain.Process, fn Subscriber) *Subscription {
	s, ok := m.slots[p]
	if !ok || fn == nil {
		return &Subscription{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := &Subscription{slot: s, id: s.nextID, fn: fn}
	s.subs = append(s.subs, sub)
	return sub
}

// Subscription is a handle to a registered subscriber.
type Subscription struct {
	slot *slot
	id   int
	fn   Subscriber
}

// Unsubscribe removes the subscriber. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	if sub == nil || sub.slot == nil {
		return
	}
	s := sub.slot
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.subs {
		if other == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *slot) state() domain.ProcessState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.State
}

func (s *slot) subscribers() []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Subscription(nil), s.subs...)
}
