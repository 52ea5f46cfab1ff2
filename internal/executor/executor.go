// Package executor replays recorded action sequences.
package executor

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
	"github.com/eliteGoblin/macroflow/internal/state"
)

// errStopped aborts a handler that observed the execution being stopped.
var errStopped = errors.New("execution stopped")

// Config holds executor timing.
type Config struct {
	PausePollInterval time.Duration // How often a paused worker rechecks state
	SleepSlice        time.Duration // Longest uninterrupted sleep inside a delay
	LoopGap           time.Duration // Pause between loops
	JoinTimeout       time.Duration // How long Stop waits for the worker
	DryRun            bool
}

// DefaultConfig returns default executor configuration.
func DefaultConfig() Config {
	return Config{
		PausePollInterval: 100 * time.Millisecond,
		SleepSlice:        50 * time.Millisecond,
		LoopGap:           100 * time.Millisecond,
		JoinTimeout:       5 * time.Second,
	}
}

// Callbacks are invoked from the worker goroutine. Any of them may be nil.
// A panicking callback is logged and does not affect the run.
type Callbacks struct {
	OnExecutionStart    func(actions, loops int)
	OnExecutionComplete func(success bool)
	OnExecutionError    func(err error)
	OnLoopStart         func(loop int)
	OnLoopComplete      func(loop int)
	OnActionStart       func(index int, action domain.Action)
	OnActionComplete    func(index int, action domain.Action, ok bool)
}

// Progress describes the current run.
type Progress struct {
	Executing          bool
	Running            bool
	Paused             bool
	TotalActions       int
	CurrentActionIndex int
	TotalLoops         int
	CurrentLoop        int
	Percent            float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithRand sets the random source used for jitter.
func WithRand(rng *rand.Rand) Option {
	return func(e *Executor) { e.rng = rng }
}

// run is the state of one accepted execution.
type run struct {
	actions []domain.Action
	loops   int
	dryRun  bool
	cbs     Callbacks
	done    chan struct{}
	success bool
}

// Executor replays action sequences on a worker goroutine, driven by the
// execution process of the state machine.
type Executor struct {
	machine  *state.Machine
	sink     domain.InputSink
	settings domain.SettingsProvider
	logger   *zap.Logger
	config   Config
	rng      *rand.Rand

	mu           sync.Mutex
	current      *run
	executing    bool
	dryRun       bool
	callbacks    Callbacks
	currentLoop  int
	currentIndex int

	wake chan struct{}
	sub  *state.Subscription
}

// NewExecutor creates an executor subscribed to the execution process.
func NewExecutor(
	machine *state.Machine,
	sink domain.InputSink,
	settings domain.SettingsProvider,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		machine:  machine,
		sink:     sink,
		settings: settings,
		logger:   logger,
		config:   config,
		dryRun:   config.DryRun,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d61_6372_6f66))
	}
	e.sub = machine.Subscribe(domain.ProcessExecution, func(from, to domain.ProcessState) {
		e.notify()
	})
	return e
}

// SetCallbacks replaces the callbacks used by subsequent runs.
func (e *Executor) SetCallbacks(cbs Callbacks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = cbs
}

// SetDryRun toggles dry-run mode for subsequent runs.
func (e *Executor) SetDryRun(dryRun bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dryRun = dryRun
	e.logger.Info("dry run mode changed", zap.Bool("dry_run", dryRun))
}

// DryRun reports whether handlers skip input injection.
func (e *Executor) DryRun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dryRun
}

// IsExecuting reports whether a run is in progress.
func (e *Executor) IsExecuting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executing
}

// Execute replays actions loopCount times and blocks until the run ends.
// It returns true only when every loop completed while still RUNNING.
func (e *Executor) Execute(actions []domain.Action, loopCount int) bool {
	if !e.ExecuteAsync(actions, loopCount) {
		return false
	}
	return e.Wait()
}

// ExecuteAsync starts a run on a worker goroutine and reports whether it was accepted.
// Empty input, a run already in progress or an execution process that is not
// STOPPED are rejected without any state change.
func (e *Executor) ExecuteAsync(actions []domain.Action, loopCount int) bool {
	if len(actions) == 0 {
		e.logger.Warn("no actions to execute")
		return false
	}
	if loopCount < 1 {
		loopCount = 1
	}

	e.mu.Lock()
	if e.executing {
		e.mu.Unlock()
		e.logger.Warn("execution already in progress")
		return false
	}
	if st := e.machine.State(domain.ProcessExecution); st != domain.StateStopped {
		e.mu.Unlock()
		e.logger.Warn("execution process not stopped", zap.Stringer("state", st))
		return false
	}
	r := &run{
		actions: domain.CloneActions(actions),
		loops:   loopCount,
		dryRun:  e.dryRun,
		cbs:     e.callbacks,
		done:    make(chan struct{}),
	}
	prev, prevLoop, prevIndex := e.current, e.currentLoop, e.currentIndex
	e.executing = true
	e.current = r
	e.currentLoop, e.currentIndex = 0, 0
	e.drainWake()
	e.mu.Unlock()

	if !e.machine.Start(domain.ProcessExecution, "execute actions") {
		e.mu.Lock()
		e.executing = false
		e.current, e.currentLoop, e.currentIndex = prev, prevLoop, prevIndex
		e.mu.Unlock()
		close(r.done)
		return false
	}
	e.machine.SetActionCount(domain.ProcessExecution, len(r.actions))
	e.machine.SetLoopCount(domain.ProcessExecution, r.loops)
	e.machine.SetProgress(domain.ProcessExecution, 0, 0)

	e.logger.Info("execution started",
		zap.Int("actions", len(r.actions)),
		zap.Int("loops", r.loops),
		zap.Bool("dry_run", r.dryRun))
	if r.cbs.OnExecutionStart != nil {
		e.call("execution_start", func() { r.cbs.OnExecutionStart(len(r.actions), r.loops) })
	}

	go e.work(r)
	return true
}

// Wait blocks until the latest run finishes and returns its result.
func (e *Executor) Wait() bool {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return false
	}
	<-r.done
	return r.success
}

// Pause pauses a running execution.
func (e *Executor) Pause() bool {
	if !e.machine.IsRunning(domain.ProcessExecution) {
		return false
	}
	ok := e.machine.Pause(domain.ProcessExecution, "pause execution")
	e.notify()
	return ok
}

// Resume resumes a paused execution.
func (e *Executor) Resume() bool {
	if !e.machine.IsPaused(domain.ProcessExecution) {
		return false
	}
	ok := e.machine.Resume(domain.ProcessExecution, "resume execution")
	e.notify()
	return ok
}

// Stop ends the current run and waits up to the join timeout for the worker.
// It returns false when nothing is executing.
func (e *Executor) Stop() bool {
	e.mu.Lock()
	r := e.current
	executing := e.executing
	e.mu.Unlock()
	if !executing || r == nil {
		return false
	}

	e.machine.Stop(domain.ProcessExecution, "stop execution")
	e.notify()

	timer := time.NewTimer(e.config.JoinTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		e.logger.Warn("execution worker did not stop in time",
			zap.Duration("timeout", e.config.JoinTimeout))
	}
	return true
}

// Close stops any run and detaches from the state machine.
func (e *Executor) Close() {
	e.Stop()
	e.sub.Unsubscribe()
}

// Progress returns the current run position.
func (e *Executor) Progress() Progress {
	st := e.machine.State(domain.ProcessExecution)

	e.mu.Lock()
	defer e.mu.Unlock()

	p := Progress{
		Executing:          e.executing,
		Running:            st == domain.StateRunning,
		Paused:             st == domain.StatePaused,
		CurrentActionIndex: e.currentIndex,
		CurrentLoop:        e.currentLoop,
	}
	if e.current != nil {
		p.TotalActions = len(e.current.actions)
		p.TotalLoops = e.current.loops
	}
	if p.TotalActions > 0 && p.TotalLoops > 0 && p.CurrentLoop > 0 {
		total := float64(p.TotalActions * p.TotalLoops)
		completed := float64((p.CurrentLoop-1)*p.TotalActions + p.CurrentActionIndex)
		p.Percent = min(100, completed/total*100)
	}
	return p
}

func (e *Executor) work(r *run) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("execution worker panic: %v", rec)
			e.logger.Error("execution worker crashed", zap.Error(err))
			r.success = false
			if r.cbs.OnExecutionError != nil {
				e.call("execution_error", func() { r.cbs.OnExecutionError(err) })
			}
		}

		e.machine.Stop(domain.ProcessExecution, "execution finished")

		e.mu.Lock()
		e.executing = false
		e.mu.Unlock()

		e.logger.Info("execution finished", zap.Bool("success", r.success))
		if r.cbs.OnExecutionComplete != nil {
			e.call("execution_complete", func() { r.cbs.OnExecutionComplete(r.success) })
		}
		close(r.done)
	}()

	r.success = e.runLoops(r)
}

func (e *Executor) runLoops(r *run) bool {
	for loop := 1; loop <= r.loops; loop++ {
		e.setProgress(0, loop)
		e.logger.Debug("loop started", zap.Int("loop", loop), zap.Int("loops", r.loops))
		if r.cbs.OnLoopStart != nil {
			e.call("loop_start", func() { r.cbs.OnLoopStart(loop) })
		}

		for i, action := range r.actions {
			if !e.waitWhilePaused() {
				e.logger.Info("execution stopped", zap.Int("loop", loop), zap.Int("action", i))
				return false
			}
			e.setProgress(i, loop)

			settings := e.settings.Settings().Execution
			if !e.sleep(e.delayFor(action, settings)) {
				e.logger.Info("execution stopped during delay", zap.Int("loop", loop), zap.Int("action", i))
				return false
			}

			if r.cbs.OnActionStart != nil {
				e.call("action_start", func() { r.cbs.OnActionStart(i, action) })
			}

			err := e.perform(action, r.dryRun, settings)
			if errors.Is(err, errStopped) {
				e.logger.Info("execution stopped during action", zap.Int("loop", loop), zap.Int("action", i))
				return false
			}
			if r.cbs.OnActionComplete != nil {
				e.call("action_complete", func() { r.cbs.OnActionComplete(i, action, err == nil) })
			}
			if err != nil {
				e.logger.Error("action failed",
					zap.Int("loop", loop),
					zap.Int("action", i),
					zap.String("type", string(action.Type())),
					zap.Error(err))
				if r.cbs.OnExecutionError != nil {
					e.call("execution_error", func() { r.cbs.OnExecutionError(err) })
				}
				return false
			}
			e.setProgress(i+1, loop)
		}

		if r.cbs.OnLoopComplete != nil {
			e.call("loop_complete", func() { r.cbs.OnLoopComplete(loop) })
		}
		if loop < r.loops && !e.sleep(e.config.LoopGap) {
			return false
		}
	}

	return e.waitWhilePaused()
}

// delayFor returns the recorded delay, scaled by the configured randomness.
func (e *Executor) delayFor(action domain.Action, s domain.ExecutionSettings) time.Duration {
	d := action.DelaySeconds()
	if s.EnableRandomness && s.DelayRandomness > 0 && d > 0 {
		d *= 1 + (e.rng.Float64()*2-1)*s.DelayRandomness
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(d * float64(time.Second))
}

// waitWhilePaused blocks while the execution is PAUSED. It returns false once STOPPED.
func (e *Executor) waitWhilePaused() bool {
	for {
		switch e.machine.State(domain.ProcessExecution) {
		case domain.StateRunning:
			return true
		case domain.StateStopped:
			return false
		}
		e.waitSignal(e.config.PausePollInterval)
	}
}

// sleep waits d of RUNNING time in short slices. Time spent paused does not
// count. It returns false if the execution is stopped.
func (e *Executor) sleep(d time.Duration) bool {
	remaining := d
	for remaining > 0 {
		if !e.waitWhilePaused() {
			return false
		}
		slice := min(remaining, e.config.SleepSlice)
		start := time.Now()
		e.waitSignal(slice)
		remaining -= time.Since(start)
	}
	return e.waitWhilePaused()
}

// waitSignal returns after d or when a state change wakes the worker.
func (e *Executor) waitSignal(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-e.wake:
	case <-timer.C:
	}
}

func (e *Executor) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) drainWake() {
	select {
	case <-e.wake:
	default:
	}
}

func (e *Executor) setProgress(index, loop int) {
	e.mu.Lock()
	e.currentIndex, e.currentLoop = index, loop
	e.mu.Unlock()
	e.machine.SetProgress(domain.ProcessExecution, index, loop)
}

func (e *Executor) call(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("execution callback panicked",
				zap.String("callback", name),
				zap.Any("panic", rec))
		}
	}()
	fn()
}
