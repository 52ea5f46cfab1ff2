// Package daemon runs the foreground hotkey session that ties the recorder,
// executor and run history together.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
	"github.com/eliteGoblin/macroflow/internal/executor"
	"github.com/eliteGoblin/macroflow/internal/hotkey"
	"github.com/eliteGoblin/macroflow/internal/recorder"
	"github.com/eliteGoblin/macroflow/internal/state"
)

// ErrEmergencyStop is returned when the emergency chord ended the session.
var ErrEmergencyStop = errors.New("emergency stop")

// SessionConfig holds session configuration.
type SessionConfig struct {
	HeartbeatInterval time.Duration // How often to refresh the instance marker
	ProgressInterval  time.Duration // How often to log execution progress
	AppVersion        string
	DryRun            bool
	LoopCount         int // 0 uses the configured default
}

// DefaultSessionConfig returns default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HeartbeatInterval: 30 * time.Second,
		ProgressInterval:  5 * time.Second,
	}
}

// MacroSource returns the actions to replay when execution is requested.
type MacroSource func() ([]domain.Action, error)

// RecordingSink receives every finished recording.
type RecordingSink func(actions []domain.Action) error

// Session owns the global hotkeys for the lifetime of Run or Play. Only one
// session per user may run; the run store holds the instance marker.
type Session struct {
	config         SessionConfig
	machine        *state.Machine
	router         *hotkey.Router
	recorder       *recorder.Recorder
	executor       *executor.Executor
	store          domain.RunStore
	processManager domain.ProcessManager
	settings       domain.SettingsProvider
	logger         *zap.Logger
	now            func() time.Time

	mu            sync.Mutex
	macro         MacroSource
	onRecording   RecordingSink
	recordingRun  *domain.RunRecord
	recordingBase int
	executionRun  *domain.RunRecord
	executionBase int
	runDone       chan struct{}

	subs []*state.Subscription
}

// NewSession wires the hotkey router callbacks, the recorder and the executor.
func NewSession(
	config SessionConfig,
	machine *state.Machine,
	router *hotkey.Router,
	rec *recorder.Recorder,
	exec *executor.Executor,
	store domain.RunStore,
	pm domain.ProcessManager,
	settings domain.SettingsProvider,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		config:         config,
		machine:        machine,
		router:         router,
		recorder:       rec,
		executor:       exec,
		store:          store,
		processManager: pm,
		settings:       settings,
		logger:         logger,
		now:            time.Now,
	}

	router.SetOnRecordPosition(func() { rec.RecordPosition() })
	router.SetOnAltClick(func(x, y int) { rec.RecordAltClick(x, y) })
	router.SetOnExecuteRequest(s.requestExecution)
	router.SetOnEmergencyStop(func() {
		s.logger.Warn("emergency stop requested, ending session")
	})

	exec.SetDryRun(config.DryRun)
	exec.SetCallbacks(executor.Callbacks{
		OnExecutionStart:    s.executionStarted,
		OnExecutionComplete: s.executionFinished,
		OnExecutionError:    s.executionFailed,
		OnLoopComplete:      s.loopCompleted,
	})

	s.subs = append(s.subs, machine.Subscribe(domain.ProcessRecording, s.recordingChanged))
	return s
}

// SetMacroSource sets what the execute hotkey replays.
func (s *Session) SetMacroSource(src MacroSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macro = src
}

// SetRecordingSink sets where finished recordings go.
func (s *Session) SetRecordingSink(sink RecordingSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecording = sink
}

// Close detaches the session from the state machine.
func (s *Session) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
}

// Run listens for hotkeys until ctx is canceled or the emergency chord is
// pressed. It fails with domain.ErrInstanceRunning when another live session
// holds the hotkeys.
func (s *Session) Run(ctx context.Context) error {
	pid, err := s.acquire()
	if err != nil {
		return err
	}
	defer s.release(pid)

	if err := s.router.Start(); err != nil {
		return err
	}
	defer s.router.Stop()

	s.logger.Info("session started",
		zap.Int("pid", pid),
		zap.Bool("dry_run", s.config.DryRun))

	return s.loop(ctx, pid, nil)
}

// Play replays actions with the hotkeys active and waits for the run to end.
// The execute hotkeys restart the same actions.
func (s *Session) Play(ctx context.Context, actions []domain.Action, loops int) (bool, error) {
	pid, err := s.acquire()
	if err != nil {
		return false, err
	}
	defer s.release(pid)

	s.SetMacroSource(func() ([]domain.Action, error) { return actions, nil })

	if err := s.router.Start(); err != nil {
		return false, err
	}
	defer s.router.Stop()

	if !s.execute(actions, loops) {
		return false, errors.New("execution rejected")
	}

	var success bool
	err = s.loop(ctx, pid, func() bool {
		if s.executor.IsExecuting() {
			return false
		}
		success = s.executor.Wait()
		return true
	})
	return success, err
}

// loop runs the heartbeat and progress tickers. finished, when set, is
// checked on every tick and after each run ends.
func (s *Session) loop(ctx context.Context, pid int, finished func() bool) error {
	heartbeatTicker := time.NewTicker(s.config.HeartbeatInterval)
	progressTicker := time.NewTicker(s.config.ProgressInterval)
	defer func() {
		heartbeatTicker.Stop()
		progressTicker.Stop()
	}()

	for {
		if finished != nil && finished() {
			s.shutdown()
			return nil
		}

		select {
		case <-ctx.Done():
			s.logger.Info("session stopping")
			s.shutdown()
			return ctx.Err()

		case <-s.router.Done():
			s.shutdown()
			return ErrEmergencyStop

		case <-s.runFinished():

		case <-heartbeatTicker.C:
			if err := s.store.UpdateHeartbeat(pid); err != nil {
				s.logger.Warn("failed to update heartbeat", zap.Error(err))
			}

		case <-progressTicker.C:
			s.logProgress()
		}
	}
}

// acquire registers this process as the live session.
func (s *Session) acquire() (int, error) {
	pid := s.processManager.GetCurrentPID()

	inst, err := s.store.GetInstance()
	if err != nil {
		return 0, fmt.Errorf("failed to read instance marker: %w", err)
	}
	if inst != nil && inst.PID != pid && s.processManager.IsRunning(inst.PID) {
		return 0, fmt.Errorf("%w: pid %d", domain.ErrInstanceRunning, inst.PID)
	}
	if inst != nil && inst.PID != pid {
		s.logger.Info("replacing stale instance marker", zap.Int("stale_pid", inst.PID))
	}

	if err := s.store.RegisterInstance(domain.Instance{
		PID:        pid,
		StartedAt:  s.now(),
		AppVersion: s.config.AppVersion,
	}); err != nil {
		return 0, fmt.Errorf("failed to register instance: %w", err)
	}
	return pid, nil
}

func (s *Session) release(pid int) {
	if err := s.store.ClearInstance(pid); err != nil {
		s.logger.Warn("failed to clear instance marker", zap.Error(err))
	}
	s.logger.Info("session ended", zap.Int("pid", pid))
}

// shutdown ends any run in progress so its history and recording are saved.
func (s *Session) shutdown() {
	s.executor.Stop()
	if s.machine.IsActive(domain.ProcessRecording) {
		s.recorder.StopRecording()
	}
}

// requestExecution handles the execute hotkey while execution is stopped.
func (s *Session) requestExecution() bool {
	s.mu.Lock()
	src := s.macro
	s.mu.Unlock()

	if src == nil {
		s.logger.Warn("no macro to execute")
		return false
	}
	actions, err := src()
	if err != nil {
		s.logger.Error("failed to load macro", zap.Error(err))
		return false
	}
	return s.execute(actions, 0)
}

func (s *Session) execute(actions []domain.Action, loops int) bool {
	if loops <= 0 {
		loops = s.config.LoopCount
	}
	if loops <= 0 {
		loops = s.settings.Settings().Execution.DefaultLoopCount
	}
	return s.executor.ExecuteAsync(actions, loops)
}

func (s *Session) executionStarted(actions, loops int) {
	info := s.machine.Info(domain.ProcessExecution)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionRun = &domain.RunRecord{
		ID:          uuid.NewString(),
		Kind:        domain.RunExecution,
		StartedAt:   s.now(),
		ActionCount: actions,
		Loops:       loops,
		DryRun:      s.executor.DryRun(),
	}
	s.executionBase = len(info.Transitions) - 1
	s.runDone = make(chan struct{})
}

func (s *Session) loopCompleted(int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executionRun != nil {
		s.executionRun.LoopsCompleted++
	}
}

func (s *Session) executionFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executionRun != nil {
		s.executionRun.Error = err.Error()
	}
}

func (s *Session) executionFinished(success bool) {
	info := s.machine.Info(domain.ProcessExecution)

	s.mu.Lock()
	run := s.executionRun
	s.executionRun = nil
	done := s.runDone
	s.runDone = nil
	s.mu.Unlock()

	if done != nil {
		defer close(done)
	}
	if run == nil {
		return
	}
	run.FinishedAt = s.now()
	run.Success = success
	run.Transitions = len(info.Transitions) - s.executionBase
	s.saveRun(*run)
}

// runFinished returns a channel closed when the current run ends, or nil
// (blocking forever in select) when nothing runs.
func (s *Session) runFinished() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runDone
}

func (s *Session) recordingChanged(from, to domain.ProcessState) {
	switch {
	case from == domain.StateStopped && to == domain.StateRunning:
		info := s.machine.Info(domain.ProcessRecording)
		s.mu.Lock()
		s.recordingRun = &domain.RunRecord{
			ID:        uuid.NewString(),
			Kind:      domain.RunRecording,
			StartedAt: s.now(),
		}
		s.recordingBase = len(info.Transitions) - 1
		s.mu.Unlock()

	case to == domain.StateStopped:
		s.recordingStopped()
	}
}

func (s *Session) recordingStopped() {
	actions := s.recorder.Actions()
	info := s.machine.Info(domain.ProcessRecording)

	s.mu.Lock()
	run := s.recordingRun
	s.recordingRun = nil
	sink := s.onRecording
	s.mu.Unlock()

	if run == nil {
		return
	}
	run.FinishedAt = s.now()
	run.ActionCount = len(actions)
	run.Transitions = len(info.Transitions) - s.recordingBase
	run.Success = true

	if sink != nil && len(actions) > 0 {
		if err := sink(actions); err != nil {
			s.logger.Error("failed to save recording", zap.Error(err))
			run.Success = false
			run.Error = err.Error()
		} else {
			s.logger.Info("recording saved", zap.Int("actions", len(actions)))
		}
	}
	s.saveRun(*run)
}

func (s *Session) saveRun(run domain.RunRecord) {
	if err := s.store.SaveRun(run); err != nil {
		s.logger.Error("failed to save run history",
			zap.String("run_id", run.ID),
			zap.Error(err))
		return
	}
	s.logger.Info("run recorded",
		zap.String("run_id", run.ID),
		zap.String("kind", string(run.Kind)),
		zap.Bool("success", run.Success),
		zap.Duration("duration", run.Duration()))
}

func (s *Session) logProgress() {
	p := s.executor.Progress()
	if !p.Executing {
		return
	}
	s.logger.Info("execution progress",
		zap.Int("loop", p.CurrentLoop),
		zap.Int("loops", p.TotalLoops),
		zap.Int("action", p.CurrentActionIndex),
		zap.Int("actions", p.TotalActions),
		zap.Float64("percent", p.Percent),
		zap.Bool("paused", p.Paused))
}
