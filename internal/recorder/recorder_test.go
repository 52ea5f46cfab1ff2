package recorder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
	"github.com/eliteGoblin/macroflow/internal/hotkey"
	"github.com/eliteGoblin/macroflow/internal/state"
	"github.com/eliteGoblin/macroflow/test/fixtures"
)

type harness struct {
	machine *state.Machine
	source  *fixtures.FakeInputSource
	clock   *fixtures.ManualClock
	rec     *Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		machine: state.NewMachine(zap.NewNop()),
		source:  fixtures.NewFakeInputSource(),
		clock:   fixtures.NewManualClock(),
	}
	h.rec = NewRecorder(
		h.machine,
		h.source,
		fixtures.FakeLocator{X: 640, Y: 360},
		domain.StaticSettings(domain.DefaultSettings()),
		zap.NewNop(),
		WithClock(h.clock.Now),
	)
	t.Cleanup(h.rec.Close)
	return h
}

func delays(actions []domain.Action) []float64 {
	out := make([]float64, len(actions))
	for i, a := range actions {
		out[i] = a.DelaySeconds()
	}
	return out
}

func TestRecorder_ListenerFollowsState(t *testing.T) {
	h := newHarness(t)
	assert.Zero(t, h.source.ActiveListeners())

	require.True(t, h.rec.StartRecording())
	assert.Equal(t, 1, h.source.ActiveListeners())

	require.True(t, h.rec.PauseRecording())
	assert.Zero(t, h.source.ActiveListeners())

	require.True(t, h.rec.ResumeRecording())
	assert.Equal(t, 1, h.source.ActiveListeners())

	h.rec.StopRecording()
	assert.Zero(t, h.source.ActiveListeners())
}

func TestRecorder_PauseResumeGuards(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.rec.PauseRecording())
	assert.False(t, h.rec.ResumeRecording())

	require.True(t, h.rec.StartRecording())
	assert.False(t, h.rec.ResumeRecording())
}

func TestRecorder_DelayBetweenClicks(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())

	h.source.Click(10, 20, domain.ButtonLeft)
	h.clock.Advance(300 * time.Millisecond)
	h.source.Click(30, 40, domain.ButtonRight)

	actions := h.rec.StopRecording()
	require.Len(t, actions, 2)
	assert.InDelta(t, 0.0, actions[0].DelaySeconds(), 1e-9)
	assert.InDelta(t, 0.3, actions[1].DelaySeconds(), 1e-6)

	second, ok := actions[1].(domain.ClickAction)
	require.True(t, ok)
	assert.Equal(t, domain.ClickAction{
		Monitor:   1,
		AbsX:      30,
		AbsY:      40,
		Button:    domain.ButtonRight,
		Delay:     second.Delay,
		Timestamp: float64(h.clock.Now().UnixNano()) / float64(time.Second),
	}, second)
}

func TestRecorder_FirstDelayMeasuredFromStart(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())

	h.clock.Advance(1500 * time.Millisecond)
	h.source.Scroll(5, 5, 0, -3)

	assert.InDelta(t, 1.5, h.rec.Actions()[0].DelaySeconds(), 1e-6)
}

func TestRecorder_PauseExcludedFromDelay(t *testing.T) {
	tests := []struct {
		name        string
		beforePause time.Duration
		paused      time.Duration
		afterResume time.Duration
		wantDelay   float64
	}{
		{
			name:        "pause right after the first click",
			paused:      time.Second,
			afterResume: 100 * time.Millisecond,
			wantDelay:   0.1,
		},
		{
			name:        "active time on both sides of the pause",
			beforePause: 200 * time.Millisecond,
			paused:      time.Second,
			afterResume: 100 * time.Millisecond,
			wantDelay:   0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.True(t, h.rec.StartRecording())

			h.source.Click(1, 1, domain.ButtonLeft)
			h.clock.Advance(tt.beforePause)
			require.True(t, h.rec.PauseRecording())
			h.clock.Advance(tt.paused)
			require.True(t, h.rec.ResumeRecording())
			h.clock.Advance(tt.afterResume)
			h.source.Click(2, 2, domain.ButtonLeft)

			actions := h.rec.StopRecording()
			require.Len(t, actions, 2)
			assert.InDelta(t, tt.wantDelay, actions[1].DelaySeconds(), 1e-6)
		})
	}
}

func TestRecorder_EventsWhilePausedAreDropped(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())
	require.True(t, h.rec.PauseRecording())

	h.source.Click(1, 1, domain.ButtonLeft)
	h.source.Tap("a")

	assert.Zero(t, h.rec.ActionCount())
}

func TestRecorder_KeyPresses(t *testing.T) {
	tests := []struct {
		name string
		tap  func(src *fixtures.FakeInputSource)
		want []domain.KeyPressAction
	}{
		{
			name: "single key",
			tap:  func(src *fixtures.FakeInputSource) { src.Tap("A") },
			want: []domain.KeyPressAction{{Key: "a"}},
		},
		{
			name: "combination uses sorted modifiers",
			tap:  func(src *fixtures.FakeInputSource) { src.Tap("s", "shift_r", "ctrl_l") },
			want: []domain.KeyPressAction{{
				Key:           "ctrl+shift+s",
				IsCombination: true,
				Modifiers:     []string{"ctrl", "shift"},
				MainKey:       "s",
			}},
		},
		{
			name: "modifier alone is not recorded",
			tap: func(src *fixtures.FakeInputSource) {
				src.KeyDown("alt")
				src.KeyUp("alt")
			},
		},
		{
			name: "modifiers released before next key",
			tap: func(src *fixtures.FakeInputSource) {
				src.Tap("c", "cmd")
				src.Tap("enter")
			},
			want: []domain.KeyPressAction{
				{Key: "win+c", IsCombination: true, Modifiers: []string{"win"}, MainKey: "c"},
				{Key: "enter"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.True(t, h.rec.StartRecording())

			tt.tap(h.source)

			actions := h.rec.StopRecording()
			require.Len(t, actions, len(tt.want))
			for i, want := range tt.want {
				got, ok := actions[i].(domain.KeyPressAction)
				require.True(t, ok)
				got.Delay, got.Timestamp = 0, 0
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestRecorder_SuppressesControlChords(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())

	h.source.Tap("f10", "ctrl")
	h.source.Tap("esc", "ctrl", "shift")
	h.source.Tap("x")

	actions := h.rec.StopRecording()
	require.Len(t, actions, 1)
	assert.Equal(t, "x", actions[0].(domain.KeyPressAction).Key)
}

func TestRecorder_HotkeyPausesInsteadOfRecording(t *testing.T) {
	h := newHarness(t)
	router := hotkey.NewRouter(h.machine, h.source, domain.StaticSettings(domain.DefaultSettings()), zap.NewNop())
	require.NoError(t, router.Start())
	defer router.Stop()

	h.source.Tap("f8", "ctrl")
	require.Equal(t, domain.StateRunning, h.machine.State(domain.ProcessRecording))

	h.source.Tap("q")
	h.source.Tap("f8", "ctrl")

	assert.Equal(t, domain.StatePaused, h.machine.State(domain.ProcessRecording))
	actions := h.rec.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "q", actions[0].(domain.KeyPressAction).Key)
}

func TestRecorder_ModifierHeldAcrossStartAndResume(t *testing.T) {
	machine := state.NewMachine(zap.NewNop())
	source := fixtures.NewFakeInputSource()
	settings := domain.StaticSettings(domain.DefaultSettings())
	router := hotkey.NewRouter(machine, source, settings, zap.NewNop())
	rec := NewRecorder(machine, source, fixtures.FakeLocator{X: 640, Y: 360}, settings, zap.NewNop(),
		WithKeySet(router.Keys()))
	defer rec.Close()
	router.SetOnRecordPosition(func() { rec.RecordPosition() })
	require.NoError(t, router.Start())
	defer router.Stop()

	source.KeyDown("ctrl")
	source.Tap("f8")
	require.Equal(t, domain.StateRunning, machine.State(domain.ProcessRecording))
	source.Tap("c")

	source.Tap("f8")
	require.Equal(t, domain.StatePaused, machine.State(domain.ProcessRecording))
	source.Tap("f8")
	require.Equal(t, domain.StateRunning, machine.State(domain.ProcessRecording))

	source.Tap("f10")
	source.Tap("x")
	source.KeyUp("ctrl")
	source.Tap("y")

	actions := rec.StopRecording()
	require.Len(t, actions, 4)
	assert.Equal(t, "ctrl+c", actions[0].(domain.KeyPressAction).Key)
	assert.True(t, actions[1].(domain.ClickAction).RecordedViaHotkey)
	assert.Equal(t, "ctrl+x", actions[2].(domain.KeyPressAction).Key)
	assert.Equal(t, domain.KeyPressAction{
		Key:       "y",
		Delay:     actions[3].DelaySeconds(),
		Timestamp: actions[3].(domain.KeyPressAction).Timestamp,
	}, actions[3])
}

func TestRecorder_AltClickChordIsNotRecorded(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())

	h.source.KeyDown("ctrl")
	h.source.Click(50, 60, domain.ButtonRight)
	h.source.KeyUp("ctrl")
	h.source.Click(70, 80, domain.ButtonRight)
	h.source.Emit(domain.InputEvent{Kind: domain.EventMouseDown, Button: "x1"})

	actions := h.rec.StopRecording()
	require.Len(t, actions, 1)
	assert.Equal(t, 70, actions[0].(domain.ClickAction).AbsX)
}

func TestRecorder_Scroll(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())

	h.source.Scroll(100, 200, 2, -1)

	actions := h.rec.StopRecording()
	require.Len(t, actions, 1)
	scroll, ok := actions[0].(domain.ScrollAction)
	require.True(t, ok)
	assert.Equal(t, 2, scroll.DX)
	assert.Equal(t, -1, scroll.DY)
	assert.Equal(t, 100, scroll.AbsX)
	assert.Equal(t, 200, scroll.AbsY)
}

func TestRecorder_RecordPositionAndAltClick(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.rec.RecordPosition(), "ignored while stopped")
	assert.False(t, h.rec.RecordAltClick(1, 2), "ignored while stopped")

	require.True(t, h.rec.StartRecording())
	h.clock.Advance(250 * time.Millisecond)
	require.True(t, h.rec.RecordPosition())
	h.clock.Advance(250 * time.Millisecond)
	require.True(t, h.rec.RecordAltClick(11, 22))

	actions := h.rec.StopRecording()
	require.Len(t, actions, 2)

	pos := actions[0].(domain.ClickAction)
	assert.Equal(t, 640, pos.AbsX)
	assert.Equal(t, 360, pos.AbsY)
	assert.Equal(t, domain.ButtonLeft, pos.Button)
	assert.True(t, pos.RecordedViaHotkey)
	assert.False(t, pos.RecordedViaAltHotkey)

	alt := actions[1].(domain.ClickAction)
	assert.Equal(t, 11, alt.AbsX)
	assert.True(t, alt.RecordedViaAltHotkey)
	assert.InDelta(t, 0.25, alt.Delay, 1e-6)
}

func TestRecorder_RecordPositionLocatorError(t *testing.T) {
	machine := state.NewMachine(zap.NewNop())
	rec := NewRecorder(machine, fixtures.NewFakeInputSource(),
		fixtures.FakeLocator{Err: errors.New("no display")},
		domain.StaticSettings(domain.DefaultSettings()), zap.NewNop())
	defer rec.Close()

	require.True(t, rec.StartRecording())
	assert.False(t, rec.RecordPosition())
	assert.Zero(t, rec.ActionCount())
}

func TestRecorder_StopIsIdempotentAndReturnsCopies(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())
	h.source.Tap("a")
	h.source.Tap("b", "ctrl")

	first := h.rec.StopRecording()
	second := h.rec.StopRecording()
	assert.Equal(t, first, second)

	first[0] = domain.WaitAction{Seconds: 9}
	first[1].(domain.KeyPressAction).Modifiers[0] = "mutated"

	third := h.rec.StopRecording()
	assert.Equal(t, "a", third[0].(domain.KeyPressAction).Key)
	assert.Equal(t, []string{"ctrl"}, third[1].(domain.KeyPressAction).Modifiers)
}

func TestRecorder_ActionCountPublished(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())

	h.source.Tap("a")
	h.source.Tap("b")
	assert.Equal(t, 2, h.machine.Info(domain.ProcessRecording).ActionCount)

	h.rec.StopRecording()
	assert.Equal(t, 2, h.machine.Info(domain.ProcessRecording).ActionCount)

	require.True(t, h.rec.StartRecording())
	assert.Zero(t, h.rec.ActionCount(), "a new session starts with an empty log")
	assert.Zero(t, h.machine.Info(domain.ProcessRecording).ActionCount)
}

func TestRecorder_CallbackPanicKeepsAction(t *testing.T) {
	h := newHarness(t)
	var seen []domain.ActionType
	h.rec.SetOnActionRecorded(func(a domain.Action) {
		seen = append(seen, a.Type())
		panic("callback failure")
	})
	require.True(t, h.rec.StartRecording())

	assert.NotPanics(t, func() {
		h.source.Click(1, 2, domain.ButtonMiddle)
		h.source.Tap("z")
	})

	assert.Equal(t, []domain.ActionType{domain.ActionClick, domain.ActionKeyPress}, seen)
	assert.Equal(t, 2, h.rec.ActionCount())
}

func TestRecorder_ListenFailureLeavesNoListener(t *testing.T) {
	h := newHarness(t)
	h.source.ListenErr = errors.New("hook unavailable")

	require.True(t, h.rec.StartRecording())
	assert.Zero(t, h.source.ActiveListeners())

	h.source.ListenErr = nil
	assert.NotPanics(t, func() { h.rec.StopRecording() })
}

func TestRecorder_Clear(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.rec.StartRecording())
	h.source.Tap("a")

	h.rec.Clear()
	assert.Zero(t, h.rec.ActionCount())
	assert.Empty(t, delays(h.rec.Actions()))
}
