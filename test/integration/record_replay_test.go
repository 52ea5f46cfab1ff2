//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/daemon"
	"github.com/eliteGoblin/macroflow/internal/domain"
	"github.com/eliteGoblin/macroflow/internal/executor"
	"github.com/eliteGoblin/macroflow/internal/hotkey"
	"github.com/eliteGoblin/macroflow/internal/infra"
	"github.com/eliteGoblin/macroflow/internal/recorder"
	"github.com/eliteGoblin/macroflow/internal/state"
	"github.com/eliteGoblin/macroflow/test/fixtures"
)

func fastExecutorConfig() executor.Config {
	return executor.Config{
		PausePollInterval: 10 * time.Millisecond,
		SleepSlice:        5 * time.Millisecond,
		LoopGap:           time.Millisecond,
		JoinTimeout:       time.Second,
	}
}

var _ = Describe("Record and replay", func() {
	var (
		tmpDir   string
		settings domain.SettingsProvider
		machine  *state.Machine
		source   *fixtures.FakeInputSource
		sink     *fixtures.RecordingSink
		rec      *recorder.Recorder
		exec     *executor.Executor
		router   *hotkey.Router
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "macroflow-integration-*")
		Expect(err).NotTo(HaveOccurred())

		s := domain.DefaultSettings()
		s.Execution.EnableSmoothing = false
		settings = domain.StaticSettings(s)

		machine = state.NewMachine(zap.NewNop())
		source = fixtures.NewFakeInputSource()
		sink = fixtures.NewRecordingSink()
		router = hotkey.NewRouter(machine, source, settings, zap.NewNop())
		rec = recorder.NewRecorder(machine, source, fixtures.FakeLocator{X: 7, Y: 8}, settings, zap.NewNop(),
			recorder.WithKeySet(router.Keys()))
		exec = executor.NewExecutor(machine, sink, settings, fastExecutorConfig(), zap.NewNop())
		router.SetOnRecordPosition(func() { rec.RecordPosition() })

		Expect(router.Start()).To(Succeed())
	})

	AfterEach(func() {
		router.Stop()
		exec.Close()
		rec.Close()
		os.RemoveAll(tmpDir)
	})

	recordSample := func() []domain.Action {
		source.Tap("f8", "ctrl")
		Expect(machine.State(domain.ProcessRecording)).To(Equal(domain.StateRunning))

		source.Click(10, 20, domain.ButtonLeft)
		source.Scroll(10, 20, 0, -3)
		source.Tap("a")
		source.Tap("c", "ctrl")
		source.Tap("f10", "ctrl")

		return rec.StopRecording()
	}

	Describe("a recorded session", func() {
		It("captures every input except the control chords", func() {
			actions := recordSample()

			Expect(actions).To(HaveLen(5))
			Expect(actions[0]).To(BeAssignableToTypeOf(domain.ClickAction{}))
			Expect(actions[1]).To(BeAssignableToTypeOf(domain.ScrollAction{}))
			Expect(actions[2]).To(Equal(domain.KeyPressAction{
				Key:       "a",
				Delay:     actions[2].DelaySeconds(),
				Timestamp: actions[2].(domain.KeyPressAction).Timestamp,
			}))

			combo, ok := actions[3].(domain.KeyPressAction)
			Expect(ok).To(BeTrue())
			Expect(combo.IsCombination).To(BeTrue())
			Expect(combo.Modifiers).To(Equal([]string{"ctrl"}))
			Expect(combo.MainKey).To(Equal("c"))

			position, ok := actions[4].(domain.ClickAction)
			Expect(ok).To(BeTrue())
			Expect(position.RecordedViaHotkey).To(BeTrue())
			Expect(position.AbsX).To(Equal(7))
			Expect(position.AbsY).To(Equal(8))
		})

		It("survives a macro file round trip unchanged", func() {
			actions := recordSample()
			path := filepath.Join(tmpDir, "macro.json")

			Expect(infra.WriteMacroFile(path, actions)).To(Succeed())
			loaded, err := infra.ReadMacroFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(actions))
		})

		It("replays in order for every loop", func() {
			actions := recordSample()
			path := filepath.Join(tmpDir, "macro.json")
			Expect(infra.WriteMacroFile(path, actions)).To(Succeed())
			loaded, err := infra.ReadMacroFile(path)
			Expect(err).NotTo(HaveOccurred())

			Expect(exec.Execute(loaded, 2)).To(BeTrue())

			oneLoop := []string{
				"move 10,20 0s", "click left",
				"scroll v -3",
				"key a",
				"chord ctrl+c",
				"move 7,8 0s", "click left",
			}
			Expect(sink.Calls()).To(Equal(append(append([]string(nil), oneLoop...), oneLoop...)))
			Expect(machine.State(domain.ProcessExecution)).To(Equal(domain.StateStopped))
		})

		It("keeps a modifier held across the start chord", func() {
			source.KeyDown("ctrl")
			source.Tap("f8")
			Expect(machine.State(domain.ProcessRecording)).To(Equal(domain.StateRunning))
			source.Tap("f10")
			source.Tap("c")
			source.KeyUp("ctrl")

			actions := rec.StopRecording()
			Expect(actions).To(HaveLen(2))
			Expect(actions[0].(domain.ClickAction).RecordedViaHotkey).To(BeTrue())
			Expect(actions[1].(domain.KeyPressAction).Key).To(Equal("ctrl+c"))
		})

		It("blocks execution while recording", func() {
			source.Tap("f8", "ctrl")
			source.Click(1, 1, domain.ButtonLeft)

			Expect(exec.ExecuteAsync(rec.Actions(), 1)).To(BeFalse())
			Expect(sink.Calls()).To(BeEmpty())
			rec.StopRecording()
		})
	})

	Describe("hotkey control of a replay", func() {
		It("pauses, resumes and kills a running execution", func() {
			long := []domain.Action{
				domain.WaitAction{Seconds: 5},
				domain.ClickAction{AbsX: 1, AbsY: 1, Button: domain.ButtonLeft},
			}
			Expect(exec.ExecuteAsync(long, 1)).To(BeTrue())

			source.Tap("f9", "ctrl", "shift")
			Expect(machine.State(domain.ProcessExecution)).To(Equal(domain.StatePaused))

			source.Tap("f9", "ctrl", "shift")
			Expect(machine.State(domain.ProcessExecution)).To(Equal(domain.StateRunning))

			source.Tap("esc", "ctrl", "shift")
			Expect(exec.Wait()).To(BeFalse())
			Expect(machine.State(domain.ProcessExecution)).To(Equal(domain.StateStopped))
			Expect(sink.Calls()).To(BeEmpty())
		})

		It("stops everything on the emergency key", func() {
			Expect(exec.ExecuteAsync([]domain.Action{domain.WaitAction{Seconds: 5}}, 1)).To(BeTrue())

			source.Tap("esc")

			Expect(router.Done()).To(BeClosed())
			Expect(exec.Wait()).To(BeFalse())
			Expect(machine.Status().AnyActive()).To(BeFalse())
		})
	})
})

var _ = Describe("Run history", func() {
	var (
		tmpDir string
		store  *infra.EncryptedRunStore
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "macroflow-history-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenRunStore(tmpDir, infra.NewFileKeyProvider(tmpDir))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	It("persists a played macro in the encrypted store", func() {
		s := domain.DefaultSettings()
		s.Execution.EnableSmoothing = false
		settings := domain.StaticSettings(s)

		machine := state.NewMachine(zap.NewNop())
		source := fixtures.NewFakeInputSource()
		sink := fixtures.NewRecordingSink()
		router := hotkey.NewRouter(machine, source, settings, zap.NewNop())
		rec := recorder.NewRecorder(machine, source, fixtures.FakeLocator{}, settings, zap.NewNop(),
			recorder.WithKeySet(router.Keys()))
		defer rec.Close()
		exec := executor.NewExecutor(machine, sink, settings, fastExecutorConfig(), zap.NewNop())
		defer exec.Close()

		config := daemon.DefaultSessionConfig()
		config.AppVersion = "integration"
		session := daemon.NewSession(config, machine, router, rec, exec, store,
			infra.NewProcessManager(), settings, zap.NewNop())
		defer session.Close()

		actions := []domain.Action{
			domain.ClickAction{AbsX: 3, AbsY: 4, Button: domain.ButtonRight, Delay: 0.001},
			domain.KeyPressAction{Key: "enter", Delay: 0.001},
		}
		ok, err := session.Play(context.Background(), actions, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(sink.Calls()).To(HaveLen(9))

		runs, err := store.ListRuns(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(HaveLen(1))
		Expect(runs[0].Kind).To(Equal(domain.RunExecution))
		Expect(runs[0].Success).To(BeTrue())
		Expect(runs[0].Loops).To(Equal(3))
		Expect(runs[0].LoopsCompleted).To(Equal(3))
		Expect(runs[0].ActionCount).To(Equal(2))

		stored, err := store.GetRun(runs[0].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ID).To(Equal(runs[0].ID))

		inst, err := store.GetInstance()
		Expect(err).NotTo(HaveOccurred())
		Expect(inst).To(BeNil())
	})

	It("reopens with the stored key", func() {
		Expect(store.SaveRun(domain.RunRecord{
			ID:        "6f1c1c9e-7d38-4a53-9a8f-1f8c8f1a2b3c",
			Kind:      domain.RunRecording,
			StartedAt: time.Now(),
			Success:   true,
		})).To(Succeed())
		Expect(store.Close()).To(Succeed())

		var err error
		store, err = infra.OpenRunStore(tmpDir, infra.NewFileKeyProvider(tmpDir))
		Expect(err).NotTo(HaveOccurred())

		runs, err := store.ListRuns(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(HaveLen(1))
	})
})
