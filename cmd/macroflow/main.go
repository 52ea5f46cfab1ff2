// Package main is the CLI entry point for macroflow.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/macroflow/internal/daemon"
	"github.com/eliteGoblin/macroflow/internal/domain"
	"github.com/eliteGoblin/macroflow/internal/executor"
	"github.com/eliteGoblin/macroflow/internal/hotkey"
	"github.com/eliteGoblin/macroflow/internal/infra"
	"github.com/eliteGoblin/macroflow/internal/infra/osinput"
	"github.com/eliteGoblin/macroflow/internal/recorder"
	"github.com/eliteGoblin/macroflow/internal/state"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "macroflow",
	Short: "Record and replay mouse and keyboard macros",
	Long: `macroflow records clicks, scrolls and keypresses as a timed macro and
replays them, driven by global hotkeys.

Run 'macroflow listen' and use the configured chords to start, pause and stop
recording or execution. Press the emergency stop key to end everything.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return infra.LoadEnvFiles(".env")
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the hotkey session in the foreground",
	Long: `Listens for the global hotkeys until interrupted or the emergency stop key is pressed.
Finished recordings are written to --out. The execute hotkey replays --macro,
or the last recording when --macro is not given.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Replay a macro file",
	Long:  `Replays a macro file with the execution hotkeys active. Ctrl-C stops the run.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent recording and execution runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Long:  `Shows whether a listen session holds the hotkeys, where data is stored and the host platform.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or create the settings file",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Args:  cobra.NoArgs,
	RunE:  runSettingsInit,
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(infra.DetectPaths().Settings())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	verbose       bool
	dryRun        bool
	macroPath     string
	outPath       string
	loopCount     int
	historyLimit  int
	jsonOutput    bool
	forceSettings bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr in development format")

	listenCmd.Flags().StringVar(&macroPath, "macro", "", "Macro file replayed by the execute hotkey")
	listenCmd.Flags().StringVar(&outPath, "out", "", "Where finished recordings are written (default <data dir>/last_recording.json)")
	listenCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log actions instead of injecting input")

	playCmd.Flags().IntVar(&loopCount, "loops", 0, "Number of loops (default from settings)")
	playCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log actions instead of injecting input")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show (0 for all)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output runs as JSON")

	settingsInitCmd.Flags().BoolVar(&forceSettings, "force", false, "Overwrite an existing settings file")
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsPathCmd)

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds what every stateful command needs.
type app struct {
	paths    infra.Paths
	env      infra.EnvOverrides
	logger   *zap.Logger
	settings *infra.SettingsStore
	store    *infra.EncryptedRunStore
}

func openApp() (*app, error) {
	paths := infra.DetectPaths()
	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	if err := infra.LoadEnvFiles(filepath.Join(paths.DataDir, ".env")); err != nil {
		return nil, err
	}
	env, err := infra.ReadEnvOverrides()
	if err != nil {
		return nil, err
	}

	logger := createLogger(paths, env.LogLevel)

	settings, err := infra.NewSettingsStore(paths.Settings(), logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	store, err := infra.OpenRunStore(paths.DataDir, infra.NewFileKeyProvider(paths.DataDir))
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	return &app{
		paths:    paths,
		env:      env,
		logger:   logger,
		settings: settings,
		store:    store,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close run history", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newSession wires the OS adapters, the core components and the session.
func (a *app) newSession(config daemon.SessionConfig) (*daemon.Session, *executor.Executor, func()) {
	machine := state.NewMachine(a.logger.Named("state"))
	source := osinput.NewHookSource(a.logger.Named("input"))
	sink := osinput.NewRobotSink(a.logger.Named("sink"))

	router := hotkey.NewRouter(machine, source, a.settings, a.logger.Named("hotkey"))
	rec := recorder.NewRecorder(machine, source, sink, a.settings, a.logger.Named("recorder"),
		recorder.WithKeySet(router.Keys()))
	exec := executor.NewExecutor(machine, sink, a.settings, executor.DefaultConfig(), a.logger.Named("executor"))

	session := daemon.NewSession(config, machine, router, rec, exec, a.store,
		infra.NewProcessManager(), a.settings, a.logger.Named("session"))

	return session, exec, func() {
		session.Close()
		exec.Close()
		rec.Close()
	}
}

func (a *app) sessionConfig() daemon.SessionConfig {
	config := daemon.DefaultSessionConfig()
	config.AppVersion = Version
	config.DryRun = dryRun || a.env.DryRun
	return config
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runListen(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := outPath
	if out == "" {
		out = a.paths.LastRecording()
	}
	out = infra.ExpandHome(out)
	source := out
	if macroPath != "" {
		source = infra.ExpandHome(macroPath)
	}

	config := a.sessionConfig()
	session, _, closeSession := a.newSession(config)
	defer closeSession()

	session.SetRecordingSink(func(actions []domain.Action) error {
		if err := infra.WriteMacroFile(out, actions); err != nil {
			return err
		}
		fmt.Printf("Saved %d actions to %s\n", len(actions), out)
		return nil
	})
	session.SetMacroSource(func() ([]domain.Action, error) {
		return infra.ReadMacroFile(source)
	})

	kb := a.settings.Settings().KeyBindings
	fmt.Println("\n=== macroflow listening ===")
	fmt.Printf("Record start/stop:   %s\n", domain.ParseChord(kb.RecordStartStop))
	fmt.Printf("Record pause/resume: %s\n", domain.ParseChord(kb.RecordPauseResume))
	fmt.Printf("Record position:     %s\n", domain.ParseChord(kb.RecordPosition))
	fmt.Printf("Execute start/pause: %s\n", domain.ParseChord(kb.ExecuteStartStop))
	fmt.Printf("Execute kill:        %s\n", domain.ParseChord(kb.ExecuteKill))
	fmt.Printf("Emergency stop:      %s\n", domain.ParseChord(kb.GlobalEmergencyStop))
	fmt.Printf("Macro:               %s\n", source)
	if config.DryRun {
		fmt.Println("Mode:                dry run")
	}
	fmt.Println("===========================")

	ctx, cancel := signalContext()
	defer cancel()

	err = session.Run(ctx)
	switch {
	case errors.Is(err, daemon.ErrEmergencyStop):
		fmt.Println("Emergency stop")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, domain.ErrInstanceRunning):
		return fmt.Errorf("%w (run 'macroflow status')", err)
	}
	return err
}

func runPlay(cmd *cobra.Command, args []string) error {
	actions, err := infra.ReadMacroFile(infra.ExpandHome(args[0]))
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	config := a.sessionConfig()
	config.LoopCount = loopCount
	session, exec, closeSession := a.newSession(config)
	defer closeSession()

	ctx, cancel := signalContext()
	defer cancel()

	stopProgress := printProgress(exec)
	success, err := session.Play(ctx, actions, loopCount)
	stopProgress()

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, daemon.ErrEmergencyStop):
		fmt.Println("Stopped")
		return nil
	case err != nil:
		return err
	case !success:
		return errors.New("execution did not complete")
	}
	fmt.Println("Done")
	return nil
}

// printProgress prints the executor position every half second until the
// returned function is called.
func printProgress(exec *executor.Executor) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Println()
				return
			case <-ticker.C:
				p := exec.Progress()
				if !p.Executing {
					continue
				}
				status := ""
				if p.Paused {
					status = " [paused]"
				}
				fmt.Printf("\rloop %d/%d  action %d/%d  %5.1f%%%s   ",
					p.CurrentLoop, p.TotalLoops, p.CurrentActionIndex, p.TotalActions, p.Percent, status)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// runJSON is the machine-readable form of a run record.
type runJSON struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMS     int64     `json:"duration_ms"`
	Success        bool      `json:"success"`
	ActionCount    int       `json:"action_count"`
	Loops          int       `json:"loops,omitempty"`
	LoopsCompleted int       `json:"loops_completed,omitempty"`
	DryRun         bool      `json:"dry_run,omitempty"`
	Transitions    int       `json:"transitions"`
	Error          string    `json:"error,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.ListRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		out := make([]runJSON, 0, len(runs))
		for _, r := range runs {
			out = append(out, runJSON{
				ID:             r.ID,
				Kind:           string(r.Kind),
				StartedAt:      r.StartedAt,
				FinishedAt:     r.FinishedAt,
				DurationMS:     r.Duration().Milliseconds(),
				Success:        r.Success,
				ActionCount:    r.ActionCount,
				Loops:          r.Loops,
				LoopsCompleted: r.LoopsCompleted,
				DryRun:         r.DryRun,
				Transitions:    r.Transitions,
				Error:          r.Error,
			})
		}
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Print(string(pretty.Pretty(data)))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Println("\n=== Run History ===")
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		fmt.Printf("%s  %-9s  %-6s  %3d actions", r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Kind, result, r.ActionCount)
		if r.Kind == domain.RunExecution {
			fmt.Printf("  loops %d/%d", r.LoopsCompleted, r.Loops)
		}
		fmt.Printf("  %s", r.Duration().Round(time.Millisecond))
		if r.DryRun {
			fmt.Print("  (dry run)")
		}
		if r.Error != "" {
			fmt.Printf("  error: %s", r.Error)
		}
		fmt.Println()
	}
	fmt.Println("===================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pm := infra.NewProcessManager()

	fmt.Println("\n=== macroflow Status ===")

	inst, err := a.store.GetInstance()
	if err != nil {
		return fmt.Errorf("failed to read instance: %w", err)
	}
	switch {
	case inst == nil:
		fmt.Println("Session: NOT RUNNING")
	case pm.IsRunning(inst.PID):
		fmt.Printf("Session: RUNNING (pid %d, version %s)\n", inst.PID, inst.AppVersion)
		fmt.Printf("Started: %s ago\n", time.Since(inst.StartedAt).Round(time.Second))
		if !inst.LastHeartbeat.IsZero() {
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(inst.LastHeartbeat).Round(time.Second))
		}
	default:
		fmt.Printf("Session: NOT RUNNING (stale marker for pid %d)\n", inst.PID)
	}

	fmt.Printf("\nData dir: %s\n", a.paths.DataDir)
	fmt.Printf("Settings: %s\n", a.settings.Path())
	fmt.Printf("History: %s\n", a.store.Path())
	fmt.Printf("Log: %s\n", a.paths.Log())
	fmt.Printf("Host: %s\n", infra.DescribeHost())
	fmt.Println("========================")
	return nil
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	store, err := infra.NewSettingsStore(paths.Settings(), zap.NewNop())
	if err != nil {
		return err
	}
	data, err := infra.EncodeSettings(store.Settings())
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	if err := paths.Ensure(); err != nil {
		return err
	}
	if err := infra.WriteDefaultSettings(paths.Settings(), forceSettings); err != nil {
		return err
	}
	fmt.Printf("Wrote default settings to %s\n", paths.Settings())
	return nil
}

func createLogger(paths infra.Paths, level string) *zap.Logger {
	var config zap.Config
	if verbose {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{paths.Log()}
		config.ErrorOutputPaths = []string{paths.Log()}
		config.EncoderConfig.TimeKey = "time"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if level != "" {
		if lvl, err := zap.ParseAtomicLevel(level); err == nil {
			config.Level = lvl
		}
	}

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("version", Version))
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("macroflow %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
