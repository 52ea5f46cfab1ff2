package domain

import "time"

// KeyBindings holds the chord list for every control intent.
type KeyBindings struct {
	RecordStartStop     []string `yaml:"record_start_stop" json:"record_start_stop"`
	RecordPauseResume   []string `yaml:"record_pause_resume" json:"record_pause_resume"`
	RecordPosition      []string `yaml:"record_position" json:"record_position"`
	RecordAltClick      []string `yaml:"record_alt_click" json:"record_alt_click"`
	ExecuteStartStop    []string `yaml:"execute_start_stop" json:"execute_start_stop"`
	ExecutePauseResume  []string `yaml:"execute_pause_resume" json:"execute_pause_resume"`
	ExecuteKill         []string `yaml:"execute_kill" json:"execute_kill"`
	GlobalEmergencyStop []string `yaml:"global_emergency_stop" json:"global_emergency_stop"`
}

// ControlChords returns every keyboard chord that drives the router.
// Keypresses matching any of them are never recorded.
func (b KeyBindings) ControlChords() []Chord {
	lists := [][]string{
		b.RecordStartStop,
		b.RecordPauseResume,
		b.RecordPosition,
		b.ExecuteStartStop,
		b.ExecutePauseResume,
		b.ExecuteKill,
		b.GlobalEmergencyStop,
	}
	chords := make([]Chord, 0, len(lists))
	for _, l := range lists {
		if c := ParseChord(l); !c.IsEmpty() {
			chords = append(chords, c)
		}
	}
	return chords
}

// ExecutionSettings tunes replay.
type ExecutionSettings struct {
	DefaultLoopCount  int     `yaml:"default_loop_count" json:"default_loop_count"`
	DefaultDelay      float64 `yaml:"default_delay" json:"default_delay"`
	EnableRandomness  bool    `yaml:"enable_randomness" json:"enable_randomness"`
	RandomnessRadius  int     `yaml:"randomness_radius" json:"randomness_radius"`
	DelayRandomness   float64 `yaml:"delay_randomness" json:"delay_randomness"`
	EnableSmoothing   bool    `yaml:"enable_smoothing" json:"enable_smoothing"`
	SmoothingDuration float64 `yaml:"smoothing_duration" json:"smoothing_duration"`
}

// Smoothing returns the cursor travel time, zero when smoothing is off.
func (s ExecutionSettings) Smoothing() time.Duration {
	if !s.EnableSmoothing || s.SmoothingDuration <= 0 {
		return 0
	}
	return time.Duration(s.SmoothingDuration * float64(time.Second))
}

// RecordingSettings tunes capture.
type RecordingSettings struct {
	DefaultDelay         float64 `yaml:"default_delay" json:"default_delay"`
	EnableAutoTimestamp  bool    `yaml:"enable_auto_timestamp" json:"enable_auto_timestamp"`
	ShowRealTimeFeedback bool    `yaml:"show_real_time_feedback" json:"show_real_time_feedback"`
}

// Settings is the full configuration consumed by the core.
type Settings struct {
	KeyBindings KeyBindings       `yaml:"key_bindings" json:"key_bindings"`
	Execution   ExecutionSettings `yaml:"execution" json:"execution"`
	Recording   RecordingSettings `yaml:"recording" json:"recording"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		KeyBindings: KeyBindings{
			RecordStartStop:     []string{"ctrl", "f8"},
			RecordPauseResume:   []string{"ctrl", "f9"},
			RecordPosition:      []string{"ctrl", "f10"},
			RecordAltClick:      []string{"ctrl", "right"},
			ExecuteStartStop:    []string{"ctrl", "shift", "f8"},
			ExecutePauseResume:  []string{"ctrl", "shift", "f9"},
			ExecuteKill:         []string{"ctrl", "shift", "esc"},
			GlobalEmergencyStop: []string{"esc"},
		},
		Execution: ExecutionSettings{
			DefaultLoopCount:  1,
			DefaultDelay:      0.1,
			EnableRandomness:  false,
			RandomnessRadius:  5,
			DelayRandomness:   0.1,
			EnableSmoothing:   true,
			SmoothingDuration: 0.1,
		},
		Recording: RecordingSettings{
			DefaultDelay:         0.1,
			EnableAutoTimestamp:  true,
			ShowRealTimeFeedback: true,
		},
	}
}

// StaticSettings is a SettingsProvider that always returns the same values.
type StaticSettings Settings

// Settings implements SettingsProvider.
func (s StaticSettings) Settings() Settings { return Settings(s) }
