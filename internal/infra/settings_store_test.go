package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// writeSettings writes content and bumps the mtime so the store notices.
func writeSettings(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestDecodeSettings(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		check func(t *testing.T, s domain.Settings)
	}{
		{
			name: "empty file yields defaults",
			yaml: "",
			check: func(t *testing.T, s domain.Settings) {
				assert.Equal(t, domain.DefaultSettings(), s)
			},
		},
		{
			name: "partial override keeps other defaults",
			yaml: "execution:\n  default_loop_count: 4\n  enable_randomness: true\n",
			check: func(t *testing.T, s domain.Settings) {
				assert.Equal(t, 4, s.Execution.DefaultLoopCount)
				assert.True(t, s.Execution.EnableRandomness)
				assert.Equal(t, 5, s.Execution.RandomnessRadius)
				assert.Equal(t, []string{"ctrl", "f8"}, s.KeyBindings.RecordStartStop)
			},
		},
		{
			name: "binding list replaces default",
			yaml: "key_bindings:\n  record_start_stop: [alt, r]\n",
			check: func(t *testing.T, s domain.Settings) {
				assert.Equal(t, []string{"alt", "r"}, s.KeyBindings.RecordStartStop)
				assert.Equal(t, []string{"esc"}, s.KeyBindings.GlobalEmergencyStop)
			},
		},
		{
			name: "out of range values are clamped",
			yaml: "execution:\n  default_loop_count: 0\n  randomness_radius: -3\n  delay_randomness: 4\n  smoothing_duration: -1\n",
			check: func(t *testing.T, s domain.Settings) {
				assert.Equal(t, 1, s.Execution.DefaultLoopCount)
				assert.Zero(t, s.Execution.RandomnessRadius)
				assert.Equal(t, 1.0, s.Execution.DelayRandomness)
				assert.Zero(t, s.Execution.SmoothingDuration)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeSettings([]byte(tt.yaml))
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestDecodeSettings_Invalid(t *testing.T) {
	_, err := DecodeSettings([]byte("execution: [not, a, map"))
	assert.Error(t, err)
}

func TestSettingsStore_MissingFileUsesDefaults(t *testing.T) {
	store, err := NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), store.Settings())
}

func TestSettingsStore_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	base := time.Now().Add(-time.Hour)
	writeSettings(t, path, "execution:\n  default_loop_count: 2\n", base)

	store, err := NewSettingsStore(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, store.Settings().Execution.DefaultLoopCount)

	writeSettings(t, path, "execution:\n  default_loop_count: 7\n", base.Add(time.Minute))
	assert.Equal(t, 7, store.Settings().Execution.DefaultLoopCount)
}

func TestSettingsStore_KeepsLastGoodOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	base := time.Now().Add(-time.Hour)
	writeSettings(t, path, "execution:\n  default_loop_count: 3\n", base)

	store, err := NewSettingsStore(path, zap.NewNop())
	require.NoError(t, err)

	writeSettings(t, path, "execution: [broken", base.Add(time.Minute))
	assert.Equal(t, 3, store.Settings().Execution.DefaultLoopCount)

	writeSettings(t, path, "execution:\n  default_loop_count: 5\n", base.Add(2*time.Minute))
	assert.Equal(t, 5, store.Settings().Execution.DefaultLoopCount)
}

func TestSettingsStore_RemovedFileRevertsToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "execution:\n  default_loop_count: 9\n", time.Now().Add(-time.Hour))

	store, err := NewSettingsStore(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 9, store.Settings().Execution.DefaultLoopCount)

	require.NoError(t, os.Remove(path))
	assert.Equal(t, domain.DefaultSettings(), store.Settings())
}

func TestNewSettingsStore_InvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "key_bindings: {", time.Now())

	_, err := NewSettingsStore(path, zap.NewNop())
	assert.Error(t, err)
}

func TestWriteDefaultSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	require.NoError(t, WriteDefaultSettings(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "record_start_stop:")
	assert.Contains(t, string(data), "default_loop_count: 1")

	decoded, err := DecodeSettings(data)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), decoded)

	assert.Error(t, WriteDefaultSettings(path, false), "refuses to overwrite")
	assert.NoError(t, WriteDefaultSettings(path, true))
}
