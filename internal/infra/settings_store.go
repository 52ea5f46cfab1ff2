package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// SettingsStore implements domain.SettingsProvider on top of a YAML file.
// The file is re-read whenever its modification time or size changes, so
// edits apply to the next decision without a restart. A missing file means
// defaults; a broken file keeps the last good settings.
type SettingsStore struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	current domain.Settings
	modTime time.Time
	size    int64
}

// NewSettingsStore loads path, or defaults when it does not exist.
func NewSettingsStore(path string, logger *zap.Logger) (*SettingsStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SettingsStore{
		path:    path,
		logger:  logger,
		current: domain.DefaultSettings(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *SettingsStore) Path() string {
	return s.path
}

// Settings implements domain.SettingsProvider.
func (s *SettingsStore) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !s.modTime.IsZero() {
			s.logger.Info("settings file removed, using defaults", zap.String("path", s.path))
			s.current = domain.DefaultSettings()
			s.modTime, s.size = time.Time{}, 0
		}
	case err != nil:
		s.logger.Warn("failed to stat settings file", zap.String("path", s.path), zap.Error(err))
	case !info.ModTime().Equal(s.modTime) || info.Size() != s.size:
		if err := s.loadLocked(info); err != nil {
			s.logger.Warn("keeping previous settings", zap.String("path", s.path), zap.Error(err))
		} else {
			s.logger.Info("settings reloaded", zap.String("path", s.path))
		}
	}
	return s.current
}

// Reload forces a re-read of the file.
func (s *SettingsStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.current = domain.DefaultSettings()
		s.modTime, s.size = time.Time{}, 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat settings: %w", err)
	}
	return s.loadLocked(info)
}

func (s *SettingsStore) loadLocked(info os.FileInfo) error {
	// Record the attempt even on failure so a broken file is reported once.
	s.modTime, s.size = info.ModTime(), info.Size()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	settings, err := DecodeSettings(data)
	if err != nil {
		return err
	}
	s.current = settings
	return nil
}

// DecodeSettings parses YAML on top of the defaults, so omitted keys keep
// their default values.
func DecodeSettings(data []byte) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return sanitizeSettings(settings), nil
}

// EncodeSettings renders settings as YAML.
func EncodeSettings(settings domain.Settings) ([]byte, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}

// WriteDefaultSettings writes the default settings file. An existing file is
// left alone unless overwrite is set.
func WriteDefaultSettings(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("settings file %s already exists", path)
		}
	}
	data, err := EncodeSettings(domain.DefaultSettings())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func sanitizeSettings(s domain.Settings) domain.Settings {
	if s.Execution.DefaultLoopCount < 1 {
		s.Execution.DefaultLoopCount = 1
	}
	if s.Execution.DefaultDelay < 0 {
		s.Execution.DefaultDelay = 0
	}
	if s.Execution.RandomnessRadius < 0 {
		s.Execution.RandomnessRadius = 0
	}
	s.Execution.DelayRandomness = min(max(s.Execution.DelayRandomness, 0), 1)
	if s.Execution.SmoothingDuration < 0 {
		s.Execution.SmoothingDuration = 0
	}
	if s.Recording.DefaultDelay < 0 {
		s.Recording.DefaultDelay = 0
	}
	return s
}

var _ domain.SettingsProvider = (*SettingsStore)(nil)
