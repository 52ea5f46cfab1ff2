//go:build cgo

package osinput

import (
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

const defaultMoveStep = 10 * time.Millisecond

// RobotSink injects input with robotgo. It also reports the cursor position.
type RobotSink struct {
	logger *zap.Logger
	step   time.Duration
}

// NewRobotSink creates a sink that moves the cursor in 10ms eased steps.
func NewRobotSink(logger *zap.Logger) *RobotSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotSink{logger: logger, step: defaultMoveStep}
}

// MoveTo implements domain.InputSink.
func (s *RobotSink) MoveTo(x, y int, duration time.Duration) error {
	if duration <= 0 {
		robotgo.Move(x, y)
		return nil
	}
	fromX, fromY := robotgo.Location()
	for _, p := range smoothPath(fromX, fromY, x, y, duration, s.step) {
		robotgo.Move(p.X, p.Y)
		time.Sleep(s.step)
	}
	return nil
}

// Click implements domain.InputSink.
func (s *RobotSink) Click(button domain.MouseButton) error {
	if !button.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidButton, button)
	}
	robotgo.Click(robotButton(button), false)
	return nil
}

// KeyPress implements domain.InputSink.
func (s *RobotSink) KeyPress(key string) error {
	if err := robotgo.KeyTap(robotKey(key)); err != nil {
		return fmt.Errorf("key tap %q: %w", key, err)
	}
	return nil
}

// KeyChord implements domain.InputSink.
func (s *RobotSink) KeyChord(modifiers []string, key string) error {
	args := make([]interface{}, 0, len(modifiers))
	for _, m := range modifiers {
		args = append(args, robotKey(m))
	}
	if err := robotgo.KeyTap(robotKey(key), args...); err != nil {
		return fmt.Errorf("key tap %q with %v: %w", key, modifiers, err)
	}
	return nil
}

// ScrollVertical implements domain.InputSink.
func (s *RobotSink) ScrollVertical(dy int) error {
	robotgo.Scroll(0, dy)
	return nil
}

// ScrollHorizontal implements domain.InputSink.
func (s *RobotSink) ScrollHorizontal(dx int) error {
	robotgo.Scroll(dx, 0)
	return nil
}

// Position implements domain.CursorLocator.
func (s *RobotSink) Position() (int, int, error) {
	x, y := robotgo.Location()
	return x, y, nil
}

var (
	_ domain.InputSink     = (*RobotSink)(nil)
	_ domain.CursorLocator = (*RobotSink)(nil)
)
