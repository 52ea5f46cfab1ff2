//go:build !cgo

package osinput

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// HookSource reports that global input hooks need a cgo build.
type HookSource struct{}

// NewHookSource returns a source whose Listen always fails.
func NewHookSource(*zap.Logger) *HookSource { return &HookSource{} }

// Listen implements domain.InputSource.
func (*HookSource) Listen(domain.EventHandler) (domain.Listener, error) {
	return nil, fmt.Errorf("global input hook: %w", domain.ErrUnsupported)
}

// RobotSink reports that input injection needs a cgo build.
type RobotSink struct{}

// NewRobotSink returns a sink whose operations always fail.
func NewRobotSink(*zap.Logger) *RobotSink { return &RobotSink{} }

func unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, domain.ErrUnsupported)
}

func (*RobotSink) MoveTo(int, int, time.Duration) error { return unsupported("move") }
func (*RobotSink) Click(domain.MouseButton) error       { return unsupported("click") }
func (*RobotSink) KeyPress(string) error                { return unsupported("key press") }
func (*RobotSink) KeyChord([]string, string) error      { return unsupported("key chord") }
func (*RobotSink) ScrollVertical(int) error             { return unsupported("scroll") }
func (*RobotSink) ScrollHorizontal(int) error           { return unsupported("scroll") }
func (*RobotSink) Position() (int, int, error)          { return 0, 0, unsupported("cursor position") }

var (
	_ domain.InputSource   = (*HookSource)(nil)
	_ domain.InputSink     = (*RobotSink)(nil)
	_ domain.CursorLocator = (*RobotSink)(nil)
)
