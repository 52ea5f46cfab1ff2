package fixtures

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// RecordingSink is a domain.InputSink that logs every call instead of injecting input.
type RecordingSink struct {
	mu    sync.Mutex
	calls []string

	// FailOn makes the named operation ("move", "click", "key", "chord", "scroll") fail.
	FailOn string
}

// NewRecordingSink returns an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) record(op, call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOn == op {
		return fmt.Errorf("injected %s failure", op)
	}
	s.calls = append(s.calls, call)
	return nil
}

// MoveTo implements domain.InputSink.
func (s *RecordingSink) MoveTo(x, y int, duration time.Duration) error {
	return s.record("move", fmt.Sprintf("move %d,%d %s", x, y, duration))
}

// Click implements domain.InputSink.
func (s *RecordingSink) Click(button domain.MouseButton) error {
	return s.record("click", "click "+string(button))
}

// KeyPress implements domain.InputSink.
func (s *RecordingSink) KeyPress(key string) error {
	return s.record("key", "key "+key)
}

// KeyChord implements domain.InputSink.
func (s *RecordingSink) KeyChord(modifiers []string, key string) error {
	return s.record("chord", "chord "+strings.Join(append(append([]string(nil), modifiers...), key), "+"))
}

// ScrollVertical implements domain.InputSink.
func (s *RecordingSink) ScrollVertical(dy int) error {
	return s.record("scroll", fmt.Sprintf("scroll v %d", dy))
}

// ScrollHorizontal implements domain.InputSink.
func (s *RecordingSink) ScrollHorizontal(dx int) error {
	return s.record("scroll", fmt.Sprintf("scroll h %d", dx))
}

// Calls returns a copy of the logged calls.
func (s *RecordingSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

var _ domain.InputSink = (*RecordingSink)(nil)
var _ domain.InputSource = (*FakeInputSource)(nil)
var _ domain.CursorLocator = FakeLocator{}
