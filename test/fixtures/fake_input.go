// Package fixtures provides test doubles for the input ports.
package fixtures

import (
	"sync"
	"time"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// FakeInputSource is a scripted domain.InputSource. Emit delivers an event
// synchronously to every live listener in registration order.
type FakeInputSource struct {
	mu        sync.Mutex
	listeners []*fakeListener
	started   int
	ListenErr error
}

// NewFakeInputSource returns a source with no listeners.
func NewFakeInputSource() *FakeInputSource {
	return &FakeInputSource{}
}

type fakeListener struct {
	src     *FakeInputSource
	handler domain.EventHandler
	stopped bool
}

// Listen implements domain.InputSource.
func (s *FakeInputSource) Listen(handler domain.EventHandler) (domain.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListenErr != nil {
		return nil, s.ListenErr
	}
	l := &fakeListener{src: s, handler: handler}
	s.listeners = append(s.listeners, l)
	s.started++
	return l, nil
}

// Stop implements domain.Listener.
func (l *fakeListener) Stop() error {
	l.src.mu.Lock()
	defer l.src.mu.Unlock()
	if l.stopped {
		return nil
	}
	l.stopped = true
	for i, other := range l.src.listeners {
		if other == l {
			l.src.listeners = append(l.src.listeners[:i:i], l.src.listeners[i+1:]...)
			break
		}
	}
	return nil
}

// Emit delivers ev to the listeners live at call time.
// A listener stopped by an earlier handler in the same call is skipped.
func (s *FakeInputSource) Emit(ev domain.InputEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.mu.Lock()
	targets := append([]*fakeListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range targets {
		s.mu.Lock()
		stopped := l.stopped
		s.mu.Unlock()
		if !stopped {
			l.handler(ev)
		}
	}
}

// KeyDown emits a key press.
func (s *FakeInputSource) KeyDown(key string) {
	s.Emit(domain.InputEvent{Kind: domain.EventKeyDown, Key: key})
}

// KeyUp emits a key release.
func (s *FakeInputSource) KeyUp(key string) {
	s.Emit(domain.InputEvent{Kind: domain.EventKeyUp, Key: key})
}

// Tap presses and releases key while holding mods.
func (s *FakeInputSource) Tap(key string, mods ...string) {
	for _, m := range mods {
		s.KeyDown(m)
	}
	s.KeyDown(key)
	s.KeyUp(key)
	for i := len(mods) - 1; i >= 0; i-- {
		s.KeyUp(mods[i])
	}
}

// Click emits a mouse press and release.
func (s *FakeInputSource) Click(x, y int, button domain.MouseButton) {
	s.Emit(domain.InputEvent{Kind: domain.EventMouseDown, X: x, Y: y, Button: button})
	s.Emit(domain.InputEvent{Kind: domain.EventMouseUp, X: x, Y: y, Button: button})
}

// Scroll emits a wheel event.
func (s *FakeInputSource) Scroll(x, y, dx, dy int) {
	s.Emit(domain.InputEvent{Kind: domain.EventScroll, X: x, Y: y, DX: dx, DY: dy})
}

// ActiveListeners returns the number of live listeners.
func (s *FakeInputSource) ActiveListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// ListenCalls returns how many listeners were ever started.
func (s *FakeInputSource) ListenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// FakeLocator is a fixed cursor position.
type FakeLocator struct {
	X, Y int
	Err  error
}

// Position implements domain.CursorLocator.
func (l FakeLocator) Position() (int, int, error) {
	return l.X, l.Y, l.Err
}
