// Package osinput connects the core to the operating system: a global input
// hook as domain.InputSource and synthetic input as domain.InputSink.
package osinput

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// backendStart starts the single OS reactor. Events are passed to emit in
// arrival order; the returned func stops the reactor.
type backendStart func(emit func(domain.InputEvent)) (stop func(), err error)

// fanout shares one reactor between any number of listeners. The reactor runs
// while at least one listener is registered.
type fanout struct {
	logger *zap.Logger
	start  backendStart

	// lifecycleMu serializes backend start and stop.
	lifecycleMu sync.Mutex
	stopBackend func()

	mu        sync.Mutex
	listeners map[uint64]*listener
	nextID    uint64
}

func newFanout(logger *zap.Logger, start backendStart) *fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fanout{
		logger:    logger,
		start:     start,
		listeners: make(map[uint64]*listener),
	}
}

// Listen registers handler and starts the reactor if it is not running.
func (f *fanout) Listen(handler domain.EventHandler) (domain.Listener, error) {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	f.mu.Lock()
	l := &listener{id: f.nextID, owner: f, handler: handler}
	f.nextID++
	f.listeners[l.id] = l
	f.mu.Unlock()

	if f.stopBackend == nil {
		stop, err := f.start(f.dispatch)
		if err != nil {
			f.mu.Lock()
			delete(f.listeners, l.id)
			f.mu.Unlock()
			return nil, err
		}
		f.stopBackend = stop
		f.logger.Debug("input reactor started")
	}
	return l, nil
}

// dispatch delivers ev to a snapshot of the listeners without holding the
// lock, so handlers may stop listeners or register new ones.
func (f *fanout) dispatch(ev domain.InputEvent) {
	f.mu.Lock()
	targets := make([]*listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		targets = append(targets, l)
	}
	f.mu.Unlock()

	// Map order is random; registration order is the delivery order.
	slices.SortFunc(targets, func(a, b *listener) int { return cmp.Compare(a.id, b.id) })
	for _, l := range targets {
		if l.stopped.Load() {
			continue
		}
		f.deliver(l, ev)
	}
}

func (f *fanout) deliver(l *listener, ev domain.InputEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			f.logger.Error("input handler panicked",
				zap.Stringer("event", ev.Kind),
				zap.Any("panic", rec))
		}
	}()
	l.handler(ev)
}

func (f *fanout) remove(id uint64) {
	f.mu.Lock()
	delete(f.listeners, id)
	empty := len(f.listeners) == 0
	f.mu.Unlock()

	if empty {
		f.release()
	}
}

// release stops the reactor once no listener is left.
func (f *fanout) release() {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	f.mu.Lock()
	empty := len(f.listeners) == 0
	f.mu.Unlock()
	if !empty || f.stopBackend == nil {
		return
	}
	stop := f.stopBackend
	f.stopBackend = nil
	stop()
	f.logger.Debug("input reactor stopped")
}

func (f *fanout) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type listener struct {
	id      uint64
	owner   *fanout
	handler domain.EventHandler
	stopped atomic.Bool
}

// Stop implements domain.Listener.
func (l *listener) Stop() error {
	if !l.stopped.CompareAndSwap(false, true) {
		return nil
	}
	l.owner.remove(l.id)
	return nil
}
