//go:build cgo

package osinput

import (
	hook "github.com/robotn/gohook"
	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// HookSource is a domain.InputSource backed by a global gohook reactor.
// The hook itself is process-wide, so one reactor is shared by all listeners.
type HookSource struct {
	*fanout
}

// NewHookSource creates the source. The hook starts with the first listener.
func NewHookSource(logger *zap.Logger) *HookSource {
	return &HookSource{fanout: newFanout(logger, startHook)}
}

func startHook(emit func(domain.InputEvent)) (func(), error) {
	events := hook.Start()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if in, ok := translate(ev); ok {
					emit(in)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		hook.End()
	}, nil
}

// translate maps a hook event to a domain event. The hook names press events
// "Hold" and release events "Down"/"Up".
func translate(ev hook.Event) (domain.InputEvent, bool) {
	out := domain.InputEvent{X: int(ev.X), Y: int(ev.Y), Time: ev.When}

	switch ev.Kind {
	case hook.KeyHold:
		out.Kind = domain.EventKeyDown
		out.Key = keyName(hook.RawcodetoKeychar(ev.Rawcode), ev.Keychar)
	case hook.KeyUp:
		out.Kind = domain.EventKeyUp
		out.Key = keyName(hook.RawcodetoKeychar(ev.Rawcode), ev.Keychar)
	case hook.MouseHold:
		out.Kind = domain.EventMouseDown
		out.Button = buttonName(ev.Button)
	case hook.MouseDown:
		out.Kind = domain.EventMouseUp
		out.Button = buttonName(ev.Button)
	case hook.MouseWheel:
		out.Kind = domain.EventScroll
		out.DX, out.DY = scrollDelta(ev.Direction, ev.Rotation)
	default:
		return out, false
	}

	if (out.Kind == domain.EventKeyDown || out.Kind == domain.EventKeyUp) && out.Key == "" {
		return out, false
	}
	return out, true
}

var _ domain.InputSource = (*HookSource)(nil)
