package domain

import "time"

// EventKind classifies a raw input event.
type EventKind int

const (
	EventMouseDown EventKind = iota + 1
	EventMouseUp
	EventScroll
	EventKeyDown
	EventKeyUp
)

func (k EventKind) String() string {
	switch k {
	case EventMouseDown:
		return "mouse_down"
	case EventMouseUp:
		return "mouse_up"
	case EventScroll:
		return "scroll"
	case EventKeyDown:
		return "key_down"
	case EventKeyUp:
		return "key_up"
	default:
		return "unknown"
	}
}

// InputEvent is one raw event delivered by an InputSource.
type InputEvent struct {
	Kind   EventKind
	X, Y   int
	Button MouseButton // mouse events; may be a non-replayable name such as "x1"
	DX, DY int         // scroll events
	Key    string      // key events, as reported by the source
	Time   time.Time
}

// EventHandler receives events from a listener. Calls are serialized per listener.
type EventHandler func(InputEvent)
