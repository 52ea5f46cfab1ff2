package domain

import (
	"fmt"
	"strings"
)

// ActionType is the discriminator of the Action union.
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionWait     ActionType = "wait"
	ActionKeyPress ActionType = "keypress"
	ActionScroll   ActionType = "scroll"
)

// MouseButton names a mouse button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// Valid reports whether b is one of the replayable buttons.
func (b MouseButton) Valid() bool {
	switch b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return true
	}
	return false
}

// Action is one recorded or replayable unit.
// The set of implementations is closed: ClickAction, WaitAction, KeyPressAction, ScrollAction.
type Action interface {
	Type() ActionType
	// DelaySeconds is the gap to wait before the action is replayed.
	DelaySeconds() float64
	Validate() error
	isAction()
}

// ClickAction is a mouse button press at an absolute position.
type ClickAction struct {
	Monitor              int         `json:"monitor"`
	AbsX                 int         `json:"abs_x"`
	AbsY                 int         `json:"abs_y"`
	Button               MouseButton `json:"button"`
	Delay                float64     `json:"delay"`
	Timestamp            float64     `json:"timestamp"`
	RecordedViaHotkey    bool        `json:"recorded_via_hotkey,omitempty"`
	RecordedViaAltHotkey bool        `json:"recorded_via_alt_hotkey,omitempty"`
}

// WaitAction is an explicit pause in a sequence.
type WaitAction struct {
	Seconds float64 `json:"seconds"`
}

// KeyPressAction is a single key or a modifier combination.
type KeyPressAction struct {
	Key           string   `json:"key"`
	IsCombination bool     `json:"is_combination"`
	Modifiers     []string `json:"modifiers,omitempty"`
	MainKey       string   `json:"main_key,omitempty"`
	Delay         float64  `json:"delay"`
	Timestamp     float64  `json:"timestamp"`
}

// ScrollAction is a wheel movement.
type ScrollAction struct {
	DX        int     `json:"dx"`
	DY        int     `json:"dy"`
	AbsX      int     `json:"abs_x"`
	AbsY      int     `json:"abs_y"`
	Delay     float64 `json:"delay"`
	Timestamp float64 `json:"timestamp"`
}

func (ClickAction) Type() ActionType    { return ActionClick }
func (WaitAction) Type() ActionType     { return ActionWait }
func (KeyPressAction) Type() ActionType { return ActionKeyPress }
func (ScrollAction) Type() ActionType   { return ActionScroll }

func (a ClickAction) DelaySeconds() float64    { return a.Delay }
func (WaitAction) DelaySeconds() float64       { return 0 }
func (a KeyPressAction) DelaySeconds() float64 { return a.Delay }
func (a ScrollAction) DelaySeconds() float64   { return a.Delay }

func (ClickAction) isAction()    {}
func (WaitAction) isAction()     {}
func (KeyPressAction) isAction() {}
func (ScrollAction) isAction()   {}

func (a ClickAction) Validate() error {
	if !a.Button.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidButton, a.Button)
	}
	if a.Delay < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrInvalidAction, a.Delay)
	}
	return nil
}

func (a WaitAction) Validate() error {
	if a.Seconds < 0 {
		return fmt.Errorf("%w: negative wait %v", ErrInvalidAction, a.Seconds)
	}
	return nil
}

func (a KeyPressAction) Validate() error {
	if a.Key == "" && a.MainKey == "" {
		return fmt.Errorf("%w: keypress without key", ErrInvalidAction)
	}
	if a.Delay < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrInvalidAction, a.Delay)
	}
	return nil
}

func (a ScrollAction) Validate() error {
	if a.Delay < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrInvalidAction, a.Delay)
	}
	return nil
}

// Chord splits a keypress into modifier names and main key.
// Explicit Modifiers/MainKey win over parsing Key.
func (a KeyPressAction) Chord() (mods []string, key string) {
	if a.MainKey != "" {
		return append([]string(nil), a.Modifiers...), a.MainKey
	}
	if !a.IsCombination {
		return nil, a.Key
	}
	parts := strings.Split(a.Key, "+")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// CloneActions returns a copy of actions safe to hand to another owner.
func CloneActions(actions []Action) []Action {
	out := make([]Action, len(actions))
	for i, a := range actions {
		if kp, ok := a.(KeyPressAction); ok {
			kp.Modifiers = append([]string(nil), kp.Modifiers...)
			a = kp
		}
		out[i] = a
	}
	return out
}
