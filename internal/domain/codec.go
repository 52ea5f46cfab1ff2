package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MarshalAction encodes a single action as a JSON object carrying its "type".
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode %s action: %w", a.Type(), err)
	}
	return sjson.SetBytes(raw, "type", string(a.Type()))
}

// MarshalActions encodes actions as a JSON array in order.
func MarshalActions(actions []Action) ([]byte, error) {
	out := []byte("[]")
	for i, a := range actions {
		raw, err := MarshalAction(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		if out, err = sjson.SetRawBytes(out, "-1", raw); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return out, nil
}

// UnmarshalAction decodes one action, dispatching on its "type" field.
// Unknown fields are ignored; unknown types and invalid values are rejected.
func UnmarshalAction(raw []byte) (Action, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidAction)
	}
	t := gjson.GetBytes(raw, "type")
	if !t.Exists() {
		return nil, fmt.Errorf("%w: missing type", ErrUnknownActionType)
	}

	var (
		action Action
		err    error
	)
	switch ActionType(t.String()) {
	case ActionClick:
		var a ClickAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ActionWait:
		var a WaitAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ActionKeyPress:
		var a KeyPressAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ActionScroll:
		var a ScrollAction
		err = json.Unmarshal(raw, &a)
		action = a
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t.String())
	}
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidAction, typeErr.Field, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// UnmarshalActions decodes a JSON array of actions.
func UnmarshalActions(data []byte) ([]Action, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidAction)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of actions", ErrInvalidAction)
	}

	var (
		actions []Action
		decErr  error
	)
	i := 0
	root.ForEach(func(_, v gjson.Result) bool {
		a, err := UnmarshalAction([]byte(v.Raw))
		if err != nil {
			decErr = fmt.Errorf("action %d: %w", i, err)
			return false
		}
		actions = append(actions, a)
		i++
		return true
	})
	if decErr != nil {
		return nil, decErr
	}
	return actions, nil
}
