package domain

import "errors"

var (
	// ErrUnknownActionType is returned when decoding an action with an unrecognised type.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrInvalidButton is returned for mouse buttons outside left/right/middle.
	ErrInvalidButton = errors.New("invalid mouse button")

	// ErrInvalidAction is returned when an action carries unusable parameters.
	ErrInvalidAction = errors.New("invalid action")

	// ErrListenerClosed is returned when operating on a stopped listener.
	ErrListenerClosed = errors.New("listener closed")

	// ErrUnsupported is returned by OS adapters on builds without native input support.
	ErrUnsupported = errors.New("native input not supported in this build")

	// ErrInstanceRunning is returned when another live session owns the global hotkeys.
	ErrInstanceRunning = errors.New("another macroflow instance is running")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
)
