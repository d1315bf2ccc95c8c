package connect

import "errors"

var (
	// ErrDeviceNotFound indicates no known device matches the caller's
	// selection criteria.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrConnectFailed indicates the control connection handshake to a
	// device failed. The device stays undiscovered until the next
	// discovery event.
	ErrConnectFailed = errors.New("connect failed")

	// ErrIndexOutOfRange indicates a track position beyond the tracked
	// queue bounds.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrEmptyQueue indicates a queue load with no tracks to play.
	ErrEmptyQueue = errors.New("empty queue")

	// ErrSessionClosed indicates a command was issued on a session whose
	// transport is gone.
	ErrSessionClosed = errors.New("session closed")
)
