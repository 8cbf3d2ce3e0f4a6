package signal

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when no host has prepared the room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrSignalLost is reported when the connection to the signal server drops.
	ErrSignalLost = errors.New("signal connection lost")
	// ErrNoViewer is reported when a call is placed before a viewer joined.
	ErrNoViewer = errors.New("no viewer in room")
)

// Error describes a failed signaling operation on a room.
type Error struct {
	Op   string
	Room string
	Err  error
}

func (e *Error) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Room, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
