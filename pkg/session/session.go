// Package session models a single peer relationship of the sharing host.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tomaslejdung/sharehost/pkg/device"
)

var (
	// ErrInvalidTransition is returned for status changes that move backward.
	ErrInvalidTransition = errors.New("invalid session status transition")
	// ErrDestroyed is returned when a destroyed session is used again.
	ErrDestroyed = errors.New("session destroyed")
)

// Status is the lifecycle state of a session.
type Status int

const (
	NotConnected Status = iota
	Connected
	Sharing
	Destroyed
)

func (s Status) String() string {
	switch s {
	case NotConnected:
		return "NOT_CONNECTED"
	case Connected:
		return "CONNECTED"
	case Sharing:
		return "SHARING"
	case Destroyed:
		return "DESTROYED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PeerHandler receives transport events for one room.
type PeerHandler interface {
	PeerConnected(dev device.Device)
	PeerDisconnected(deviceID string)
	TransportFailed(err error)
}

// Signaler drives signaling and transport for sessions. Implementations must
// not invoke the PeerHandler from inside these methods.
type Signaler interface {
	Prepare(ctx context.Context, room string, h PeerHandler) error
	CallPeer(room, sourceID string)
	DisconnectPeer(room string)
	LanguageChanged(room, lang string)
	Release(room string)
}

// Info is a read-only view of a session.
type Info struct {
	ID               string `json:"id"`
	Status           Status `json:"status"`
	CapturedSourceID string `json:"capturedSourceId,omitempty"`
	DeviceID         string `json:"deviceId,omitempty"`
}

// Session is one room and the peer paired with it.
type Session struct {
	id       string
	signaler Signaler

	mu                 sync.Mutex
	status             Status
	capturedSourceID   string
	deviceID           string
	disconnected       bool
	onDeviceConnected  func(device.Device)
	onPeerDisconnected func(deviceID string)
	onTransportFailed  func(error)
}

// New creates a session for room id in NOT_CONNECTED.
func New(id string, signaler Signaler) *Session {
	return &Session{id: id, signaler: signaler, status: NotConnected}
}

// ID returns the room identifier.
func (s *Session) ID() string { return s.id }

// Open stands up signaling resources for the room.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.status == Destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.mu.Unlock()

	if err := s.signaler.Prepare(ctx, s.id, s); err != nil {
		return fmt.Errorf("prepare room %s: %w", s.id, err)
	}
	return nil
}

// SetOnDeviceConnectedCallback registers the handshake callback, replacing any previous one.
func (s *Session) SetOnDeviceConnectedCallback(cb func(device.Device)) {
	s.mu.Lock()
	s.onDeviceConnected = cb
	s.mu.Unlock()
}

// SetOnPeerDisconnectedCallback registers the remote-drop callback.
func (s *Session) SetOnPeerDisconnectedCallback(cb func(deviceID string)) {
	s.mu.Lock()
	s.onPeerDisconnected = cb
	s.mu.Unlock()
}

// SetOnTransportFailedCallback registers the transport failure callback.
func (s *Session) SetOnTransportFailedCallback(cb func(error)) {
	s.mu.Lock()
	s.onTransportFailed = cb
	s.mu.Unlock()
}

// PeerConnected implements PeerHandler.
func (s *Session) PeerConnected(dev device.Device) {
	s.mu.Lock()
	cb := s.onDeviceConnected
	alive := s.status != Destroyed
	s.mu.Unlock()

	if !alive || cb == nil {
		log.Debug().Str("module", "session").Str("room", s.id).Str("device", dev.ID).Msg("handshake ignored")
		return
	}
	cb(dev)
}

// PeerDisconnected implements PeerHandler.
func (s *Session) PeerDisconnected(deviceID string) {
	s.mu.Lock()
	cb := s.onPeerDisconnected
	alive := s.status != Destroyed
	s.mu.Unlock()

	if alive && cb != nil {
		cb(deviceID)
	}
}

// TransportFailed implements PeerHandler.
func (s *Session) TransportFailed(err error) {
	s.mu.Lock()
	cb := s.onTransportFailed
	alive := s.status != Destroyed
	s.mu.Unlock()

	log.Warn().Err(err).Str("module", "session").Str("room", s.id).Msg("transport failed")
	if alive && cb != nil {
		cb(err)
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus moves the session forward. It has no side effects.
func (s *Session) SetStatus(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.status == Destroyed:
		return ErrDestroyed
	case next == s.status:
		return nil
	case next < s.status || next == Destroyed:
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.status, next)
	}
	s.status = next
	return nil
}

// SetCapturedSourceID binds the session to a capture source.
func (s *Session) SetCapturedSourceID(id string) {
	s.mu.Lock()
	s.capturedSourceID = id
	s.mu.Unlock()
}

// CapturedSourceID returns the bound capture source, or "".
func (s *Session) CapturedSourceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturedSourceID
}

// SetDeviceID records the device paired with the session.
func (s *Session) SetDeviceID(id string) {
	s.mu.Lock()
	s.deviceID = id
	s.mu.Unlock()
}

// DeviceID returns the paired device, or "".
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// CallPeer asks the signaler to connect the paired peer to the bound source.
// Failures are reported through TransportFailed.
func (s *Session) CallPeer() {
	s.mu.Lock()
	if s.status == Destroyed {
		s.mu.Unlock()
		return
	}
	source := s.capturedSourceID
	s.mu.Unlock()

	s.signaler.CallPeer(s.id, source)
}

// DisconnectByHostMachineUser tells the remote peer to hang up. Safe to call repeatedly.
func (s *Session) DisconnectByHostMachineUser() {
	s.mu.Lock()
	if s.disconnected || s.status == Destroyed {
		s.mu.Unlock()
		return
	}
	s.disconnected = true
	s.mu.Unlock()

	s.signaler.DisconnectPeer(s.id)
}

// Destroy releases the signaling resources and callbacks. Safe to call repeatedly.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.status == Destroyed {
		s.mu.Unlock()
		return
	}
	s.status = Destroyed
	s.onDeviceConnected = nil
	s.onPeerDisconnected = nil
	s.onTransportFailed = nil
	s.mu.Unlock()

	s.signaler.Release(s.id)
	log.Debug().Str("module", "session").Str("room", s.id).Msg("session destroyed")
}

// AppLanguageChanged forwards a locale change to the peer.
func (s *Session) AppLanguageChanged(lang string) {
	if s.Status() == Destroyed {
		return
	}
	s.signaler.LanguageChanged(s.id, lang)
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:               s.id,
		Status:           s.status,
		CapturedSourceID: s.capturedSourceID,
		DeviceID:         s.deviceID,
	}
}
