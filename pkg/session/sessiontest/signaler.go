// Package sessiontest provides an in-memory session.Signaler for tests.
package sessiontest

import (
	"context"
	"sync"

	"github.com/tomaslejdung/sharehost/pkg/device"
	"github.com/tomaslejdung/sharehost/pkg/session"
)

// Call is one recorded Signaler invocation.
type Call struct {
	Op   string
	Room string
	Arg  string
}

// Signaler records calls and lets tests play the remote peer.
type Signaler struct {
	// PrepareFunc, when set, runs inside Prepare before the handler is stored.
	PrepareFunc func(ctx context.Context, room string) error

	mu       sync.Mutex
	calls    []Call
	handlers map[string]session.PeerHandler
}

// New creates an empty fake.
func New() *Signaler {
	return &Signaler{handlers: make(map[string]session.PeerHandler)}
}

func (s *Signaler) record(op, room, arg string) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, Room: room, Arg: arg})
	s.mu.Unlock()
}

func (s *Signaler) Prepare(ctx context.Context, room string, h session.PeerHandler) error {
	s.record("prepare", room, "")
	if s.PrepareFunc != nil {
		if err := s.PrepareFunc(ctx, room); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.handlers[room] = h
	s.mu.Unlock()
	return nil
}

func (s *Signaler) CallPeer(room, sourceID string) { s.record("call", room, sourceID) }

func (s *Signaler) DisconnectPeer(room string) { s.record("disconnect", room, "") }

func (s *Signaler) LanguageChanged(room, lang string) { s.record("language", room, lang) }

func (s *Signaler) Release(room string) {
	s.record("release", room, "")
}

// Handler returns the handler registered for room. Released rooms keep
// their handler so tests can deliver late events.
func (s *Signaler) Handler(room string) (session.PeerHandler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[room]
	return h, ok
}

// Connect simulates a completed handshake. It reports false if the room was never prepared.
func (s *Signaler) Connect(room string, dev device.Device) bool {
	h, ok := s.Handler(room)
	if !ok {
		return false
	}
	h.PeerConnected(dev)
	return true
}

// Drop simulates the remote peer leaving.
func (s *Signaler) Drop(room, deviceID string) bool {
	h, ok := s.Handler(room)
	if !ok {
		return false
	}
	h.PeerDisconnected(deviceID)
	return true
}

// Calls returns a copy of the recorded calls.
func (s *Signaler) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many times op was called for room.
func (s *Signaler) Count(op, room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op && c.Room == room {
			n++
		}
	}
	return n
}
