package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomaslejdung/sharehost/pkg/device"
	"github.com/tomaslejdung/sharehost/pkg/session"
	"github.com/tomaslejdung/sharehost/pkg/session/sessiontest"
)

func openSession(t *testing.T) (*session.Session, *sessiontest.Signaler) {
	t.Helper()
	sig := sessiontest.New()
	s := session.New("CALM-RIVER-07", sig)
	require.NoError(t, s.Open(context.Background()))
	return s, sig
}

func TestNewSessionIsNotConnected(t *testing.T) {
	s, sig := openSession(t)
	assert.Equal(t, session.NotConnected, s.Status())
	assert.Equal(t, "CALM-RIVER-07", s.ID())
	assert.Equal(t, 1, sig.Count("prepare", "CALM-RIVER-07"))
}

func TestOpenFailureIsWrapped(t *testing.T) {
	sig := sessiontest.New()
	boom := errors.New("signal server unreachable")
	sig.PrepareFunc = func(context.Context, string) error { return boom }

	s := session.New("CALM-RIVER-07", sig)
	err := s.Open(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestStatusMovesForwardOnly(t *testing.T) {
	s, _ := openSession(t)

	require.NoError(t, s.SetStatus(session.Connected))
	require.NoError(t, s.SetStatus(session.Connected))
	require.NoError(t, s.SetStatus(session.Sharing))

	err := s.SetStatus(session.Connected)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.Equal(t, session.Sharing, s.Status())

	assert.ErrorIs(t, s.SetStatus(session.Destroyed), session.ErrInvalidTransition)
}

func TestStatusSkipForwardAllowed(t *testing.T) {
	s, _ := openSession(t)
	require.NoError(t, s.SetStatus(session.Sharing))
	assert.Equal(t, session.Sharing, s.Status())
}

func TestDeviceConnectedCallbackFiresPerHandshake(t *testing.T) {
	s, sig := openSession(t)

	var got []string
	s.SetOnDeviceConnectedCallback(func(d device.Device) { got = append(got, d.ID) })

	require.True(t, sig.Connect(s.ID(), device.Device{ID: "D1"}))
	assert.Equal(t, []string{"D1"}, got)
}

func TestCallbacksDroppedAfterDestroy(t *testing.T) {
	s, sig := openSession(t)

	fired := false
	s.SetOnDeviceConnectedCallback(func(device.Device) { fired = true })
	s.SetOnPeerDisconnectedCallback(func(string) { fired = true })
	s.SetOnTransportFailedCallback(func(error) { fired = true })
	s.Destroy()

	sig.Connect(s.ID(), device.Device{ID: "D1"})
	sig.Drop(s.ID(), "D1")
	s.TransportFailed(errors.New("ice failed"))
	assert.False(t, fired)
}

func TestDestroyIsIdempotent(t *testing.T) {
	s, sig := openSession(t)
	s.Destroy()
	s.Destroy()

	assert.Equal(t, session.Destroyed, s.Status())
	assert.Equal(t, 1, sig.Count("release", s.ID()))
	assert.ErrorIs(t, s.SetStatus(session.Sharing), session.ErrDestroyed)
	assert.ErrorIs(t, s.Open(context.Background()), session.ErrDestroyed)
}

func TestDisconnectByHostMachineUserIsIdempotent(t *testing.T) {
	s, sig := openSession(t)
	s.DisconnectByHostMachineUser()
	s.DisconnectByHostMachineUser()
	assert.Equal(t, 1, sig.Count("disconnect", s.ID()))

	s.Destroy()
	s.DisconnectByHostMachineUser()
	assert.Equal(t, 1, sig.Count("disconnect", s.ID()))
}

func TestCallPeerUsesBoundSource(t *testing.T) {
	s, sig := openSession(t)
	s.SetCapturedSourceID("src-42")
	s.CallPeer()

	calls := sig.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, sessiontest.Call{Op: "call", Room: s.ID(), Arg: "src-42"}, calls[1])

	s.Destroy()
	s.CallPeer()
	assert.Equal(t, 1, sig.Count("call", s.ID()))
}

func TestAppLanguageChanged(t *testing.T) {
	s, sig := openSession(t)
	require.NoError(t, s.SetStatus(session.Connected))

	s.AppLanguageChanged("de")
	assert.Equal(t, 1, sig.Count("language", s.ID()))
	assert.Equal(t, session.Connected, s.Status())
}

func TestInfoSnapshot(t *testing.T) {
	s, _ := openSession(t)
	s.SetCapturedSourceID("src-42")
	s.SetDeviceID("D1")

	assert.Equal(t, session.Info{
		ID:               "CALM-RIVER-07",
		Status:           session.NotConnected,
		CapturedSourceID: "src-42",
		DeviceID:         "D1",
	}, s.Info())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "SHARING", session.Sharing.String())
	b, err := session.Destroyed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "DESTROYED", string(b))
}
