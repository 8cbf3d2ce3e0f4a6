package signal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomaslejdung/sharehost/pkg/device"
)

const testRoom = "CALM-RIVER-07"

type fakeCaller struct {
	mu      sync.Mutex
	onICE   func(peerID, candidate string)
	answers chan string
	hangups chan string
	offerFn func(ctx context.Context, peerID, trackID string) (string, error)
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{answers: make(chan string, 8), hangups: make(chan string, 8)}
}

func (f *fakeCaller) Offer(ctx context.Context, peerID, trackID string) (string, error) {
	if f.offerFn != nil {
		return f.offerFn(ctx, peerID, trackID)
	}
	return "offer-sdp-" + trackID, nil
}

func (f *fakeCaller) HandleAnswer(peerID, sdp string) error {
	f.answers <- peerID + ":" + sdp
	return nil
}

func (f *fakeCaller) AddICECandidate(string, string) error { return nil }

func (f *fakeCaller) Hangup(peerID string) {
	select {
	case f.hangups <- peerID:
	default:
	}
}

func (f *fakeCaller) SetICECallback(cb func(peerID, candidate string)) {
	f.mu.Lock()
	f.onICE = cb
	f.mu.Unlock()
}

func (f *fakeCaller) SetConnectionCallbacks(func(string), func(string, error)) {}

func (f *fakeCaller) emitICE(peerID, candidate string) {
	f.mu.Lock()
	cb := f.onICE
	f.mu.Unlock()
	cb(peerID, candidate)
}

type recorder struct {
	connected    chan device.Device
	disconnected chan string
	failed       chan error
}

func newRecorder() *recorder {
	return &recorder{
		connected:    make(chan device.Device, 8),
		disconnected: make(chan string, 8),
		failed:       make(chan error, 8),
	}
}

func (r *recorder) PeerConnected(d device.Device) { r.connected <- d }
func (r *recorder) PeerDisconnected(id string)    { r.disconnected <- id }
func (r *recorder) TransportFailed(err error)     { r.failed <- err }

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

func wsURL(ts *httptest.Server, room string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + room
}

func dial(t *testing.T, ts *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, room), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) SignalMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg SignalMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func joinViewer(t *testing.T, ts *httptest.Server, room string) (*websocket.Conn, SignalMessage) {
	t.Helper()
	conn := dial(t, ts, strings.ToLower(room))
	require.NoError(t, conn.WriteJSON(SignalMessage{
		Type:   TypeJoin,
		Role:   RoleViewer,
		Device: &device.Metadata{OS: "Android", Browser: "Chrome"},
	}))
	return conn, read(t, conn)
}

func TestHostLocalLifecycle(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	fc := newFakeCaller()
	host := NewHost(HostConfig{Server: srv, Peers: fc})
	rec := newRecorder()
	require.NoError(t, host.Prepare(context.Background(), testRoom, rec))

	viewer, joined := joinViewer(t, ts, testRoom)
	require.Equal(t, TypeJoined, joined.Type)
	require.NotEmpty(t, joined.PeerID)

	dev := receive(t, rec.connected)
	assert.Equal(t, joined.PeerID, dev.ID)
	assert.Equal(t, "Android", dev.Metadata.OS)
	assert.Equal(t, "127.0.0.1", dev.Metadata.IP)

	host.CallPeer(testRoom, "window:42")
	offer := read(t, viewer)
	assert.Equal(t, TypeOffer, offer.Type)
	assert.Equal(t, "offer-sdp-window:42", offer.SDP)
	assert.Equal(t, "window:42", offer.TrackID)

	require.NoError(t, viewer.WriteJSON(SignalMessage{Type: TypeAnswer, SDP: "answer-sdp"}))
	assert.Equal(t, joined.PeerID+":answer-sdp", receive(t, fc.answers))

	fc.emitICE(joined.PeerID, `{"candidate":"c1"}`)
	ice := read(t, viewer)
	assert.Equal(t, TypeICE, ice.Type)
	assert.Equal(t, `{"candidate":"c1"}`, ice.Candidate)

	host.LanguageChanged(testRoom, "de")
	lang := read(t, viewer)
	assert.Equal(t, TypeLanguageChanged, lang.Type)
	assert.Equal(t, "de", lang.Lang)

	host.DisconnectPeer(testRoom)
	assert.Equal(t, TypeHostDisconnected, read(t, viewer).Type)
	assert.Equal(t, joined.PeerID, receive(t, fc.hangups))
	viewer.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := viewer.ReadMessage()
	assert.Error(t, err)
	assert.False(t, srv.HasViewer(testRoom))

	host.Release(testRoom)
	host.Release(testRoom)
	assert.Eventually(t, func() bool { return srv.RoomCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestViewerLeftReachesHandler(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	host := NewHost(HostConfig{Server: srv, Peers: newFakeCaller()})
	rec := newRecorder()
	require.NoError(t, host.Prepare(context.Background(), testRoom, rec))

	viewer, joined := joinViewer(t, ts, testRoom)
	receive(t, rec.connected)

	viewer.Close()
	assert.Equal(t, joined.PeerID, receive(t, rec.disconnected))
}

func TestRoomHoldsOneViewer(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	host := NewHost(HostConfig{Server: srv, Peers: newFakeCaller()})
	require.NoError(t, host.Prepare(context.Background(), testRoom, newRecorder()))

	_, first := joinViewer(t, ts, testRoom)
	require.Equal(t, TypeJoined, first.Type)

	_, second := joinViewer(t, ts, testRoom)
	assert.Equal(t, TypeError, second.Type)
	assert.Equal(t, "Room is full", second.Error)
}

func TestViewerUnknownRoom(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, reply := joinViewer(t, ts, "LAZY-FROG-01")
	assert.Equal(t, TypeError, reply.Type)
	assert.Equal(t, "Room not found", reply.Error)
	assert.Equal(t, 0, srv.RoomCount())
}

func TestInvalidRoomCodeRejected(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReleaseEndsViewer(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	host := NewHost(HostConfig{Server: srv, Peers: newFakeCaller()})
	require.NoError(t, host.Prepare(context.Background(), testRoom, newRecorder()))
	viewer, _ := joinViewer(t, ts, testRoom)

	host.Release(testRoom)
	msg := read(t, viewer)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "Sharer disconnected", msg.Error)
}

func TestCallPeerWithoutViewer(t *testing.T) {
	srv := NewServer()
	host := NewHost(HostConfig{Server: srv, Peers: newFakeCaller()})
	rec := newRecorder()
	require.NoError(t, host.Prepare(context.Background(), testRoom, rec))

	host.CallPeer(testRoom, "window:42")
	assert.ErrorIs(t, receive(t, rec.failed), ErrNoViewer)

	// Unknown rooms are ignored.
	host.CallPeer("LAZY-FROG-01", "window:42")
	host.DisconnectPeer("LAZY-FROG-01")
	host.LanguageChanged("LAZY-FROG-01", "de")
}

func TestCallPeerOfferFailure(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	fc := newFakeCaller()
	fc.offerFn = func(context.Context, string, string) (string, error) {
		return "", fmt.Errorf("ice gathering failed")
	}
	host := NewHost(HostConfig{Server: srv, Peers: fc})
	rec := newRecorder()
	require.NoError(t, host.Prepare(context.Background(), testRoom, rec))
	joinViewer(t, ts, testRoom)
	receive(t, rec.connected)

	host.CallPeer(testRoom, "window:42")
	err := receive(t, rec.failed)
	var sigErr *Error
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, "call", sigErr.Op)
	assert.Equal(t, testRoom, sigErr.Room)
}

func TestHostRemoteMode(t *testing.T) {
	remote := NewServer()
	ts := httptest.NewServer(remote.Handler())
	defer ts.Close()

	host := NewHost(HostConfig{RemoteURL: ts.URL, Peers: newFakeCaller()})
	rec := newRecorder()
	require.NoError(t, host.Prepare(context.Background(), testRoom, rec))

	viewer, joined := joinViewer(t, ts, testRoom)
	require.Equal(t, TypeJoined, joined.Type)
	assert.Equal(t, joined.PeerID, receive(t, rec.connected).ID)

	host.CallPeer(testRoom, "screen:1")
	offer := read(t, viewer)
	assert.Equal(t, TypeOffer, offer.Type)
	assert.Equal(t, "screen:1", offer.TrackID)

	host.Release(testRoom)
	assert.Equal(t, "Sharer disconnected", read(t, viewer).Error)

	select {
	case err := <-rec.failed:
		t.Fatalf("released room reported failure: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHostRemoteUnreachable(t *testing.T) {
	host := NewHost(HostConfig{RemoteURL: "http://127.0.0.1:1", Peers: newFakeCaller()})
	err := host.Prepare(context.Background(), testRoom, newRecorder())

	var sigErr *Error
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, "dial", sigErr.Op)
}

func TestSocketURL(t *testing.T) {
	u, err := socketURL("https://signal.example.com/", testRoom)
	require.NoError(t, err)
	assert.Equal(t, "wss://signal.example.com/ws/"+testRoom, u)

	u, err = socketURL("http://localhost:8080", testRoom)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/"+testRoom, u)

	_, err = socketURL("ftp://example.com", testRoom)
	assert.Error(t, err)
}

func TestJoinAfterReleaseIsDropped(t *testing.T) {
	srv := NewServer()
	host := NewHost(HostConfig{Server: srv, Peers: newFakeCaller()})
	rec := newRecorder()
	require.NoError(t, host.Prepare(context.Background(), testRoom, rec))

	hr, ok := host.room(testRoom)
	require.True(t, ok)
	host.Release(testRoom)

	host.dispatch(hr, SignalMessage{Type: TypeViewerJoined, PeerID: "p1"})

	host.mu.Lock()
	assert.Empty(t, host.peers)
	host.mu.Unlock()
	select {
	case d := <-rec.connected:
		t.Fatalf("released room reported %s", d.ID)
	default:
	}
}
