package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const joinTimeout = 10 * time.Second

// writeTimeout bounds every write to the remote server.
var writeTimeout = 10 * time.Second

// RemoteSharer implements Sharer for remote WebSocket connection to signal server
type RemoteSharer struct {
	conn         *websocket.Conn
	connMu       sync.Mutex
	msgChan      chan []byte
	done         chan struct{}
	onDisconnect func()
	closed       bool
	closeMu      sync.Mutex
}

// DialRemote connects to a signal server at baseURL, joins room as its
// sharer and waits for the server to confirm.
func DialRemote(ctx context.Context, baseURL, room string) (*RemoteSharer, error) {
	wsURL, err := socketURL(baseURL, room)
	if err != nil {
		return nil, &Error{Op: "dial", Room: room, Err: err}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &Error{Op: "dial", Room: room, Err: err}
	}

	if err := conn.WriteJSON(SignalMessage{Type: TypeJoin, Role: RoleSharer, Room: room}); err != nil {
		conn.Close()
		return nil, &Error{Op: "join", Room: room, Err: err}
	}

	deadline := time.Now().Add(joinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	var reply SignalMessage
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, &Error{Op: "join", Room: room, Err: err}
	}
	conn.SetReadDeadline(time.Time{})

	if reply.Type != TypeJoined {
		conn.Close()
		return nil, &Error{Op: "join", Room: room, Err: fmt.Errorf("unexpected reply %q: %s", reply.Type, reply.Error)}
	}

	return NewRemoteSharer(conn), nil
}

// socketURL turns http(s)://host into ws(s)://host/ws/{room}.
func socketURL(baseURL, room string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported signal url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + room
	return u.String(), nil
}

// NewRemoteSharer creates a sharer for remote server mode
func NewRemoteSharer(conn *websocket.Conn) *RemoteSharer {
	rs := &RemoteSharer{
		conn:    conn,
		msgChan: make(chan []byte, 100),
		done:    make(chan struct{}),
	}
	go rs.readLoop()
	return rs
}

func (rs *RemoteSharer) readLoop() {
	defer func() {
		close(rs.msgChan)
		rs.closeMu.Lock()
		handler := rs.onDisconnect
		closed := rs.closed
		rs.closeMu.Unlock()
		if handler != nil && !closed {
			handler()
		}
	}()

	for {
		_, data, err := rs.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("remote sharer read")
			return
		}
		select {
		case rs.msgChan <- data:
		case <-rs.done:
			return
		}
	}
}

func (rs *RemoteSharer) write(msg SignalMessage) {
	rs.closeMu.Lock()
	closed := rs.closed
	rs.closeMu.Unlock()
	if closed {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	rs.connMu.Lock()
	defer rs.connMu.Unlock()
	rs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := rs.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", msg.Type).Msg("remote send failed")
	}
}

// SendToViewer sends a message to a specific viewer
func (rs *RemoteSharer) SendToViewer(peerID string, msg SignalMessage) {
	msg.PeerID = peerID
	rs.write(msg)
}

// SendToAllViewers sends to the room's viewer; the server does the routing
func (rs *RemoteSharer) SendToAllViewers(msg SignalMessage) {
	rs.write(msg)
}

// Messages returns channel of incoming raw messages
func (rs *RemoteSharer) Messages() <-chan []byte {
	return rs.msgChan
}

// SetDisconnectHandler sets callback for when connection is lost
func (rs *RemoteSharer) SetDisconnectHandler(handler func()) {
	rs.closeMu.Lock()
	rs.onDisconnect = handler
	rs.closeMu.Unlock()
}

// Close shuts down the sharer
func (rs *RemoteSharer) Close() {
	rs.closeMu.Lock()
	defer rs.closeMu.Unlock()
	if !rs.closed {
		rs.closed = true
		close(rs.done)
		rs.conn.Close()
	}
}
