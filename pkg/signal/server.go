// Package signal carries the signaling exchange between the host and the
// viewer of each room, either through an embedded server or a remote one.
package signal

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tomaslejdung/sharehost/pkg/device"
	"github.com/tomaslejdung/sharehost/pkg/roomid"
)

// Client represents a connected WebSocket client
type Client struct {
	conn       *websocket.Conn
	room       string
	role       string // "sharer" or "viewer"
	peerID     string // assigned peer ID for this viewer
	meta       device.Metadata
	remoteAddr string
	send       chan []byte
	server     *Server

	sendMu sync.Mutex
	closed bool
}

// deliver queues data without blocking. It reports whether data was queued.
func (c *Client) deliver(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) deliverMsg(msg SignalMessage) bool {
	data, _ := json.Marshal(msg)
	return c.deliver(data)
}

// closeSend closes the outbound queue once. For socket clients this ends
// writePump, which closes the connection.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

// Room holds the sharer and the single viewer of a room
type Room struct {
	code   string
	sharer *Client
	viewer *Client
	mu     sync.RWMutex
}

// Server manages WebSocket connections and room routing
type Server struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// NewServer creates a new signaling server
func NewServer() *Server {
	return &Server{
		rooms: make(map[string]*Room),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // viewers are served from other origins
			},
		},
	}
}

// getOrCreateRoom returns existing room or creates new one
func (s *Server) getOrCreateRoom(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = roomid.Normalize(code)
	if room, exists := s.rooms[code]; exists {
		return room
	}

	room := &Room{code: code}
	s.rooms[code] = room
	return room
}

func (s *Server) getRoom(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomid.Normalize(code)]
	return room, ok
}

// removeClient removes a client from its room
func (s *Server) removeClient(client *Client) {
	defer client.closeSend()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[client.room]
	if !exists {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch {
	case room.sharer == client:
		room.sharer = nil
		// The room ends with its sharer.
		if room.viewer != nil {
			room.viewer.deliverMsg(SignalMessage{Type: TypeError, Error: "Sharer disconnected"})
			room.viewer.closeSend()
			room.viewer = nil
		}
		log.Info().Str("module", "signal").Str("room", room.code).Msg("sharer left")
	case room.viewer == client:
		room.viewer = nil
		if room.sharer != nil {
			room.sharer.deliverMsg(SignalMessage{Type: TypeViewerLeft, PeerID: client.peerID})
		}
		log.Info().Str("module", "signal").Str("room", room.code).Str("peer", client.peerID).Msg("viewer left")
	}

	// Clean up empty rooms
	if room.sharer == nil && room.viewer == nil {
		delete(s.rooms, client.room)
	}
}

// HandleWebSocket handles WebSocket connections for signaling
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Extract room code from URL path: /ws/{room-code}
	path := strings.TrimPrefix(r.URL.Path, "/ws/")
	roomCode := roomid.Normalize(path)

	if roomCode == "" || !roomid.Validate(roomCode) {
		http.Error(w, "Invalid room code", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		conn:       conn,
		room:       roomCode,
		remoteAddr: clientIP(r),
		send:       make(chan []byte, 256),
		server:     s,
	}

	go client.writePump()
	go client.readPump()
}

// Handler returns the signaling HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.HandleWebSocket)
	return mux
}

// StartServer starts the signaling HTTP server
func (s *Server) StartServer(addr string) error {
	log.Info().Str("module", "signal").Str("addr", addr).Msg("signal server starting")
	return http.ListenAndServe(addr, s.Handler())
}

// RoomCount returns the number of open rooms.
func (s *Server) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// HasViewer reports whether a viewer has joined the room.
func (s *Server) HasViewer(roomCode string) bool {
	room, ok := s.getRoom(roomCode)
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.viewer != nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocalSharer provides an interface for local (in-process) sharing
// It registers as the sharer for a room and provides methods to interact with the viewer
type LocalSharer struct {
	server   *Server
	room     *Room
	client   *Client
	roomCode string
}

// RegisterLocalSharer creates a local sharer for a room
// This is used when the signal server runs embedded in the sharer process
func (s *Server) RegisterLocalSharer(roomCode string) *LocalSharer {
	roomCode = roomid.Normalize(roomCode)
	room := s.getOrCreateRoom(roomCode)

	sharerClient := &Client{
		room:   roomCode,
		role:   RoleSharer,
		send:   make(chan []byte, 256),
		server: s,
	}

	room.mu.Lock()
	if old := room.sharer; old != nil {
		old.closeSend()
	}
	room.sharer = sharerClient
	room.mu.Unlock()

	return &LocalSharer{
		server:   s,
		room:     room,
		client:   sharerClient,
		roomCode: roomCode,
	}
}

// Messages returns a channel that receives messages from the viewer
func (ls *LocalSharer) Messages() <-chan []byte {
	return ls.client.send
}

// SendToViewer sends a message to the viewer if it has the given peerID
func (ls *LocalSharer) SendToViewer(peerID string, msg SignalMessage) {
	ls.room.mu.RLock()
	viewer := ls.room.viewer
	ls.room.mu.RUnlock()

	if viewer == nil || viewer.peerID != peerID {
		return
	}
	msg.PeerID = peerID
	ls.client.relay(ls.room, msg)
}

// SendToAllViewers broadcasts a message to the viewer of the room
func (ls *LocalSharer) SendToAllViewers(msg SignalMessage) {
	ls.client.relay(ls.room, msg)
}

// SetDisconnectHandler is a no-op: the embedded server cannot drop its own sharer.
func (ls *LocalSharer) SetDisconnectHandler(func()) {}

// Close unregisters the sharer and ends the room.
func (ls *LocalSharer) Close() {
	ls.server.removeClient(ls.client)
}
