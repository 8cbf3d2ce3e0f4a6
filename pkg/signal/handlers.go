package signal

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tomaslejdung/sharehost/pkg/device"
)

// readPump reads messages from the WebSocket
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("module", "signal").Str("room", c.room).Msg("websocket read")
			}
			break
		}

		var msg SignalMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("invalid message format")
			continue
		}

		c.handleMessage(msg)
	}
}

// writePump sends messages to the WebSocket
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("websocket write")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// handleMessage processes incoming signaling messages
func (c *Client) handleMessage(msg SignalMessage) {
	if msg.Type == TypeJoin {
		c.handleJoin(msg)
		return
	}

	room, ok := c.server.getRoom(c.room)
	if !ok {
		c.deliverMsg(SignalMessage{Type: TypeError, Error: "Room not found"})
		return
	}

	switch msg.Type {
	case TypeOffer, TypeICE, TypeHostDisconnected, TypeLanguageChanged:
		if c.role == RoleSharer {
			c.relay(room, msg)
			return
		}
		if msg.Type == TypeICE {
			c.forwardToSharer(room, msg)
			return
		}
		log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("viewer sent sharer message")
	case TypeAnswer:
		c.forwardToSharer(room, msg)
	default:
		log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("unknown message type")
	}
}

// handleJoin processes a join request
func (c *Client) handleJoin(msg SignalMessage) {
	switch msg.Role {
	case RoleSharer:
		c.joinSharer()
	case RoleViewer:
		c.joinViewer(msg)
	default:
		c.deliverMsg(SignalMessage{Type: TypeError, Error: "Unknown role"})
	}
}

func (c *Client) joinSharer() {
	room := c.server.getOrCreateRoom(c.room)

	room.mu.Lock()
	defer room.mu.Unlock()

	c.role = RoleSharer
	if old := room.sharer; old != nil && old != c {
		// Sharer reconnecting
		log.Info().Str("module", "signal").Str("room", room.code).Msg("sharer reconnecting, closing old connection")
		old.closeSend()
	}
	room.sharer = c
	log.Info().Str("module", "signal").Str("room", room.code).Msg("sharer joined")

	c.deliverMsg(SignalMessage{Type: TypeJoined, Role: RoleSharer, Room: room.code})
	if room.viewer != nil {
		c.deliverMsg(viewerJoined(room.viewer))
	}
}

func (c *Client) joinViewer(msg SignalMessage) {
	room, ok := c.server.getRoom(c.room)
	if !ok {
		c.deliverMsg(SignalMessage{Type: TypeError, Error: "Room not found"})
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.sharer == nil {
		c.deliverMsg(SignalMessage{Type: TypeError, Error: "Room not found"})
		return
	}
	if room.viewer != nil && room.viewer != c {
		c.deliverMsg(SignalMessage{Type: TypeError, Error: "Room is full"})
		return
	}

	var meta device.Metadata
	if msg.Device != nil {
		meta = *msg.Device
	}
	if meta.IP == "" {
		meta.IP = c.remoteAddr
	}

	c.role = RoleViewer
	c.peerID = uuid.NewString()
	c.meta = meta
	room.viewer = c
	log.Info().Str("module", "signal").Str("room", room.code).Str("peer", c.peerID).Msg("viewer joined")

	c.deliverMsg(SignalMessage{Type: TypeJoined, Role: RoleViewer, Room: room.code, PeerID: c.peerID})
	room.sharer.deliverMsg(viewerJoined(c))
}

func viewerJoined(viewer *Client) SignalMessage {
	meta := viewer.meta
	return SignalMessage{Type: TypeViewerJoined, PeerID: viewer.peerID, Device: &meta}
}

// relay routes a sharer message to the viewer. If msg.PeerID is set, only a
// viewer with that id receives it. host-disconnected also ends the viewer.
func (c *Client) relay(room *Room, msg SignalMessage) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.sharer != c || room.viewer == nil {
		return
	}
	viewer := room.viewer
	if msg.PeerID != "" && viewer.peerID != msg.PeerID {
		return
	}
	viewer.deliverMsg(msg)

	if msg.Type == TypeHostDisconnected {
		room.viewer = nil
		viewer.closeSend()
		log.Info().Str("module", "signal").Str("room", room.code).Str("peer", viewer.peerID).Msg("viewer disconnected by host")
	}
}

// forwardToSharer sends a viewer message to the sharer, tagged with the viewer's peerID
func (c *Client) forwardToSharer(room *Room, msg SignalMessage) {
	room.mu.RLock()
	defer room.mu.RUnlock()

	if room.sharer == nil || room.viewer != c {
		return
	}
	msg.PeerID = c.peerID
	room.sharer.deliverMsg(msg)
}
