package signal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tomaslejdung/sharehost/pkg/device"
	"github.com/tomaslejdung/sharehost/pkg/session"
)

const offerTimeout = 30 * time.Second

// PeerCaller negotiates the media connection with a viewer.
type PeerCaller interface {
	Offer(ctx context.Context, peerID, trackID string) (string, error)
	HandleAnswer(peerID, sdp string) error
	AddICECandidate(peerID, candidate string) error
	Hangup(peerID string)
	SetICECallback(cb func(peerID, candidate string))
	SetConnectionCallbacks(onConnected func(peerID string), onFailed func(peerID string, err error))
}

// HostConfig selects where rooms are hosted.
type HostConfig struct {
	// Server hosts rooms in process. When nil, RemoteURL is dialed per room.
	Server    *Server
	RemoteURL string
	Peers     PeerCaller
}

type hostRoom struct {
	code    string
	sharer  Sharer
	handler session.PeerHandler
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	peerID string
}

func (r *hostRoom) viewer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerID
}

// Host implements session.Signaler on top of the signaling server and a
// PeerCaller. Handler callbacks always run on room goroutines.
type Host struct {
	cfg HostConfig

	mu    sync.Mutex
	rooms map[string]*hostRoom
	peers map[string]*hostRoom // peerID -> room
}

// NewHost creates a host and takes over the PeerCaller callbacks.
func NewHost(cfg HostConfig) *Host {
	h := &Host{
		cfg:   cfg,
		rooms: make(map[string]*hostRoom),
		peers: make(map[string]*hostRoom),
	}
	cfg.Peers.SetICECallback(h.onLocalCandidate)
	cfg.Peers.SetConnectionCallbacks(func(peerID string) {
		log.Info().Str("module", "signal").Str("peer", peerID).Msg("peer transport connected")
	}, h.onPeerFailed)
	return h
}

// Prepare opens the room for a viewer and starts relaying its messages to h.
func (h *Host) Prepare(ctx context.Context, room string, handler session.PeerHandler) error {
	var sharer Sharer
	if h.cfg.Server != nil {
		sharer = h.cfg.Server.RegisterLocalSharer(room)
	} else {
		remote, err := DialRemote(ctx, h.cfg.RemoteURL, room)
		if err != nil {
			return err
		}
		sharer = remote
	}

	roomCtx, cancel := context.WithCancel(context.Background())
	hr := &hostRoom{code: room, sharer: sharer, handler: handler, ctx: roomCtx, cancel: cancel}
	sharer.SetDisconnectHandler(func() {
		handler.TransportFailed(&Error{Op: "signal", Room: room, Err: ErrSignalLost})
	})

	h.mu.Lock()
	if old, ok := h.rooms[room]; ok {
		h.closeRoomLocked(old)
	}
	h.rooms[room] = hr
	h.mu.Unlock()

	go h.pump(hr)
	log.Debug().Str("module", "signal").Str("room", room).Msg("room prepared")
	return nil
}

func (h *Host) pump(hr *hostRoom) {
	for data := range hr.sharer.Messages() {
		var msg SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("invalid message format")
			continue
		}
		h.dispatch(hr, msg)
	}
}

func (h *Host) dispatch(hr *hostRoom, msg SignalMessage) {
	// Buffered messages of a released room are dropped.
	if hr.ctx.Err() != nil {
		return
	}
	switch msg.Type {
	case TypeViewerJoined:
		var meta device.Metadata
		if msg.Device != nil {
			meta = *msg.Device
		}
		hr.mu.Lock()
		hr.peerID = msg.PeerID
		hr.mu.Unlock()
		h.mu.Lock()
		h.peers[msg.PeerID] = hr
		h.mu.Unlock()
		hr.handler.PeerConnected(device.Device{ID: msg.PeerID, Metadata: meta})

	case TypeViewerLeft:
		hr.mu.Lock()
		current := hr.peerID == msg.PeerID
		if current {
			hr.peerID = ""
		}
		hr.mu.Unlock()
		if !current {
			return
		}
		h.forgetPeer(msg.PeerID)
		hr.handler.PeerDisconnected(msg.PeerID)

	case TypeAnswer:
		if err := h.cfg.Peers.HandleAnswer(msg.PeerID, msg.SDP); err != nil {
			hr.handler.TransportFailed(&Error{Op: "answer", Room: hr.code, Err: err})
		}

	case TypeICE:
		if err := h.cfg.Peers.AddICECandidate(msg.PeerID, msg.Candidate); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("room", hr.code).Msg("remote candidate rejected")
		}

	case TypeJoined:

	case TypeError:
		log.Warn().Str("module", "signal").Str("room", hr.code).Str("error", msg.Error).Msg("signal server error")

	default:
		log.Debug().Str("module", "signal").Str("type", msg.Type).Msg("unhandled message type")
	}
}

func (h *Host) forgetPeer(peerID string) {
	h.cfg.Peers.Hangup(peerID)
	h.mu.Lock()
	delete(h.peers, peerID)
	h.mu.Unlock()
}

func (h *Host) room(code string) (*hostRoom, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hr, ok := h.rooms[code]
	return hr, ok
}

func (h *Host) onLocalCandidate(peerID, candidate string) {
	h.mu.Lock()
	hr, ok := h.peers[peerID]
	h.mu.Unlock()
	if ok {
		hr.sharer.SendToViewer(peerID, SignalMessage{Type: TypeICE, Candidate: candidate})
	}
}

func (h *Host) onPeerFailed(peerID string, err error) {
	h.mu.Lock()
	hr, ok := h.peers[peerID]
	h.mu.Unlock()
	if ok {
		hr.handler.TransportFailed(&Error{Op: "transport", Room: hr.code, Err: err})
	}
}

// CallPeer sends the viewer an offer carrying sourceID. It returns at once.
func (h *Host) CallPeer(room, sourceID string) {
	hr, ok := h.room(room)
	if !ok {
		return
	}
	go func() {
		peerID := hr.viewer()
		if peerID == "" {
			hr.handler.TransportFailed(&Error{Op: "call", Room: room, Err: ErrNoViewer})
			return
		}

		ctx, cancel := context.WithTimeout(hr.ctx, offerTimeout)
		defer cancel()
		sdp, err := h.cfg.Peers.Offer(ctx, peerID, sourceID)
		if err != nil {
			if hr.ctx.Err() == nil {
				hr.handler.TransportFailed(&Error{Op: "call", Room: room, Err: err})
			}
			return
		}
		if hr.ctx.Err() != nil {
			h.cfg.Peers.Hangup(peerID)
			return
		}
		hr.sharer.SendToViewer(peerID, SignalMessage{Type: TypeOffer, SDP: sdp, TrackID: sourceID})
		log.Info().Str("module", "signal").Str("room", room).Str("peer", peerID).Msg("offer sent")
	}()
}

// DisconnectPeer tells the viewer the host ended the session.
func (h *Host) DisconnectPeer(room string) {
	hr, ok := h.room(room)
	if !ok {
		return
	}
	hr.mu.Lock()
	peerID := hr.peerID
	hr.peerID = ""
	hr.mu.Unlock()
	if peerID == "" {
		return
	}
	hr.sharer.SendToViewer(peerID, SignalMessage{Type: TypeHostDisconnected})
	h.forgetPeer(peerID)
}

// LanguageChanged forwards the host language to the viewer.
func (h *Host) LanguageChanged(room, lang string) {
	if hr, ok := h.room(room); ok {
		hr.sharer.SendToAllViewers(SignalMessage{Type: TypeLanguageChanged, Lang: lang})
	}
}

// Release closes the room. It does not wait for the room goroutine.
func (h *Host) Release(room string) {
	h.mu.Lock()
	hr, ok := h.rooms[room]
	if ok {
		h.closeRoomLocked(hr)
	}
	h.mu.Unlock()
}

func (h *Host) closeRoomLocked(hr *hostRoom) {
	delete(h.rooms, hr.code)
	hr.cancel()
	if peerID := hr.viewer(); peerID != "" {
		delete(h.peers, peerID)
		h.cfg.Peers.Hangup(peerID)
	}
	hr.sharer.Close()
	log.Debug().Str("module", "signal").Str("room", hr.code).Msg("room released")
}

// Close releases every room.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, hr := range h.rooms {
		h.closeRoomLocked(hr)
	}
}
