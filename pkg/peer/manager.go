// Package peer negotiates the WebRTC connection offered to a paired viewer.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

// ErrPeerNotFound is returned for operations on an unknown peer id.
var ErrPeerNotFound = errors.New("peer not found")

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
	{URLs: []string{"stun:stun2.l.google.com:19302"}},
}

// ICEConfig holds ICE server configuration
type ICEConfig struct {
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	DisableSTUN bool
}

// Configuration builds the pion configuration for cfg.
func Configuration(cfg ICEConfig) webrtc.Configuration {
	iceServers := make([]webrtc.ICEServer, 0)

	if !cfg.ForceRelay && !cfg.DisableSTUN {
		iceServers = append(iceServers, defaultICEServers...)
	}

	if cfg.TURNServer != "" {
		turnServer := webrtc.ICEServer{
			URLs: []string{cfg.TURNServer},
		}
		if cfg.TURNUser != "" {
			turnServer.Username = cfg.TURNUser
			turnServer.Credential = cfg.TURNPass
			turnServer.CredentialType = webrtc.ICECredentialTypePassword
		}
		iceServers = append(iceServers, turnServer)
	}

	policy := webrtc.ICETransportPolicyAll
	if cfg.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// Manager owns one peer connection per viewer.
type Manager struct {
	config webrtc.Configuration

	mu          sync.RWMutex
	connections map[string]*webrtc.PeerConnection
	onICE       func(peerID, candidate string)
	onConnected func(peerID string)
	onFailed    func(peerID string, err error)
}

// NewManager creates a manager using cfg for every connection.
func NewManager(cfg ICEConfig) *Manager {
	return &Manager{
		config:      Configuration(cfg),
		connections: make(map[string]*webrtc.PeerConnection),
	}
}

// SetICECallback registers the local candidate callback.
func (m *Manager) SetICECallback(cb func(peerID, candidate string)) {
	m.mu.Lock()
	m.onICE = cb
	m.mu.Unlock()
}

// SetConnectionCallbacks registers connection state callbacks.
func (m *Manager) SetConnectionCallbacks(onConnected func(peerID string), onFailed func(peerID string, err error)) {
	m.mu.Lock()
	m.onConnected = onConnected
	m.onFailed = onFailed
	m.mu.Unlock()
}

// Offer creates a connection for peerID carrying one video track named
// trackID, and returns the local SDP once ICE gathering completes.
func (m *Manager) Offer(ctx context.Context, peerID, trackID string) (string, error) {
	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return "", fmt.Errorf("failed to create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, trackID, "sharehost")
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to create video track: %w", err)
	}
	if _, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	}); err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to add video track: %w", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		m.mu.RLock()
		cb := m.onICE
		m.mu.RUnlock()
		if cb == nil {
			return
		}
		b, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			return
		}
		cb(peerID, string(b))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("module", "peer").Str("peer", peerID).Str("state", state.String()).Msg("connection state")

		m.mu.RLock()
		onConnected, onFailed := m.onConnected, m.onFailed
		m.mu.RUnlock()

		switch state {
		case webrtc.PeerConnectionStateConnected:
			if onConnected != nil {
				onConnected(peerID)
			}
		case webrtc.PeerConnectionStateFailed:
			if onFailed != nil {
				onFailed(peerID, fmt.Errorf("peer %s: connection %s", peerID, state))
			}
			m.Hangup(peerID)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return "", ctx.Err()
	}

	m.mu.Lock()
	if old, ok := m.connections[peerID]; ok {
		old.Close()
	}
	m.connections[peerID] = pc
	m.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

// HandleAnswer processes an SDP answer
func (m *Manager) HandleAnswer(peerID, sdp string) error {
	m.mu.RLock()
	pc, ok := m.connections[peerID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}

	return pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// AddICECandidate adds a remote ICE candidate in its JSON form.
func (m *Manager) AddICECandidate(peerID, candidateJSON string) error {
	m.mu.RLock()
	pc, ok := m.connections[peerID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		return fmt.Errorf("failed to parse ICE candidate: %w", err)
	}
	return pc.AddICECandidate(candidate)
}

// Hangup closes the connection to peerID. Unknown peers are ignored.
func (m *Manager) Hangup(peerID string) {
	m.mu.Lock()
	pc, ok := m.connections[peerID]
	delete(m.connections, peerID)
	m.mu.Unlock()

	if ok {
		if err := pc.Close(); err != nil {
			log.Debug().Err(err).Str("module", "peer").Str("peer", peerID).Msg("close peer connection")
		}
	}
}

// Count returns the number of open connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CloseAll closes every connection.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := m.connections
	m.connections = make(map[string]*webrtc.PeerConnection)
	m.mu.Unlock()

	for _, pc := range conns {
		pc.Close()
	}
}
