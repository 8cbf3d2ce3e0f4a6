package signal

import "github.com/tomaslejdung/sharehost/pkg/device"

// Message types exchanged over the signaling socket.
const (
	TypeJoin             = "join"
	TypeJoined           = "joined"
	TypeViewerJoined     = "viewer-joined"
	TypeViewerLeft       = "viewer-left"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICE              = "ice"
	TypeHostDisconnected = "host-disconnected"
	TypeLanguageChanged  = "language-changed"
	TypeError            = "error"
)

// Roles a client joins with.
const (
	RoleSharer = "sharer"
	RoleViewer = "viewer"
)

// SignalMessage represents a WebSocket signaling message
type SignalMessage struct {
	Type      string           `json:"type"`                // see Type constants
	Room      string           `json:"room,omitempty"`      // room code
	Role      string           `json:"role,omitempty"`      // sharer or viewer
	SDP       string           `json:"sdp,omitempty"`       // SDP offer/answer
	Candidate string           `json:"candidate,omitempty"` // ICE candidate
	Error     string           `json:"error,omitempty"`     // error message
	PeerID    string           `json:"peerId,omitempty"`    // server-assigned viewer id
	TrackID   string           `json:"trackId,omitempty"`   // capture source carried by the offer
	Lang      string           `json:"lang,omitempty"`      // app language for language-changed
	Device    *device.Metadata `json:"device,omitempty"`    // viewer device info on join
}
