package signal

// Sharer abstracts the signaling transport of one room for the host side.
// LocalSharer and RemoteSharer implement it.
type Sharer interface {
	// SendToViewer sends a message to the viewer with the given peer id
	SendToViewer(peerID string, msg SignalMessage)

	// SendToAllViewers sends a message to whichever viewer is in the room
	SendToAllViewers(msg SignalMessage)

	// Messages returns channel of incoming raw messages. It is closed on Close.
	Messages() <-chan []byte

	// SetDisconnectHandler sets callback for when connection is lost
	SetDisconnectHandler(handler func())

	// Close shuts down the sharer
	Close()
}
