package coordinator

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tomaslejdung/sharehost/pkg/device"
)

// EventType names a coordinator notification.
type EventType string

const (
	EventDeviceConnected  EventType = "device-connected"
	EventSharingStarted   EventType = "sharing-started"
	EventSessionDestroyed EventType = "session-destroyed"
	EventPeerDisconnected EventType = "peer-disconnected"
	EventTransportFailed  EventType = "transport-failed"
	EventLanguageChanged  EventType = "language-changed"
	EventReset            EventType = "reset"
)

// Event is pushed to subscribers. Delivery is best effort.
type Event struct {
	Type     EventType      `json:"type"`
	Room     string         `json:"room,omitempty"`
	Device   *device.Device `json:"device,omitempty"`
	SourceID string         `json:"sourceId,omitempty"`
	Lang     string         `json:"lang,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish never blocks; a full subscriber misses the event.
func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("module", "coordinator").Int("subscriber", id).Str("event", string(ev.Type)).Msg("event dropped, subscriber full")
		}
	}
}
