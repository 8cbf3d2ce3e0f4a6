// Package coordinator owns the waiting-for-connection slot and every live
// sharing session of the host.
//
// All state changes are serialized on one mutex. Signaler calls made on
// behalf of a change are queued while the mutex is held and run after it is
// released, so a stalled transport never blocks other operations. Transport
// callbacks are checked against the slot generation they were created for,
// so a callback that outlives its slot is discarded.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tomaslejdung/sharehost/pkg/capture"
	"github.com/tomaslejdung/sharehost/pkg/device"
	"github.com/tomaslejdung/sharehost/pkg/roomid"
	"github.com/tomaslejdung/sharehost/pkg/session"
)

// ErrCreationSuperseded is returned by CreateWaitingSession when a reset or a
// newer creation ran while it was preparing.
var ErrCreationSuperseded = errors.New("waiting session creation superseded")

// Config wires the coordinator's collaborators. Nil registries are created.
type Config struct {
	Signaler session.Signaler
	Sources  *capture.Directory
	Rooms    *roomid.Registry
	Devices  *device.Directory
}

// creation is a waiting session still being prepared. A handshake that
// completes before the session is installed is parked here.
type creation struct {
	session   *session.Session
	handshake *device.Device
}

// effects are signaler calls queued under the mutex. run executes them in
// order once the mutex is released.
type effects []func()

func (e *effects) add(f func()) { *e = append(*e, f) }

func (e *effects) run() {
	for _, f := range *e {
		f()
	}
	*e = nil
}

// Coordinator drives the session lifecycle.
type Coordinator struct {
	signaler session.Signaler
	sources  *capture.Directory
	rooms    *roomid.Registry
	devices  *device.Directory
	events   *bus

	mu         sync.Mutex
	gen        uint64
	waiting    *session.Session
	waitingGen uint64
	sessions   map[string]*session.Session
	inflight   map[string]*creation
	releasing  map[string]int
}

// New creates a coordinator with an empty slot.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		signaler:  cfg.Signaler,
		sources:   cfg.Sources,
		rooms:     cfg.Rooms,
		devices:   cfg.Devices,
		events:    newBus(),
		sessions:  make(map[string]*session.Session),
		inflight:  make(map[string]*creation),
		releasing: make(map[string]int),
	}
	if c.rooms == nil {
		c.rooms = roomid.NewRegistry()
	}
	if c.devices == nil {
		c.devices = device.NewDirectory()
	}
	if c.sources == nil {
		c.sources = capture.NewDirectory(capture.EnumeratorFunc(func(context.Context) ([]capture.Source, []capture.Display, error) {
			return nil, nil, nil
		}))
	}
	return c
}

// Subscribe registers an event listener. Call cancel to stop and close the channel.
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.subscribe(buffer)
}

// CreateWaitingSession opens a new waiting slot. The previous occupant is torn
// down, unless it is already sharing, in which case it stays live outside the
// slot. On error the slot is left unchanged.
func (c *Coordinator) CreateWaitingSession(ctx context.Context) (session.Info, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	id, err := c.rooms.Issue()
	if err != nil {
		c.mu.Unlock()
		return session.Info{}, err
	}
	s := session.New(id, c.signaler)
	pending := &creation{session: s}
	c.inflight[id] = pending
	c.mu.Unlock()

	s.SetOnDeviceConnectedCallback(func(d device.Device) { c.onPeerConnected(gen, id, d) })
	s.SetOnPeerDisconnectedCallback(func(deviceID string) { c.onPeerDisconnected(s, deviceID) })
	s.SetOnTransportFailedCallback(func(err error) { c.onTransportFailed(id, err) })

	openErr := s.Open(ctx)

	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)

	if openErr != nil {
		c.releaseLater(&fx, s, false)
		log.Error().Err(openErr).Str("module", "coordinator").Str("room", id).Msg("create waiting session failed")
		return session.Info{}, openErr
	}
	if c.gen != gen {
		c.teardownLocked(&fx, s)
		log.Info().Str("module", "coordinator").Str("room", id).Msg("waiting session creation superseded")
		return session.Info{}, ErrCreationSuperseded
	}

	if old := c.waiting; old != nil {
		c.releaseSlotLocked(&fx, old)
	}
	c.waiting = s
	c.waitingGen = gen
	c.sessions[id] = s
	log.Info().Str("module", "coordinator").Str("room", id).Msg("waiting session created")

	if d := pending.handshake; d != nil {
		c.acceptHandshakeLocked(id, *d)
	}
	return s.Info(), nil
}

// releaseSlotLocked empties the slot. A sharing occupant keeps running as a
// live session; anything else is torn down.
func (c *Coordinator) releaseSlotLocked(fx *effects, s *session.Session) {
	c.waiting = nil
	c.waitingGen = 0
	if s.Status() == session.Sharing {
		log.Debug().Str("module", "coordinator").Str("room", s.ID()).Msg("sharing session left the slot")
		return
	}
	if id := s.DeviceID(); id != "" {
		c.devices.ResetPendingIf(id)
	}
	c.teardownLocked(fx, s)
	c.events.publish(Event{Type: EventSessionDestroyed, Room: s.ID()})
}

// teardownLocked removes s from the coordinator and queues disconnect,
// destroy and reclaim in that order. The id stays taken until the signaler
// has released the room.
func (c *Coordinator) teardownLocked(fx *effects, s *session.Session) {
	delete(c.sessions, s.ID())
	if c.waiting == s {
		c.waiting = nil
		c.waitingGen = 0
	}
	c.releaseLater(fx, s, true)
}

func (c *Coordinator) releaseLater(fx *effects, s *session.Session, disconnect bool) {
	id := s.ID()
	c.releasing[id]++
	fx.add(func() {
		if disconnect {
			s.DisconnectByHostMachineUser()
		}
		s.Destroy()

		c.mu.Lock()
		if c.releasing[id]--; c.releasing[id] <= 0 {
			delete(c.releasing, id)
		}
		c.rooms.Reclaim(id)
		c.mu.Unlock()
	})
}

func (c *Coordinator) onPeerConnected(gen uint64, room string, d device.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.gen != gen:
		log.Info().Str("module", "coordinator").Str("room", room).Str("device", d.ID).Msg("stale callback discarded")
	case c.waiting != nil && c.waitingGen == gen:
		c.acceptHandshakeLocked(room, d)
	case c.inflight[room] != nil:
		dev := d
		c.inflight[room].handshake = &dev
		log.Debug().Str("module", "coordinator").Str("room", room).Str("device", d.ID).Msg("handshake parked until session is installed")
	default:
		log.Info().Str("module", "coordinator").Str("room", room).Str("device", d.ID).Msg("stale callback discarded")
	}
}

func (c *Coordinator) acceptHandshakeLocked(room string, d device.Device) {
	c.devices.SetPending(d)
	c.waiting.SetDeviceID(d.ID)

	log.Info().Str("module", "coordinator").Str("room", room).Str("device", d.ID).Msg("device pending")
	dev := d
	c.events.publish(Event{Type: EventDeviceConnected, Room: room, Device: &dev})
}

// onPeerDisconnected tears down s if it is still the live session for its
// room. A drop from a session whose id was reissued is ignored.
func (c *Coordinator) onPeerDisconnected(s *session.Session, deviceID string) {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	room := s.ID()
	if cr := c.inflight[room]; cr != nil && cr.session == s && cr.handshake != nil && cr.handshake.ID == deviceID {
		cr.handshake = nil
		return
	}
	if cur, ok := c.sessions[room]; !ok || cur != s {
		return
	}
	c.disconnectLocked(&fx, s)
	log.Info().Str("module", "coordinator").Str("room", room).Str("device", deviceID).Msg("peer disconnected")
	c.events.publish(Event{Type: EventPeerDisconnected, Room: room})
}

func (c *Coordinator) onTransportFailed(room string, err error) {
	c.events.publish(Event{Type: EventTransportFailed, Room: room, Error: err.Error()})
}

// ResetWaitingSession tears down the slot session, if any. A sharing
// occupant is detached instead. In-flight creations are cancelled.
func (c *Coordinator) ResetWaitingSession() {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.waiting == nil {
		return
	}
	room := c.waiting.ID()
	c.releaseSlotLocked(&fx, c.waiting)
	log.Info().Str("module", "coordinator").Str("room", room).Msg("waiting session reset")
}

// ConfirmConnected marks the slot session CONNECTED.
func (c *Coordinator) ConfirmConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waiting == nil {
		return
	}
	if err := c.waiting.SetStatus(session.Connected); err != nil {
		log.Warn().Err(err).Str("module", "coordinator").Str("room", c.waiting.ID()).Msg("confirm connected ignored")
	}
}

// StartSharing binds sourceID to the slot session, calls the peer and
// promotes the pending device. Without a slot session it does nothing.
func (c *Coordinator) StartSharing(sourceID string) {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.waiting
	if s == nil {
		log.Debug().Str("module", "coordinator").Msg("start sharing without waiting session")
		return
	}
	if s.Status() == session.Sharing {
		return
	}

	s.SetCapturedSourceID(sourceID)
	fx.add(s.CallPeer)
	if err := s.SetStatus(session.Sharing); err != nil {
		log.Warn().Err(err).Str("module", "coordinator").Str("room", s.ID()).Msg("set sharing status")
	}
	dev, err := c.devices.PromotePendingToConnected()
	if err != nil {
		log.Warn().Err(err).Str("module", "coordinator").Str("room", s.ID()).Msg("sharing started without pending device")
	} else {
		s.SetDeviceID(dev.ID)
	}
	c.devices.ResetPending()

	log.Info().Str("module", "coordinator").Str("room", s.ID()).Str("source", sourceID).Msg("sharing started")
	c.events.publish(Event{Type: EventSharingStarted, Room: s.ID(), SourceID: sourceID})
}

func (c *Coordinator) disconnectLocked(fx *effects, s *session.Session) {
	if id := s.DeviceID(); id != "" {
		c.devices.Disconnect(id)
	}
	c.teardownLocked(fx, s)
	c.events.publish(Event{Type: EventSessionDestroyed, Room: s.ID()})
}

// DisconnectSession tears down any live session by room id.
func (c *Coordinator) DisconnectSession(id string) {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[roomid.Normalize(id)]
	if !ok {
		return
	}
	c.disconnectLocked(&fx, s)
	log.Info().Str("module", "coordinator").Str("room", s.ID()).Msg("session disconnected")
}

// DisconnectDevice removes a device and the sessions bound to it.
func (c *Coordinator) DisconnectDevice(id string) {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sessionsLocked() {
		if s.DeviceID() == id {
			c.disconnectLocked(&fx, s)
		}
	}
	c.devices.Disconnect(id)
}

// DisconnectAllDevices removes every device and the sessions bound to them.
func (c *Coordinator) DisconnectAllDevices() {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sessionsLocked() {
		if s.DeviceID() != "" {
			c.disconnectLocked(&fx, s)
		}
	}
	c.devices.DisconnectAll()
}

// DisconnectAllAndReset tears down every session and empties all registries.
// Ids of creations still in flight and of rooms still being released stay
// taken until those finish.
func (c *Coordinator) DisconnectAllAndReset() {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	for _, s := range c.sessionsLocked() {
		c.teardownLocked(&fx, s)
	}
	c.waiting = nil
	c.waitingGen = 0
	c.devices.DisconnectAll()

	keep := make([]string, 0, len(c.inflight)+len(c.releasing))
	for id := range c.inflight {
		keep = append(keep, id)
	}
	for id := range c.releasing {
		keep = append(keep, id)
	}
	c.rooms.Reset(keep...)

	log.Info().Str("module", "coordinator").Msg("all sessions reset")
	c.events.publish(Event{Type: EventReset})
}

// AppLanguageChanged forwards a locale change to every live session.
func (c *Coordinator) AppLanguageChanged(lang string) {
	var fx effects
	defer fx.run()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sessionsLocked() {
		fx.add(func() { s.AppLanguageChanged(lang) })
	}
	c.events.publish(Event{Type: EventLanguageChanged, Lang: lang})
}

// ReclaimRoomID releases an identifier that no live session references.
func (c *Coordinator) ReclaimRoomID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id = roomid.Normalize(id)
	_, live := c.sessions[id]
	_, creating := c.inflight[id]
	if live || creating || c.releasing[id] > 0 {
		log.Warn().Str("module", "coordinator").Str("room", id).Msg("refusing to reclaim room id of live session")
		return
	}
	c.rooms.Reclaim(id)
}

// sessionsLocked returns live sessions ordered by id.
func (c *Coordinator) sessionsLocked() []*session.Session {
	out := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// WaitingSession returns the slot session.
func (c *Coordinator) WaitingSession() (session.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting == nil {
		return session.Info{}, false
	}
	return c.waiting.Info(), true
}

// WaitingSourceID returns the capture source bound to the slot session, or "".
func (c *Coordinator) WaitingSourceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting == nil {
		return ""
	}
	return c.waiting.CapturedSourceID()
}

// SessionSourceID returns the capture source bound to a live session.
func (c *Coordinator) SessionSourceID(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[roomid.Normalize(id)]
	if !ok {
		return "", false
	}
	return s.CapturedSourceID(), true
}

// Sessions returns a snapshot of every live session.
func (c *Coordinator) Sessions() []session.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.sessionsLocked()
	out := make([]session.Info, 0, len(live))
	for _, s := range live {
		out = append(out, s.Info())
	}
	return out
}

// PendingDevice returns the device mid-handshake.
func (c *Coordinator) PendingDevice() (device.Device, bool) {
	return c.devices.Pending()
}

// ConnectedDevices returns the connected device snapshot.
func (c *Coordinator) ConnectedDevices() []device.Device {
	return c.devices.List()
}

// RefreshSources re-enumerates capture sources.
func (c *Coordinator) RefreshSources(ctx context.Context) error {
	return c.sources.Refresh(ctx)
}

// Sources returns the capture sources sorted for display.
func (c *Coordinator) Sources() []capture.Source {
	return c.sources.Sources()
}

// SourcesSnapshot returns picker metadata keyed by source id.
func (c *Coordinator) SourcesSnapshot() map[string]capture.SourceMetadata {
	return c.sources.Snapshot()
}

// ResolveDisplayID maps a capture source to its display.
func (c *Coordinator) ResolveDisplayID(sourceID string) (string, bool) {
	return c.sources.ResolveDisplayID(sourceID)
}

// Displays lists the enumerated displays.
func (c *Coordinator) Displays() []capture.Display {
	return c.sources.Displays()
}

// DisplaySize returns a display's pixel size.
func (c *Coordinator) DisplaySize(displayID string) (capture.Size, bool) {
	return c.sources.DisplaySize(displayID)
}
