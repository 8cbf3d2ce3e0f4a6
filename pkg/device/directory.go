// Package device tracks the peer devices that have handshaked with the host.
package device

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrNoPendingDevice is returned when a promotion is requested with no pending device.
var ErrNoPendingDevice = errors.New("no pending device")

// Metadata describes the remote device as reported at handshake.
type Metadata struct {
	IP           string `json:"ip,omitempty"`
	OS           string `json:"os,omitempty"`
	Browser      string `json:"browser,omitempty"`
	DeviceType   string `json:"deviceType,omitempty"`
	ScreenWidth  int    `json:"screenWidth,omitempty"`
	ScreenHeight int    `json:"screenHeight,omitempty"`
}

// Device is a connected or pending peer.
type Device struct {
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
}

// Directory holds at most one pending device and any number of connected ones.
type Directory struct {
	mu        sync.RWMutex
	pending   *Device
	connected map[string]Device
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{connected: make(map[string]Device)}
}

// SetPending records dev as the pending device, replacing any previous one.
func (d *Directory) SetPending(dev Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil && d.pending.ID != dev.ID {
		log.Debug().Str("module", "device").Str("replaced", d.pending.ID).Str("device", dev.ID).Msg("pending device replaced")
	}
	d.pending = &dev
}

// Pending returns the pending device, if any.
func (d *Directory) Pending() (Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.pending == nil {
		return Device{}, false
	}
	return *d.pending, true
}

// ResetPending clears the pending device.
func (d *Directory) ResetPending() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
}

// ResetPendingIf clears the pending device only when it has the given id.
func (d *Directory) ResetPendingIf(id string) {
	d.mu.Lock()
	if d.pending != nil && d.pending.ID == id {
		d.pending = nil
	}
	d.mu.Unlock()
}

// PromotePendingToConnected moves the pending device into the connected set.
func (d *Directory) PromotePendingToConnected() (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return Device{}, ErrNoPendingDevice
	}
	dev := *d.pending
	d.pending = nil
	d.connected[dev.ID] = dev
	log.Info().Str("module", "device").Str("device", dev.ID).Msg("device connected")
	return dev, nil
}

// Get returns a connected device by id.
func (d *Directory) Get(id string) (Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.connected[id]
	return dev, ok
}

// Disconnect removes a device. Unknown ids are ignored.
func (d *Directory) Disconnect(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.connected[id]; ok {
		delete(d.connected, id)
		log.Info().Str("module", "device").Str("device", id).Msg("device disconnected")
	}
	if d.pending != nil && d.pending.ID == id {
		d.pending = nil
	}
}

// DisconnectAll removes every connected device and the pending one.
func (d *Directory) DisconnectAll() {
	d.mu.Lock()
	d.connected = make(map[string]Device)
	d.pending = nil
	d.mu.Unlock()
}

// List returns a snapshot of the connected devices ordered by id.
func (d *Directory) List() []Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Device, 0, len(d.connected))
	for _, dev := range d.connected {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
