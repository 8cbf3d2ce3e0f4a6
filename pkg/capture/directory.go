package capture

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Directory caches the most recent enumeration.
type Directory struct {
	enumerator Enumerator

	mu       sync.RWMutex
	sources  map[string]Source
	displays map[string]Display
}

// NewDirectory creates a directory backed by e. It is empty until Refresh.
func NewDirectory(e Enumerator) *Directory {
	return &Directory{
		enumerator: e,
		sources:    make(map[string]Source),
		displays:   make(map[string]Display),
	}
}

// Refresh replaces the directory contents. On error the previous contents are kept.
func (d *Directory) Refresh(ctx context.Context) error {
	sources, displays, err := d.enumerator.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerate capture sources: %w", err)
	}

	nextSources := make(map[string]Source, len(sources))
	for _, s := range sources {
		nextSources[s.ID] = s
	}
	nextDisplays := make(map[string]Display, len(displays))
	for _, disp := range displays {
		nextDisplays[disp.ID] = disp
	}

	d.mu.Lock()
	d.sources = nextSources
	d.displays = nextDisplays
	d.mu.Unlock()

	log.Debug().Str("module", "capture").Int("sources", len(nextSources)).Int("displays", len(nextDisplays)).Msg("sources refreshed")
	return nil
}

// Source returns the source with the given id.
func (d *Directory) Source(id string) (Source, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sources[id]
	return s, ok
}

// Sources returns all sources sorted by name, then id.
func (d *Directory) Sources() []Source {
	d.mu.RLock()
	out := make([]Source, 0, len(d.sources))
	for _, s := range d.sources {
		out = append(out, s)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ResolveDisplayID returns the display a source belongs to.
// Unknown sources and window sources without a display yield ("", false).
func (d *Directory) ResolveDisplayID(sourceID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sources[sourceID]
	if !ok || s.DisplayID == "" {
		return "", false
	}
	return s.DisplayID, true
}

// Displays returns all known displays sorted by id.
func (d *Directory) Displays() []Display {
	d.mu.RLock()
	out := make([]Display, 0, len(d.displays))
	for _, disp := range d.displays {
		out = append(out, disp)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DisplaySize returns the pixel size of a display.
func (d *Directory) DisplaySize(displayID string) (Size, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	disp, ok := d.displays[displayID]
	if !ok {
		return Size{}, false
	}
	return Size{Width: disp.Width, Height: disp.Height}, true
}

// Snapshot returns source id to picker metadata.
func (d *Directory) Snapshot() map[string]SourceMetadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]SourceMetadata, len(d.sources))
	for id, s := range d.sources {
		out[id] = SourceMetadata{
			Name:      s.Name,
			Thumbnail: DataURL(s.Thumbnail),
			AppIcon:   DataURL(s.AppIcon),
		}
	}
	return out
}
