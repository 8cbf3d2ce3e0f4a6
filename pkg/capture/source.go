// Package capture keeps the directory of capturable screens and windows that
// the host can offer to a peer.
package capture

import (
	"context"
	"encoding/base64"
	"net/http"
)

// Source is a capturable screen or window.
type Source struct {
	ID        string `msgpack:"id"`
	DisplayID string `msgpack:"display_id"`
	Name      string `msgpack:"name"`
	Thumbnail []byte `msgpack:"thumbnail"`
	AppIcon   []byte `msgpack:"app_icon,omitempty"`
}

// Display is a physical display that screen sources belong to.
type Display struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Size is a display size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SourceMetadata is the picker view of a Source, images as data URLs.
type SourceMetadata struct {
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail"`
	AppIcon   string `json:"appIcon,omitempty"`
}

// Enumerator lists the sources and displays currently available.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Source, []Display, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(ctx context.Context) ([]Source, []Display, error)

func (f EnumeratorFunc) Enumerate(ctx context.Context) ([]Source, []Display, error) {
	return f(ctx)
}

// DataURL encodes an image payload as a data URL. Empty input yields "".
func DataURL(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "data:" + http.DetectContentType(b) + ";base64," + base64.StdEncoding.EncodeToString(b)
}
