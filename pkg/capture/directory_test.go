package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func sampleEnumerator() Enumerator {
	return EnumeratorFunc(func(ctx context.Context) ([]Source, []Display, error) {
		return []Source{
				{ID: "screen:1", DisplayID: "1", Name: "Entire Screen", Thumbnail: pngPixel},
				{ID: "window:42", Name: "Editor", Thumbnail: pngPixel, AppIcon: pngPixel},
			}, []Display{
				{ID: "1", Width: 2560, Height: 1440},
			}, nil
	})
}

func TestDirectoryRefreshAndLookup(t *testing.T) {
	d := NewDirectory(sampleEnumerator())
	require.NoError(t, d.Refresh(context.Background()))

	displayID, ok := d.ResolveDisplayID("screen:1")
	assert.True(t, ok)
	assert.Equal(t, "1", displayID)

	_, ok = d.ResolveDisplayID("window:42")
	assert.False(t, ok)
	_, ok = d.ResolveDisplayID("unknown")
	assert.False(t, ok)

	size, ok := d.DisplaySize("1")
	require.True(t, ok)
	assert.Equal(t, Size{Width: 2560, Height: 1440}, size)

	sources := d.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "Editor", sources[0].Name)
	assert.Equal(t, "Entire Screen", sources[1].Name)
}

func TestDirectoryRefreshErrorKeepsContents(t *testing.T) {
	fail := false
	d := NewDirectory(EnumeratorFunc(func(ctx context.Context) ([]Source, []Display, error) {
		if fail {
			return nil, nil, errors.New("capturer unavailable")
		}
		return []Source{{ID: "screen:1", DisplayID: "1"}}, nil, nil
	}))
	require.NoError(t, d.Refresh(context.Background()))

	fail = true
	require.Error(t, d.Refresh(context.Background()))
	_, ok := d.Source("screen:1")
	assert.True(t, ok)
}

func TestSnapshotEncodesDataURLs(t *testing.T) {
	d := NewDirectory(sampleEnumerator())
	require.NoError(t, d.Refresh(context.Background()))

	snap := d.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, strings.HasPrefix(snap["screen:1"].Thumbnail, "data:image/png;base64,"))
	assert.Empty(t, snap["screen:1"].AppIcon)
	assert.NotEmpty(t, snap["window:42"].AppIcon)
	assert.Equal(t, "Editor", snap["window:42"].Name)
}

func TestEncodeSourcesRoundTrip(t *testing.T) {
	in := []Source{{ID: "window:42", Name: "Editor", Thumbnail: pngPixel}}
	b, err := EncodeSources(in)
	require.NoError(t, err)

	out, err := DecodeSources(b)
	require.NoError(t, err)
	assert.Equal(t, in[0].ID, out[0].ID)
	assert.Equal(t, pngPixel, out[0].Thumbnail)
}

func TestStaticEnumerator(t *testing.T) {
	dir := t.TempDir()
	thumb := filepath.Join(dir, "thumb.png")
	require.NoError(t, os.WriteFile(thumb, pngPixel, 0o644))

	e := &StaticEnumerator{
		Sources:  []SourceConfig{{ID: "screen:1", DisplayID: "1", Name: "Main", Thumbnail: thumb}},
		Displays: []DisplayConfig{{ID: "1", Width: 1920, Height: 1080}},
	}
	sources, displays, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, pngPixel, sources[0].Thumbnail)
	assert.Nil(t, sources[0].AppIcon)
	assert.Equal(t, []Display{{ID: "1", Width: 1920, Height: 1080}}, displays)
}

func TestStaticEnumeratorMissingFile(t *testing.T) {
	e := &StaticEnumerator{Sources: []SourceConfig{{ID: "screen:1", Thumbnail: "/nonexistent/thumb.png"}}}
	_, _, err := e.Enumerate(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDisplaysSortedByID(t *testing.T) {
	d := NewDirectory(EnumeratorFunc(func(ctx context.Context) ([]Source, []Display, error) {
		return nil, []Display{{ID: "2", Width: 1920, Height: 1080}, {ID: "1", Width: 2560, Height: 1440}}, nil
	}))
	assert.Empty(t, d.Displays())

	require.NoError(t, d.Refresh(context.Background()))
	assert.Equal(t, []Display{
		{ID: "1", Width: 2560, Height: 1440},
		{ID: "2", Width: 1920, Height: 1080},
	}, d.Displays())
}
