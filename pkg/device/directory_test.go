package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingLastWriterWins(t *testing.T) {
	d := NewDirectory()
	d.SetPending(Device{ID: "D1"})
	d.SetPending(Device{ID: "D2", Metadata: Metadata{OS: "iOS"}})

	got, ok := d.Pending()
	require.True(t, ok)
	assert.Equal(t, "D2", got.ID)
	assert.Equal(t, "iOS", got.Metadata.OS)
}

func TestPromotePendingToConnected(t *testing.T) {
	d := NewDirectory()
	d.SetPending(Device{ID: "D1"})

	dev, err := d.PromotePendingToConnected()
	require.NoError(t, err)
	assert.Equal(t, "D1", dev.ID)

	_, ok := d.Pending()
	assert.False(t, ok)
	assert.Equal(t, []Device{{ID: "D1"}}, d.List())
}

func TestPromoteWithoutPending(t *testing.T) {
	d := NewDirectory()
	_, err := d.PromotePendingToConnected()
	assert.ErrorIs(t, err, ErrNoPendingDevice)
	assert.Empty(t, d.List())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	d := NewDirectory()
	d.SetPending(Device{ID: "D1"})
	_, err := d.PromotePendingToConnected()
	require.NoError(t, err)

	d.Disconnect("D1")
	d.Disconnect("D1")
	d.Disconnect("missing")
	assert.Empty(t, d.List())
}

func TestResetPendingIf(t *testing.T) {
	d := NewDirectory()
	d.SetPending(Device{ID: "D1"})

	d.ResetPendingIf("D2")
	_, ok := d.Pending()
	assert.True(t, ok)

	d.ResetPendingIf("D1")
	_, ok = d.Pending()
	assert.False(t, ok)
}

func TestDisconnectAll(t *testing.T) {
	d := NewDirectory()
	for _, id := range []string{"B", "A"} {
		d.SetPending(Device{ID: id})
		_, err := d.PromotePendingToConnected()
		require.NoError(t, err)
	}
	d.SetPending(Device{ID: "C"})

	assert.Equal(t, []Device{{ID: "A"}, {ID: "B"}}, d.List())

	d.DisconnectAll()
	d.DisconnectAll()
	assert.Empty(t, d.List())
	_, ok := d.Pending()
	assert.False(t, ok)
}

func TestListIsSnapshot(t *testing.T) {
	d := NewDirectory()
	d.SetPending(Device{ID: "D1"})
	_, err := d.PromotePendingToConnected()
	require.NoError(t, err)

	list := d.List()
	list[0].ID = "changed"
	_, ok := d.Get("D1")
	assert.True(t, ok)
}
