package rendercoord

import (
	"testing"

	"github.com/hkdb/ratmail/internal/render"
	"github.com/stretchr/testify/assert"
)

func TestSelectResetsState(t *testing.T) {
	c := New(nil, nil, nil)
	c.Select(42)
	c.mu.Lock()
	c.tiles = []render.Tile{}
	c.noHTML = true
	c.mu.Unlock()

	c.Select(43)
	assert.Equal(t, int64(43), c.selectedID)
	assert.False(t, c.NoHTML())
	assert.Nil(t, c.Tiles())
}

func TestProtocolCacheLRUEviction(t *testing.T) {
	c := New(nil, nil, nil)
	for i := 0; i < ProtocolCacheSize+4; i++ {
		c.PutProtocolImage(1, i, i)
	}

	// The oldest entries (0..3) should have been evicted.
	for i := 0; i < 4; i++ {
		_, ok := c.ProtocolImage(1, i)
		assert.False(t, ok, "tile %d should have been evicted", i)
	}
	// The most recent ProtocolCacheSize entries survive.
	for i := 4; i < ProtocolCacheSize+4; i++ {
		_, ok := c.ProtocolImage(1, i)
		assert.True(t, ok, "tile %d should still be cached", i)
	}
}

func TestSetVisibleAreaPurgesProtocolCache(t *testing.T) {
	c := New(nil, nil, nil)
	c.SetVisibleArea(100, 200)
	c.PutProtocolImage(1, 0, "img")
	_, ok := c.ProtocolImage(1, 0)
	assert.True(t, ok)

	c.SetVisibleArea(100, 200)
	_, ok = c.ProtocolImage(1, 0)
	assert.True(t, ok, "same dimensions should not purge")

	c.SetVisibleArea(100, 300)
	_, ok = c.ProtocolImage(1, 0)
	assert.False(t, ok, "dimension change should purge the protocol cache")
}
