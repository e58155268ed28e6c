// Package rendercoord implements the per-account render coordinator (C7):
// it tracks the current message selection, the two tile-height-px values
// (preview strip vs focused view), the latest render request id, and a
// bounded protocol-image cache, per spec.md §4.7.
//
// Grounded on internal/imap/pool.go's connection-pool reuse pattern,
// generalised here into an LRU keyed by (message id, tile index) instead
// of by connection, and on internal/render.Pipeline's request/event shape
// for the request_id discriminator.
package rendercoord

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hkdb/ratmail/internal/mailworker"
	"github.com/hkdb/ratmail/internal/render"
	"github.com/hkdb/ratmail/internal/store"
)

// ProtocolCacheSize bounds the terminal-image-protocol object cache
// (spec.md §4.7: "at most 16 most-recently-used entries").
const ProtocolCacheSize = 16

// tileKey identifies one rendered tile for the protocol cache.
type tileKey struct {
	MessageID int64
	TileIndex int
}

// Coordinator is one account's C7 state. Every method is safe for
// concurrent use from the single UI thread that owns it; there is no
// internal goroutine.
type Coordinator struct {
	store    *store.Store
	worker   *mailworker.Facade
	pipeline *render.Pipeline

	mu sync.Mutex

	selectedID   int64
	havSelection bool
	noHTML       bool
	tiles        []render.Tile

	previewHeightPx int
	focusHeightPx   int
	widthPx         int
	theme           string
	remotePolicy    render.RemotePolicy

	pending     bool
	nextRequest atomic.Int64

	protoMu    sync.Mutex
	protoList  *list.List
	protoIndex map[tileKey]*list.Element
	visibleW   int
	visibleH   int
}

// protoEntry is one LRU node: the tile it caches plus an opaque
// platform-specific image handle the UI attaches (spec.md §9: "platform
// polymorphism ... modelled as a capability set"; here the protocol object
// itself is a UI concern, so the core only keeps it alive, never inspects it).
type protoEntry struct {
	key   tileKey
	image any
}

// New creates a Coordinator for one account's store/worker/render pipeline.
func New(s *store.Store, worker *mailworker.Facade, pipeline *render.Pipeline) *Coordinator {
	return &Coordinator{
		store:      s,
		worker:     worker,
		pipeline:   pipeline,
		protoList:  list.New(),
		protoIndex: make(map[tileKey]*list.Element),
	}
}

// Select changes the active message. Per spec.md §4.7: clears the tile
// list, forgets the prior message id, clears the no-html flag; does not
// touch the tile cache.
func (c *Coordinator) Select(messageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedID = messageID
	c.havSelection = true
	c.noHTML = false
	c.tiles = nil
	c.pending = false
}

// Deselect clears the current selection entirely.
func (c *Coordinator) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.havSelection = false
	c.selectedID = 0
	c.noHTML = false
	c.tiles = nil
	c.pending = false
}

// Tiles returns the currently displayed tile set for the selection, if any.
func (c *Coordinator) Tiles() []render.Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tiles
}

// NoHTML reports whether the selected message has no displayable HTML.
func (c *Coordinator) NoHTML() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noHTML
}

// Pending reports whether a render request is outstanding for the
// selection.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// RequestRender drives one pass of spec.md §4.7's request flow for the
// currently selected message at the given geometry:
//  1. ensure the raw body is cached, enqueuing a body fetch and returning
//     if not;
//  2. check the tile cache synchronously; apply immediately on hit;
//  3. otherwise publish a new render request with a freshly incremented
//     request id.
func (c *Coordinator) RequestRender(uid uint32, widthPx, tileHeightPx int, theme string, policy render.RemotePolicy) {
	c.mu.Lock()
	if !c.havSelection {
		c.mu.Unlock()
		return
	}
	messageID := c.selectedID
	c.widthPx = widthPx
	c.theme = theme
	c.remotePolicy = policy
	c.mu.Unlock()

	has, err := c.store.HasRawBody(messageID)
	if err != nil || !has {
		if c.worker != nil {
			_ = c.worker.Submit(mailworker.Command{
				Kind:      mailworker.CmdFetchBody,
				MessageID: messageID,
				UID:       uid,
			})
		}
		return
	}

	themeKey := render.ThemeKey(theme)
	rows, err := c.store.GetCacheTiles(messageID, widthPx, tileHeightPx, themeKey, store.RemotePolicy(policy))
	if err == nil && len(rows) > 0 {
		tiles := make([]render.Tile, 0, len(rows))
		for _, r := range rows {
			tiles = append(tiles, render.Tile{Index: r.TileIndex, HeightPx: r.HeightPx, PNG: r.PNG})
		}
		c.applyTiles(messageID, widthPx, tileHeightPx, tiles)
		return
	}

	reqID := c.nextRequest.Add(1)
	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()

	if c.pipeline != nil {
		c.pipeline.Submit(render.Request{
			RequestID:    reqID,
			MessageIDs:   []int64{messageID},
			WidthPx:      widthPx,
			TileHeightPx: tileHeightPx,
			Theme:        theme,
			RemotePolicy: policy,
		})
	}
}

// HandleEvent applies a render.Event from the pipeline only if it still
// matches the current (selected_id, width_px, tile_height_px); stale
// events are discarded (spec.md §4.7).
func (c *Coordinator) HandleEvent(evt render.Event, tileHeightPx int) {
	c.mu.Lock()
	matches := c.havSelection && c.selectedID == evt.MessageID && c.widthPx == evt.WidthPx && evt.TileHeightPx == tileHeightPx
	c.mu.Unlock()
	if !matches {
		return
	}

	switch evt.Kind {
	case render.EvtTiles:
		c.applyTiles(evt.MessageID, evt.WidthPx, tileHeightPx, evt.Tiles)
	case render.EvtNoHTML:
		c.mu.Lock()
		c.noHTML = true
		c.pending = false
		c.mu.Unlock()
	case render.EvtError:
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}
}

func (c *Coordinator) applyTiles(messageID int64, widthPx, tileHeightPx int, tiles []render.Tile) {
	c.mu.Lock()
	if !c.havSelection || c.selectedID != messageID {
		c.mu.Unlock()
		return
	}
	c.tiles = tiles
	c.pending = false
	c.mu.Unlock()
}

// SetVisibleArea purges the protocol cache whenever the visible viewport
// dimensions change (spec.md §4.7: "purged whenever the visible area
// dimensions change").
func (c *Coordinator) SetVisibleArea(width, height int) {
	c.protoMu.Lock()
	defer c.protoMu.Unlock()
	if c.visibleW == width && c.visibleH == height {
		return
	}
	c.visibleW, c.visibleH = width, height
	c.protoList.Init()
	c.protoIndex = make(map[tileKey]*list.Element)
}

// ProtocolImage returns the cached platform-specific image object for
// (messageID, tileIndex), if present, and touches it as most-recently-used.
func (c *Coordinator) ProtocolImage(messageID int64, tileIndex int) (any, bool) {
	c.protoMu.Lock()
	defer c.protoMu.Unlock()
	key := tileKey{messageID, tileIndex}
	el, ok := c.protoIndex[key]
	if !ok {
		return nil, false
	}
	c.protoList.MoveToFront(el)
	return el.Value.(*protoEntry).image, true
}

// PutProtocolImage inserts or updates the cached image object for
// (messageID, tileIndex), evicting the least-recently-used entry once the
// cache exceeds ProtocolCacheSize entries.
func (c *Coordinator) PutProtocolImage(messageID int64, tileIndex int, image any) {
	c.protoMu.Lock()
	defer c.protoMu.Unlock()

	key := tileKey{messageID, tileIndex}
	if el, ok := c.protoIndex[key]; ok {
		el.Value.(*protoEntry).image = image
		c.protoList.MoveToFront(el)
		return
	}

	el := c.protoList.PushFront(&protoEntry{key: key, image: image})
	c.protoIndex[key] = el

	for c.protoList.Len() > ProtocolCacheSize {
		oldest := c.protoList.Back()
		if oldest == nil {
			break
		}
		c.protoList.Remove(oldest)
		delete(c.protoIndex, oldest.Value.(*protoEntry).key)
	}
}

// SetTileHeights records the two tile-height-px values the coordinator
// juggles: one for the preview strip, one for the focused view
// (spec.md §4.7).
func (c *Coordinator) SetTileHeights(previewPx, focusPx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previewHeightPx = previewPx
	c.focusHeightPx = focusPx
}

// TileHeights returns the currently configured preview/focus tile
// heights in pixels.
func (c *Coordinator) TileHeights() (previewPx, focusPx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewHeightPx, c.focusHeightPx
}
