package render

import (
	"context"
	"sync/atomic"

	"github.com/hkdb/ratmail/internal/content"
	"github.com/hkdb/ratmail/internal/logging"
	"github.com/hkdb/ratmail/internal/store"
	"github.com/rs/zerolog"
)

// tileCacheBudgetBytes is the byte budget passed to PruneCacheTiles after
// every insert (spec.md §4.6 step 6: "then call prune_cache_tiles(256 MiB)").
const tileCacheBudgetBytes = 256 * 1024 * 1024

// EventKind tags a pipeline Event's payload variant.
type EventKind int

const (
	EvtNoHTML EventKind = iota
	EvtTiles
	EvtError
)

// Event is emitted once per processed message (spec.md §4.6 RenderEvent).
type Event struct {
	Kind         EventKind
	MessageID    int64
	Tiles        []Tile
	TileHeightPx int
	WidthPx      int
	Error        string
}

// Pipeline drives one account's render worker: a latest-value request
// channel, the store's caches, and a Renderer.
type Pipeline struct {
	store    *store.Store
	renderer Renderer
	log      zerolog.Logger

	requests chan Request
	events   chan Event

	latestRequestID atomic.Int64
}

// New creates a Pipeline over store using renderer for cache misses.
func New(s *store.Store, renderer Renderer) *Pipeline {
	return &Pipeline{
		store:    s,
		renderer: renderer,
		log:      logging.WithComponent("render"),
		requests: make(chan Request, 1),
		events:   make(chan Event, 32),
	}
}

// Events returns the channel consumers drain for RenderEvents.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// Submit publishes the latest render request, replacing any unconsumed one
// (spec.md §4.6: "a single render worker per account watches a
// latest-value channel").
func (p *Pipeline) Submit(req Request) {
	p.latestRequestID.Store(req.RequestID)
	select {
	case p.requests <- req:
	default:
		select {
		case <-p.requests:
		default:
		}
		p.requests <- req
	}
}

// Run processes requests until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case req := <-p.requests:
			p.processBatch(ctx, req)
		case <-ctx.Done():
			return
		}
	}
}

// processBatch walks message_ids in order, rechecking the latest request
// id between messages and abandoning the batch if it has changed
// (spec.md §4.6 step-by-step) so only the newest request completes.
func (p *Pipeline) processBatch(ctx context.Context, req Request) {
	for _, messageID := range req.MessageIDs {
		if p.latestRequestID.Load() != req.RequestID {
			return
		}
		p.processOne(ctx, req, messageID)
	}
}

func (p *Pipeline) processOne(ctx context.Context, req Request, messageID int64) {
	policy := store.RemotePolicy(req.RemotePolicy)

	html, ok, err := p.store.GetHTMLCache(messageID, policy)
	if err != nil {
		p.emitError(req, messageID, err)
		return
	}
	if !ok {
		raw, err := p.store.RawBody(messageID)
		if err != nil {
			p.emit(Event{Kind: EvtNoHTML, MessageID: messageID, TileHeightPx: req.TileHeightPx, WidthPx: req.WidthPx})
			return
		}
		prepared, err := content.PrepareHTML(raw, string(policy))
		if err != nil {
			p.emit(Event{Kind: EvtNoHTML, MessageID: messageID, TileHeightPx: req.TileHeightPx, WidthPx: req.WidthPx})
			return
		}
		if err := p.store.SetHTMLCache(messageID, policy, prepared.HTML); err != nil {
			p.emitError(req, messageID, err)
			return
		}
		html, ok, err = p.store.GetHTMLCache(messageID, policy)
		if err != nil || !ok {
			p.emit(Event{Kind: EvtNoHTML, MessageID: messageID, TileHeightPx: req.TileHeightPx, WidthPx: req.WidthPx})
			return
		}
	}

	themeKey := ThemeKey(req.Theme)
	tiles, err := p.store.GetCacheTiles(messageID, req.WidthPx, req.TileHeightPx, themeKey, policy)
	if err != nil {
		p.emitError(req, messageID, err)
		return
	}
	if len(tiles) > 0 {
		p.emit(Event{Kind: EvtTiles, MessageID: messageID, Tiles: tileRowsToTiles(tiles), TileHeightPx: req.TileHeightPx, WidthPx: req.WidthPx})
		return
	}

	result, err := p.renderer.Render(ctx, Request{
		MessageID:    messageID,
		WidthPx:      req.WidthPx,
		TileHeightPx: req.TileHeightPx,
		MaxTiles:     req.MaxTiles,
		Theme:        req.Theme,
		RemotePolicy: req.RemotePolicy,
		PreparedHTML: html,
	})
	if err != nil {
		p.emitError(req, messageID, err)
		return
	}

	rows := make([]store.TileRow, 0, len(result.Tiles))
	for _, t := range result.Tiles {
		rows = append(rows, store.TileRow{
			MessageID:    messageID,
			WidthPx:      req.WidthPx,
			TileHeightPx: req.TileHeightPx,
			ThemeKey:     themeKey,
			RemotePolicy: policy,
			TileIndex:    t.Index,
			HeightPx:     t.HeightPx,
			PNG:          t.PNG,
		})
	}
	if err := p.store.InsertCacheTiles(rows); err != nil {
		p.emitError(req, messageID, err)
		return
	}
	if err := p.store.PruneCacheTiles(tileCacheBudgetBytes); err != nil {
		p.log.Warn().Err(err).Msg("tile cache prune failed")
	}

	p.emit(Event{Kind: EvtTiles, MessageID: messageID, Tiles: result.Tiles, TileHeightPx: req.TileHeightPx, WidthPx: req.WidthPx})
}

func tileRowsToTiles(rows []store.TileRow) []Tile {
	out := make([]Tile, 0, len(rows))
	for _, r := range rows {
		out = append(out, Tile{Index: r.TileIndex, HeightPx: r.HeightPx, PNG: r.PNG})
	}
	return out
}

func (p *Pipeline) emitError(req Request, messageID int64, err error) {
	p.emit(Event{Kind: EvtError, MessageID: messageID, Error: err.Error(), TileHeightPx: req.TileHeightPx, WidthPx: req.WidthPx})
}

func (p *Pipeline) emit(evt Event) {
	select {
	case p.events <- evt:
	default:
		p.log.Warn().Int64("message_id", evt.MessageID).Msg("render event queue full, dropping")
	}
}
