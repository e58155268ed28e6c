// Package render implements the render pipeline (C6): HTML preparation →
// tile cache lookup → headless-browser rasterisation → slicing → cache
// insert + byte-budget prune, per spec.md §4.6. The Renderer interface and
// NullRenderer/HeadlessRenderer pair are translated from
// original_source/crates/ratmail-render's Renderer trait/ChromiumRenderer,
// not transliterated: chromedp replaces headless_chrome, image/png stays
// stdlib exactly as the original's image crate is the idiomatic choice.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/chromedp/chromedp"
)

// RemotePolicy mirrors store.RemotePolicy's two string values, kept as its
// own type here to avoid an import cycle with internal/store.
type RemotePolicy string

const (
	RemoteAllowed RemotePolicy = "allowed"
	RemoteBlocked RemotePolicy = "blocked"
)

// Request is one render invocation's parameters (spec.md §4.6
// RenderRequest).
type Request struct {
	RequestID    int64
	MessageIDs   []int64
	WidthPx      int
	TileHeightPx int
	MaxTiles     int // 0 means unlimited
	Theme        string
	RemotePolicy RemotePolicy

	// PreparedHTML is set only on the synthetic per-message Request handed
	// to Renderer.Render; callers submitting a batch leave it empty.
	PreparedHTML string
	MessageID    int64
}

// Tile is one horizontal slice of a rendered page.
type Tile struct {
	Index    int
	HeightPx int
	PNG      []byte
}

// Result is a completed render: every tile produced for one request.
type Result struct {
	Tiles []Tile
}

// Renderer is the rasterisation capability the render pipeline drives.
type Renderer interface {
	SupportsImages() bool
	Render(ctx context.Context, req Request) (Result, error)
}

// NullRenderer is the testable fallback: a solid placeholder image, ported
// from the original's NullRenderer so the pipeline runs without a browser.
type NullRenderer struct{}

// SupportsImages reports false: the placeholder carries no real content.
func (NullRenderer) SupportsImages() bool { return false }

// Render produces one striped placeholder tile sized to the request width.
func (NullRenderer) Render(ctx context.Context, req Request) (Result, error) {
	width := req.WidthPx
	if width < 1 {
		width = 1
	}
	height := 240

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := color.RGBA{R: 20, G: 22, B: 24, A: 255}
	stripe := color.RGBA{R: 60, G: 65, B: 70, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, base)
		}
	}
	for y := 0; y < height; y += 24 {
		for x := 0; x < width; x++ {
			img.Set(x, y, stripe)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("failed to encode placeholder png: %w", err)
	}

	return Result{Tiles: []Tile{{Index: 0, HeightPx: height, PNG: buf.Bytes()}}}, nil
}

// HeadlessRenderer drives a headless Chromium instance via chromedp,
// captures a full-page screenshot, and slices it into tiles.
type HeadlessRenderer struct {
	// WaitForImages bounds how long to wait for <img> elements to finish
	// loading before capturing (spec.md §4.6 renderer contract).
	WaitForImages time.Duration
}

// NewHeadlessRenderer creates a HeadlessRenderer with the default image
// load wait used by the original implementation (750ms).
func NewHeadlessRenderer() *HeadlessRenderer {
	return &HeadlessRenderer{WaitForImages: 750 * time.Millisecond}
}

// SupportsImages reports true: a real browser renders remote/inline images.
func (h *HeadlessRenderer) SupportsImages() bool { return true }

// Render wraps the prepared HTML in a minimal document, navigates a
// headless Chrome tab to it via a data: URL, waits for body + images, and
// captures a full-page PNG before slicing it into tiles.
func (h *HeadlessRenderer) Render(ctx context.Context, req Request) (Result, error) {
	width := req.WidthPx
	if width < 300 {
		width = 300
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(width, 900),
	)...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	wrapped := wrapHTML(width, req.PreparedHTML)

	var png []byte
	actions := []chromedp.Action{
		chromedp.Navigate("data:text/html;base64," + base64Encode(wrapped)),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	}
	if h.WaitForImages > 0 {
		actions = append(actions, waitForImagesLoaded(h.WaitForImages))
	}
	actions = append(actions, chromedp.FullScreenshot(&png, 100))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return Result{}, fmt.Errorf("headless render failed: %w", err)
	}

	img, err := decodePNG(png)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	tiles := sliceImageIntoTiles(img, req.TileHeightPx, req.MaxTiles)
	if len(tiles) == 0 {
		return Result{}, fmt.Errorf("headless renderer produced no tiles")
	}
	return Result{Tiles: tiles}, nil
}

func waitForImagesLoaded(deadline time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		for {
			var loaded bool
			err := chromedp.Evaluate(`Array.from(document.images).every(img => img.complete)`, &loaded).Do(waitCtx)
			if err == nil && loaded {
				return nil
			}
			select {
			case <-waitCtx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
}

func wrapHTML(widthPx int, body string) string {
	return fmt.Sprintf(`<!doctype html><html><head><meta charset="utf-8">`+
		`<style>html,body{margin:0;padding:0;width:%dpx;overflow:hidden;background:#ffffff;color:#111111;}`+
		`*{box-sizing:border-box;}img{max-width:100%%;height:auto;}</style></head><body>%s</body></html>`,
		widthPx, body)
}
