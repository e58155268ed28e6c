package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

func base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// sliceImageIntoTiles horizontally slices img into tiles of exactly
// tileHeight pixels (the last tile may be shorter), stopping at maxTiles
// when set (spec.md §4.6 step 5).
func sliceImageIntoTiles(img image.Image, tileHeight, maxTiles int) []Tile {
	if tileHeight <= 0 {
		tileHeight = 1
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var tiles []Tile
	index := 0
	for y := 0; y < height; y += tileHeight {
		if maxTiles > 0 && len(tiles) >= maxTiles {
			break
		}
		h := tileHeight
		if y+h > height {
			h = height - y
		}

		tileImg := image.NewRGBA(image.Rect(0, 0, width, h))
		draw.Draw(tileImg, tileImg.Bounds(), img, bounds.Min.Add(image.Pt(0, y)), draw.Src)

		var buf bytes.Buffer
		if err := png.Encode(&buf, tileImg); err != nil {
			continue
		}
		tiles = append(tiles, Tile{Index: index, HeightPx: h, PNG: buf.Bytes()})
		index++
	}
	return tiles
}

// ThemeKey derives the cache-busting theme key (spec.md §4.6 step 3: "the
// theme name suffixed with a format version").
func ThemeKey(theme string) string {
	return fmt.Sprintf("%s:bgv2", theme)
}
