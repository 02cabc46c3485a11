package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

type discKind int

const (
	discBlack discKind = iota
	discWhite
	discLegal
	discBook
)

var discSVG = map[discKind]string{
	discBlack: `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
<defs><radialGradient id="g" cx="35%" cy="30%" r="70%">
<stop offset="0%" stop-color="#5a5a5a"/><stop offset="100%" stop-color="#0d0d0d"/>
</radialGradient></defs>
<circle cx="50" cy="52" r="41" style="fill: #000000" fill-opacity="0.35"/>
<circle cx="50" cy="49" r="41" fill="url(#g)" style="stroke: #000000" stroke-width="2"/>
</svg>`,
	discWhite: `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
<defs><radialGradient id="g" cx="35%" cy="30%" r="70%">
<stop offset="0%" stop-color="#ffffff"/><stop offset="100%" stop-color="#c9c9c9"/>
</radialGradient></defs>
<circle cx="50" cy="52" r="41" style="fill: #000000" fill-opacity="0.35"/>
<circle cx="50" cy="49" r="41" fill="url(#g)" stroke="#7a7a7a" stroke-width="2"/>
</svg>`,
	discLegal: `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
<circle cx="50" cy="50" r="11" fill="#1c1f2e" fill-opacity="0.45"/>
</svg>`,
	discBook: `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
<circle cx="50" cy="50" r="30" fill="none" stroke="#ffe478" stroke-width="7"/>
</svg>`,
}

type discCacheKey struct {
	kind discKind
	size int
}

var (
	discCache   = map[discCacheKey]image.Image{}
	discCacheMu sync.RWMutex
)

// renderDiscImage rasterises one glyph at size x size pixels. Results are cached per size.
func renderDiscImage(kind discKind, size int) (image.Image, error) {
	key := discCacheKey{kind: kind, size: size}

	discCacheMu.RLock()
	if img, ok := discCache[key]; ok {
		discCacheMu.RUnlock()
		return img, nil
	}
	discCacheMu.RUnlock()

	src, ok := discSVG[kind]
	if !ok {
		return nil, fmt.Errorf("unknown disc kind %d", kind)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG([]byte(src))))
	if err != nil {
		return nil, fmt.Errorf("parse disc svg: %w", err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	discCacheMu.Lock()
	discCache[key] = img
	discCacheMu.Unlock()

	return img, nil
}

// sanitizeSVG normalises the "prop: value" spellings oksvg does not parse.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	return fixed
}
