// Package testutil provides shared helpers for tests across packages.
// Database helpers skip automatically when their backing service is not
// configured, so unit tests never need external infrastructure.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// PNG encodes a solid-colour w x h PNG.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("testutil.PNG: " + err.Error())
	}
	return buf.Bytes()
}
