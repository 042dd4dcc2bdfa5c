package main

import (
	"image"
	"image/color"
	"io"

	"github.com/HugoSmits86/nativewebp"
)

// synthesize writes an animated WebP of a square bouncing over a striped
// background. Every frame after the first only covers the square's path,
// and every other frame is cleared after display, so playing it exercises
// partial frames and both disposal methods.
func synthesize(w io.Writer, frames, size int) error {
	size = max(size&^1, 16)
	side := size / 4 &^ 1

	ani := &nativewebp.Animation{LoopCount: 0}

	bg := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			c := color.NRGBA{R: 30, G: 30, B: 60, A: 255}
			if (x/8+y/8)%2 == 0 {
				c = color.NRGBA{R: 60, G: 60, B: 110, A: 255}
			}
			bg.SetNRGBA(x, y, c)
		}
	}
	ani.Images = append(ani.Images, bg)
	ani.Durations = append(ani.Durations, 100)
	ani.Disposals = append(ani.Disposals, 0)

	span := size - side
	for i := 1; i < frames; i++ {
		pos := (i * 2 * span / frames) &^ 1
		if pos > span {
			pos = 2*span - pos
		}
		r := image.Rect(pos, pos, pos+side, pos+side)
		sq := image.NewNRGBA(r)
		c := color.NRGBA{R: uint8(255 * i / frames), G: 200, B: 40, A: 220}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				sq.SetNRGBA(x, y, c)
			}
		}
		ani.Images = append(ani.Images, sq)
		ani.Durations = append(ani.Durations, 60)
		ani.Disposals = append(ani.Disposals, uint(i%2))
	}
	return nativewebp.EncodeAll(w, ani, nil)
}
