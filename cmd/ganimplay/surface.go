package main

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// pngSurface writes every drawn frame to dir as a numbered PNG.
type pngSurface struct {
	dir   string
	scale float64
	seq   int
	// frames holds the animation frame index of every written file.
	frames []int
}

func (s *pngSurface) DrawFrame(frame int, img image.Image) error {
	out := scaled(img, s.scale)
	path := filepath.Join(s.dir, fmt.Sprintf("tick_%05d.png", s.seq))
	s.seq++
	s.frames = append(s.frames, frame)
	return imaging.Save(out, path)
}

// scaled returns img resized by factor with a Catmull-Rom filter, or a copy
// of img when factor is 1. The result never aliases img.
func scaled(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	if factor == 1 {
		return imaging.Clone(img)
	}
	w := max(int(float64(b.Dx())*factor+0.5), 1)
	h := max(int(float64(b.Dy())*factor+0.5), 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// countingSurface only records what would have been drawn.
type countingSurface struct {
	draws  int
	poster int
}

func (s *countingSurface) DrawFrame(frame int, _ image.Image) error {
	s.draws++
	if frame < 0 {
		s.poster++
	}
	return nil
}
