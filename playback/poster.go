package playback

import (
	"image"

	"github.com/disintegration/imaging"
)

// PosterFromImage returns a preview of img that fits in a maxSide square,
// keeping the aspect ratio. Images already small enough are copied as-is.
func PosterFromImage(img image.Image, maxSide int) *image.NRGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return imaging.Clone(img)
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}
