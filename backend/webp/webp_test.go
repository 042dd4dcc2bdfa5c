package webp

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/HugoSmits86/nativewebp"

	"github.com/gogpu/ganim/backend"
)

func fill(r image.Rectangle, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

// threeFrames encodes an 8x8 animation: a red canvas, a green square at
// (2,2) cleared after display, and a blue square at (4,4).
func threeFrames(t *testing.T, loops uint16) []byte {
	t.Helper()
	ani := &nativewebp.Animation{
		Images: []image.Image{
			fill(image.Rect(0, 0, 8, 8), red),
			fill(image.Rect(2, 2, 6, 6), green),
			fill(image.Rect(4, 4, 8, 8), blue),
		},
		Durations: []uint{40, 70, 100},
		Disposals: []uint{0, 1, 0},
		LoopCount: loops,
	}
	var buf bytes.Buffer
	if err := nativewebp.EncodeAll(&buf, ani, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecode_Animation(t *testing.T) {
	b, err := Decode(threeFrames(t, 0), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if b.FrameCount() != 3 || b.Width() != 8 || b.Height() != 8 {
		t.Fatalf("FrameCount() = %d, canvas %dx%d", b.FrameCount(), b.Width(), b.Height())
	}
	if b.LoopCount() != backend.LoopForever {
		t.Errorf("LoopCount() = %d, want LoopForever", b.LoopCount())
	}

	wantDur := []time.Duration{40 * time.Millisecond, 70 * time.Millisecond, 100 * time.Millisecond}
	wantInfo := []backend.FrameInfo{
		{Bounds: image.Rect(0, 0, 8, 8), Dispose: backend.DisposeNone, Blend: backend.BlendAlpha},
		{Bounds: image.Rect(2, 2, 6, 6), Dispose: backend.DisposeBackground, Blend: backend.BlendAlpha},
		{Bounds: image.Rect(4, 4, 8, 8), Dispose: backend.DisposeNone, Blend: backend.BlendAlpha},
	}
	for i := range 3 {
		if got := b.FrameDuration(i); got != wantDur[i] {
			t.Errorf("FrameDuration(%d) = %v, want %v", i, got, wantDur[i])
		}
		if got := b.FrameInfo(i); got != wantInfo[i] {
			t.Errorf("FrameInfo(%d) = %+v, want %+v", i, got, wantInfo[i])
		}
	}
}

func TestDecode_LoopCount(t *testing.T) {
	b, err := Decode(threeFrames(t, 2), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if b.LoopCount() != 2 {
		t.Errorf("LoopCount() = %d, want 2", b.LoopCount())
	}
}

func TestRenderFrame(t *testing.T) {
	b, err := Decode(threeFrames(t, 0), Options{})
	if err != nil {
		t.Fatal(err)
	}

	dst := image.NewRGBA(b.FrameInfo(1).Bounds)
	if err := b.RenderFrame(1, dst); err != nil {
		t.Fatalf("RenderFrame(1) error = %v", err)
	}
	for _, p := range []image.Point{{2, 2}, {5, 5}} {
		if got := dst.RGBAAt(p.X, p.Y); got != (color.RGBA{G: 255, A: 255}) {
			t.Errorf("pixel %v = %v, want green", p, got)
		}
	}

	// A second render comes from the decoded frame cache.
	if err := b.RenderFrame(1, dst); err != nil {
		t.Fatal(err)
	}
	if hits, misses := b.DecodedStats(); hits != 1 || misses != 1 {
		t.Errorf("DecodedStats() = %d hits, %d misses, want 1, 1", hits, misses)
	}

	if err := b.RenderFrame(3, dst); !errors.Is(err, backend.ErrFrameIndex) {
		t.Errorf("RenderFrame(3) error = %v, want ErrFrameIndex", err)
	}
}

func TestRenderFrame_ClippedDestination(t *testing.T) {
	b, err := Decode(threeFrames(t, 0), Options{DecodedFrames: -1})
	if err != nil {
		t.Fatal(err)
	}
	dst := image.NewRGBA(image.Rect(4, 4, 6, 6))
	if err := b.RenderFrame(1, dst); err != nil {
		t.Fatal(err)
	}
	if got := dst.RGBAAt(5, 5); got != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("pixel (5,5) = %v, want green", got)
	}
	if hits, misses := b.DecodedStats(); hits != 0 || misses != 0 {
		t.Errorf("disabled cache reported %d hits, %d misses", hits, misses)
	}
}

func TestDecode_Still(t *testing.T) {
	for _, extended := range []bool{false, true} {
		var buf bytes.Buffer
		opts := &nativewebp.Options{UseExtendedFormat: extended}
		if err := nativewebp.Encode(&buf, fill(image.Rect(0, 0, 5, 3), blue), opts); err != nil {
			t.Fatal(err)
		}
		b, err := Decode(buf.Bytes(), Options{})
		if err != nil {
			t.Fatalf("extended=%v: Decode() error = %v", extended, err)
		}
		if b.FrameCount() != 1 || b.LoopCount() != 1 || b.FrameDuration(0) != StillDuration {
			t.Errorf("extended=%v: %d frames, %d loops, %v", extended, b.FrameCount(), b.LoopCount(), b.FrameDuration(0))
		}
		info := b.FrameInfo(0)
		if !info.CoversCanvas(5, 3) || info.Blend != backend.BlendNone {
			t.Errorf("extended=%v: FrameInfo(0) = %+v", extended, info)
		}

		dst := image.NewRGBA(image.Rect(0, 0, 5, 3))
		if err := b.RenderFrame(0, dst); err != nil {
			t.Fatal(err)
		}
		if got := dst.RGBAAt(4, 2); got != (color.RGBA{B: 255, A: 255}) {
			t.Errorf("extended=%v: pixel = %v, want blue", extended, got)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	data := threeFrames(t, 0)
	tests := map[string][]byte{
		"empty":     nil,
		"not riff":  []byte("GIF89a......"),
		"truncated": data[:40],
		"no frames": data[:riffHeaderSize+chunkHeaderSize+vp8xChunkSize],
	}
	for name, in := range tests {
		if _, err := Decode(in, Options{}); err == nil {
			t.Errorf("%s: Decode() error = nil", name)
		}
	}
}

func TestWrap_LossyWithAlpha(t *testing.T) {
	f := &frame{
		rect:      image.Rect(0, 0, 300, 2),
		bitstream: []byte{1, 2, 3},
		alpha:     []byte{9},
	}
	out := wrap(f)
	c, err := parse(out)
	if err != nil {
		t.Fatalf("parse(wrap()) error = %v", err)
	}
	got := c.frames[0]
	if c.width != 300 || c.height != 2 {
		t.Errorf("canvas = %dx%d, want 300x2", c.width, c.height)
	}
	if !bytes.Equal(got.bitstream, f.bitstream) || !bytes.Equal(got.alpha, f.alpha) || got.lossless {
		t.Errorf("round trip frame = %+v", got)
	}
}

func TestRegistered(t *testing.T) {
	b, name, err := backend.Open(threeFrames(t, 0))
	if err != nil {
		t.Fatal(err)
	}
	if name != "webp" || b.FrameCount() != 3 {
		t.Errorf("Open() = %q with %d frames", name, b.FrameCount())
	}
}
