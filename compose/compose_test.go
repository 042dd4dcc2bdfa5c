package compose

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/ganim/backend"
	"github.com/gogpu/ganim/cache"
	"github.com/gogpu/ganim/internal/animtest"
	"github.com/gogpu/ganim/internal/pixpool"
)

var transparent = color.RGBA{}

func frame(r image.Rectangle, d backend.DisposeMethod, b backend.BlendOp) animtest.Frame {
	return animtest.Frame{
		Duration: 10 * time.Millisecond,
		Info:     backend.FrameInfo{Bounds: r, Dispose: d, Blend: b},
	}
}

func full() image.Rectangle { return image.Rect(0, 0, 4, 4) }

func newCompositor(frames ...animtest.Frame) (*Compositor, *animtest.Backend) {
	b := animtest.New(4, 4, 1, frames)
	return New(b, pixpool.New(4)), b
}

func mustCompose(t *testing.T, c *Compositor, i int, lookup Lookup) *image.RGBA {
	t.Helper()
	img, err := c.Compose(i, lookup, nil)
	if err != nil {
		t.Fatalf("Compose(%d) error = %v", i, err)
	}
	if img.Bounds() != full() {
		t.Fatalf("Compose(%d) bounds = %v, want %v", i, img.Bounds(), full())
	}
	return img
}

func checkPixel(t *testing.T, img *image.RGBA, x, y int, want color.RGBA) {
	t.Helper()
	if got := img.RGBAAt(x, y); got != want {
		t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

func checkRenders(t *testing.T, b *animtest.Backend, want ...int64) {
	t.Helper()
	for i, w := range want {
		if got := b.RenderCount(i); got != w {
			t.Errorf("RenderCount(%d) = %d, want %d", i, got, w)
		}
	}
}

// lookupOf serves composited frames from a map.
func lookupOf(frames map[int]*image.RGBA) (Lookup, map[int]*cache.Bitmap) {
	bmps := make(map[int]*cache.Bitmap, len(frames))
	for i, img := range frames {
		bmps[i] = cache.NewBitmap(i, img, nil)
	}
	return func(i int) *cache.Bitmap {
		if b, ok := bmps[i]; ok {
			return b.Retain()
		}
		return nil
	}, bmps
}

func TestCompose_KeyFramesRenderAlone(t *testing.T) {
	b := animtest.New(4, 4, 1, animtest.FullFrames(4, 4, 10, 10, 10, 10, 10, 10))
	c := New(b, nil)

	img := mustCompose(t, c, 5, nil)

	checkPixel(t, img, 2, 2, animtest.FrameColor(5))
	if b.TotalRenders() != 1 {
		t.Errorf("TotalRenders() = %d, want 1", b.TotalRenders())
	}
}

func TestCompose_ReplaysFromKeyFrame(t *testing.T) {
	c, b := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 2, 2), backend.DisposeNone, backend.BlendAlpha),
		frame(image.Rect(2, 2, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)

	img := mustCompose(t, c, 2, nil)

	checkPixel(t, img, 0, 0, animtest.FrameColor(1))
	checkPixel(t, img, 3, 3, animtest.FrameColor(2))
	checkPixel(t, img, 3, 0, animtest.FrameColor(0))
	checkRenders(t, b, 1, 1, 1)
}

func TestCompose_StartsFromCachedAncestor(t *testing.T) {
	c, b := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 2, 2), backend.DisposeNone, backend.BlendAlpha),
		frame(image.Rect(2, 2, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)
	one := mustCompose(t, c, 1, nil)
	lookup, bmps := lookupOf(map[int]*image.RGBA{1: one})

	if start, cached := c.StartFrame(2, func(i int) bool { return i == 1 }); start != 2 || !cached {
		t.Errorf("StartFrame(2) = (%d, %v), want (2, true)", start, cached)
	}

	img := mustCompose(t, c, 2, lookup)

	checkPixel(t, img, 0, 0, animtest.FrameColor(1))
	checkPixel(t, img, 3, 3, animtest.FrameColor(2))
	checkPixel(t, img, 3, 0, animtest.FrameColor(0))
	// Frames 0 and 1 were rendered once, for the first composition only.
	checkRenders(t, b, 1, 1, 1)
	if bmps[1].RefCount() != 1 {
		t.Errorf("lookup handle not released: RefCount() = %d", bmps[1].RefCount())
	}
}

func TestCompose_CachedAncestorDisposedToBackground(t *testing.T) {
	c, _ := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 2, 2), backend.DisposeBackground, backend.BlendAlpha),
		frame(image.Rect(2, 2, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)
	one := mustCompose(t, c, 1, nil)
	lookup, _ := lookupOf(map[int]*image.RGBA{1: one})

	fromCache := mustCompose(t, c, 2, lookup)
	fromScratch := mustCompose(t, c, 2, nil)

	checkPixel(t, fromCache, 0, 0, transparent)
	checkPixel(t, fromCache, 3, 0, animtest.FrameColor(0))
	if !bytes.Equal(fromCache.Pix, fromScratch.Pix) {
		t.Error("composition from cache differs from full replay")
	}
}

func TestCompose_DisposeBackgroundPartial(t *testing.T) {
	c, _ := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 2, 2), backend.DisposeBackground, backend.BlendAlpha),
		frame(image.Rect(3, 3, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)

	img := mustCompose(t, c, 2, nil)

	checkPixel(t, img, 1, 1, transparent)
	checkPixel(t, img, 2, 2, animtest.FrameColor(0))
	checkPixel(t, img, 3, 3, animtest.FrameColor(2))
}

func TestCompose_DisposeBackgroundFullCanvasMakesKeyFrame(t *testing.T) {
	c, b := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(full(), backend.DisposeBackground, backend.BlendAlpha),
		frame(image.Rect(0, 0, 1, 1), backend.DisposeNone, backend.BlendAlpha),
	)

	if !c.isKeyFrame(2) {
		t.Fatal("frame after full-canvas background disposal is not a key frame")
	}
	img := mustCompose(t, c, 2, nil)

	checkPixel(t, img, 0, 0, animtest.FrameColor(2))
	checkPixel(t, img, 2, 2, transparent)
	checkRenders(t, b, 0, 0, 1)
}

func TestCompose_DisposePrevious(t *testing.T) {
	c, b := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 2, 2), backend.DisposePrevious, backend.BlendAlpha),
		frame(image.Rect(3, 3, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)

	img := mustCompose(t, c, 2, nil)

	checkPixel(t, img, 0, 0, animtest.FrameColor(0))
	checkPixel(t, img, 3, 3, animtest.FrameColor(2))
	checkRenders(t, b, 1, 0, 1)

	// Frame 1 as a target is drawn normally.
	one := mustCompose(t, c, 1, nil)
	checkPixel(t, one, 0, 0, animtest.FrameColor(1))
}

func TestCompose_DisposePreviousChainToFrameZero(t *testing.T) {
	c, b := newCompositor(
		frame(full(), backend.DisposePrevious, backend.BlendAlpha),
		frame(image.Rect(0, 0, 2, 2), backend.DisposePrevious, backend.BlendAlpha),
		frame(image.Rect(3, 3, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)

	if start, cached := c.StartFrame(2, nil); start != 0 || cached {
		t.Errorf("StartFrame(2) = (%d, %v), want (0, false)", start, cached)
	}
	img := mustCompose(t, c, 2, nil)

	// Every earlier frame reverts, leaving the empty canvas.
	checkPixel(t, img, 0, 0, transparent)
	checkPixel(t, img, 1, 2, transparent)
	checkPixel(t, img, 3, 3, animtest.FrameColor(2))
	checkRenders(t, b, 0, 0, 1)
}

func TestCompose_BlendModes(t *testing.T) {
	half := color.RGBA{B: 128, A: 128}

	over := animtest.New(4, 4, 1, []animtest.Frame{
		frame(full(), backend.DisposeNone, backend.BlendNone),
		{Duration: time.Millisecond, Color: half, Info: backend.FrameInfo{Bounds: full(), Blend: backend.BlendAlpha}},
	})
	img := mustCompose(t, New(over, nil), 1, nil)
	if got := img.RGBAAt(1, 1); got.A != 255 || got == half {
		t.Errorf("alpha blend pixel = %v, want opaque mix", got)
	}

	src := animtest.New(4, 4, 1, []animtest.Frame{
		frame(full(), backend.DisposeNone, backend.BlendNone),
		{Duration: time.Millisecond, Color: half, Info: backend.FrameInfo{Bounds: image.Rect(0, 0, 2, 4), Blend: backend.BlendNone}},
	})
	img = mustCompose(t, New(src, nil), 1, nil)
	checkPixel(t, img, 1, 1, half)
	checkPixel(t, img, 3, 1, animtest.FrameColor(0))
}

func TestCompose_ClipsFrameToCanvas(t *testing.T) {
	c, _ := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(3, 3, 9, 9), backend.DisposeNone, backend.BlendAlpha),
		frame(image.Rect(10, 10, 12, 12), backend.DisposeNone, backend.BlendAlpha),
	)

	img := mustCompose(t, c, 2, nil)

	checkPixel(t, img, 3, 3, animtest.FrameColor(1))
	checkPixel(t, img, 2, 2, animtest.FrameColor(0))
}

func TestCompose_Deterministic(t *testing.T) {
	c, _ := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 3, 3), backend.DisposeBackground, backend.BlendAlpha),
		frame(image.Rect(1, 1, 4, 4), backend.DisposePrevious, backend.BlendAlpha),
		frame(image.Rect(0, 2, 4, 4), backend.DisposeNone, backend.BlendAlpha),
		frame(image.Rect(2, 0, 4, 2), backend.DisposeNone, backend.BlendNone),
	)

	for i := range 5 {
		a := mustCompose(t, c, i, nil)
		b := mustCompose(t, c, i, nil)
		if !bytes.Equal(a.Pix, b.Pix) {
			t.Errorf("Compose(%d) is not deterministic", i)
		}
	}
}

func TestCompose_RenderFailure(t *testing.T) {
	c, b := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 2, 2), backend.DisposeNone, backend.BlendAlpha),
		frame(image.Rect(2, 2, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)
	b.Fail(1, nil)

	img, err := c.Compose(2, nil, nil)
	if img != nil {
		t.Error("Compose returned an image alongside an error")
	}
	if !errors.Is(err, ErrCompositionFailed) || !errors.Is(err, animtest.ErrRender) {
		t.Fatalf("Compose(2) error = %v, want composition failure wrapping ErrRender", err)
	}
	var ce *CompositionError
	if !errors.As(err, &ce) || ce.Frame != 1 || ce.Target != 2 {
		t.Errorf("CompositionError = %+v, want Frame 1 Target 2", ce)
	}
	if b.RenderCount(2) != 0 {
		t.Error("target rendered after an ancestor failed")
	}

	b.Heal(1)
	mustCompose(t, c, 2, nil)
}

func TestCompose_IndexOutOfRange(t *testing.T) {
	c, _ := newCompositor(frame(full(), backend.DisposeNone, backend.BlendNone))

	for _, i := range []int{-1, 1} {
		_, err := c.Compose(i, nil, nil)
		if !errors.Is(err, ErrCompositionFailed) || !errors.Is(err, backend.ErrFrameIndex) {
			t.Errorf("Compose(%d) error = %v", i, err)
		}
	}
}

func TestCompose_Canceled(t *testing.T) {
	c, b := newCompositor(
		frame(full(), backend.DisposeNone, backend.BlendNone),
		frame(image.Rect(0, 0, 2, 2), backend.DisposeNone, backend.BlendAlpha),
		frame(image.Rect(0, 0, 2, 2), backend.DisposeNone, backend.BlendAlpha),
		frame(image.Rect(2, 2, 4, 4), backend.DisposeNone, backend.BlendAlpha),
	)

	_, err := c.Compose(3, nil, func() bool { return true })
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Compose error = %v, want ErrCanceled", err)
	}
	if b.TotalRenders() != 0 {
		t.Errorf("TotalRenders() = %d after immediate cancel", b.TotalRenders())
	}

	// Cancel after two replay steps.
	polls := 0
	_, err = c.Compose(3, nil, func() bool {
		polls++
		return polls > 2
	})
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Compose error = %v, want ErrCanceled", err)
	}
	checkRenders(t, b, 1, 1, 0, 0)
}
