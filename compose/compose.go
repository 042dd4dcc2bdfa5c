package compose

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/ganim/backend"
	"github.com/gogpu/ganim/cache"
	"github.com/gogpu/ganim/internal/logging"
	"github.com/gogpu/ganim/internal/pixpool"
)

// Lookup returns a retained handle to the cached composited frame, or nil.
// Compositor releases every handle it receives.
type Lookup func(frame int) *cache.Bitmap

// need classifies a frame during the backward walk.
type need uint8

const (
	// needRequired: the canvas after this frame feeds the next frame.
	needRequired need = iota
	// needNotRequired: the frame leaves an empty canvas behind it.
	needNotRequired
	// needSkip: the frame restores the canvas it found.
	needSkip
	// needAbort: unknown disposal, start from this frame.
	needAbort
)

// Compositor renders composited frames of one backend.
//
// Compositor is stateless apart from the buffer pool and is safe for
// concurrent use as long as the backend is.
type Compositor struct {
	b      backend.Backend
	pool   *pixpool.Pool
	canvas image.Rectangle
}

// New creates a compositor for b. Scratch and result buffers come from
// pool; if pool is nil a private one is created.
func New(b backend.Backend, pool *pixpool.Pool) *Compositor {
	if pool == nil {
		pool = pixpool.New(4)
	}
	return &Compositor{
		b:      b,
		pool:   pool,
		canvas: backend.CanvasBounds(b),
	}
}

// Backend returns the backend frames are rendered from.
func (c *Compositor) Backend() backend.Backend { return c.b }

// Pool returns the buffer pool results are allocated from. Callers hand
// finished canvases back with Pool().Put.
func (c *Compositor) Pool() *pixpool.Pool { return c.pool }

// Compose returns the full canvas for frame. lookup may be nil; canceled,
// if not nil, is polled before each replay step and aborts the composition
// with ErrCanceled when it reports true.
//
// The returned image belongs to the caller. On error no image is returned.
func (c *Compositor) Compose(frame int, lookup Lookup, canceled func() bool) (*image.RGBA, error) {
	if err := backend.CheckIndex(c.b, frame); err != nil {
		return nil, &CompositionError{Target: frame, Frame: frame, Err: err}
	}

	canvas := c.pool.Get(c.canvas)
	if canvas == nil {
		return nil, &CompositionError{Target: frame, Frame: frame, Err: fmt.Errorf("empty canvas %v", c.canvas)}
	}

	start := frame
	if !c.isKeyFrame(frame) {
		start = c.prepareCanvas(frame-1, canvas, lookup)
	}
	logging.L().Debug("compose: replay", "frame", frame, "from", start)

	for i := start; i < frame; i++ {
		if canceled != nil && canceled() {
			c.pool.Put(canvas)
			return nil, ErrCanceled
		}
		info := c.b.FrameInfo(i)
		if info.Dispose == backend.DisposePrevious {
			continue
		}
		if err := c.drawFrame(i, info, canvas); err != nil {
			c.pool.Put(canvas)
			return nil, &CompositionError{Target: frame, Frame: i, Err: err}
		}
		if info.Dispose == backend.DisposeBackground {
			c.clearRect(canvas, info.Bounds)
		}
	}

	if canceled != nil && canceled() {
		c.pool.Put(canvas)
		return nil, ErrCanceled
	}
	if err := c.drawFrame(frame, c.b.FrameInfo(frame), canvas); err != nil {
		c.pool.Put(canvas)
		return nil, &CompositionError{Target: frame, Frame: frame, Err: err}
	}
	return canvas, nil
}

// StartFrame returns the frame replay would start from when composing
// frame, and whether the canvas before it comes from a cached frame.
// has reports whether a frame is cached.
func (c *Compositor) StartFrame(frame int, has func(int) bool) (start int, cached bool) {
	if c.isKeyFrame(frame) {
		return frame, false
	}
	for i := frame - 1; i >= 0; i-- {
		switch c.needed(i) {
		case needRequired:
			if has != nil && has(i) {
				return i + 1, true
			}
			if c.isKeyFrame(i) {
				return i, false
			}
		case needNotRequired:
			return i + 1, false
		case needAbort:
			return i, false
		}
	}
	return 0, false
}

// prepareCanvas walks back from prev looking for the canvas state the
// replay can start from. A cached ancestor is copied onto canvas with its
// disposal applied. It returns the first frame still to be replayed.
func (c *Compositor) prepareCanvas(prev int, canvas *image.RGBA, lookup Lookup) int {
	for i := prev; i >= 0; i-- {
		switch c.needed(i) {
		case needRequired:
			if lookup != nil {
				if bmp := lookup(i); bmp != nil {
					ok := c.copyCached(bmp, canvas)
					bmp.Release()
					if ok {
						if info := c.b.FrameInfo(i); info.Dispose == backend.DisposeBackground {
							c.clearRect(canvas, info.Bounds)
						}
						return i + 1
					}
				}
			}
			if c.isKeyFrame(i) {
				return i
			}
		case needNotRequired:
			return i + 1
		case needAbort:
			return i
		case needSkip:
		}
	}
	return 0
}

func (c *Compositor) copyCached(bmp *cache.Bitmap, canvas *image.RGBA) bool {
	src := bmp.Image()
	if src == nil || src.Bounds() != canvas.Bounds() {
		return false
	}
	copy(canvas.Pix, src.Pix)
	return true
}

func (c *Compositor) needed(i int) need {
	info := c.b.FrameInfo(i)
	switch info.Dispose {
	case backend.DisposeNone:
		return needRequired
	case backend.DisposeBackground:
		if info.CoversCanvas(c.canvas.Dx(), c.canvas.Dy()) {
			return needNotRequired
		}
		return needRequired
	case backend.DisposePrevious:
		return needSkip
	default:
		return needAbort
	}
}

func (c *Compositor) isKeyFrame(i int) bool {
	if i == 0 {
		return true
	}
	w, h := c.canvas.Dx(), c.canvas.Dy()
	cur := c.b.FrameInfo(i)
	if cur.Blend == backend.BlendNone && cur.CoversCanvas(w, h) {
		return true
	}
	prev := c.b.FrameInfo(i - 1)
	return prev.Dispose == backend.DisposeBackground && prev.CoversCanvas(w, h)
}

// drawFrame renders frame i's own pixels and combines them with canvas.
func (c *Compositor) drawFrame(i int, info backend.FrameInfo, canvas *image.RGBA) (err error) {
	r := info.Bounds.Intersect(c.canvas)
	if r.Empty() {
		return nil
	}
	scratch := c.pool.Get(r)
	defer c.pool.Put(scratch)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("backend panic: %v", p)
		}
	}()
	if err := c.b.RenderFrame(i, scratch); err != nil {
		return err
	}

	op := draw.Over
	if info.Blend == backend.BlendNone {
		op = draw.Src
	}
	draw.Draw(canvas, r, scratch, r.Min, op)
	return nil
}

func (c *Compositor) clearRect(canvas *image.RGBA, r image.Rectangle) {
	r = r.Intersect(c.canvas)
	if r.Empty() {
		return
	}
	draw.Draw(canvas, r, image.Transparent, image.Point{}, draw.Src)
}
