package ganim

import (
	"testing"
	"time"

	"github.com/gogpu/ganim/decode"
	"github.com/gogpu/ganim/internal/animtest"
	"github.com/gogpu/ganim/internal/pixpool"
)

func waitEntered(t *testing.T, frame int, entered <-chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("render of frame %d never started", frame)
	}
}

// TestNineFrameSession walks one animation through synchronous access,
// concurrent requests, window cancellation and a full drain.
func TestNineFrameSession(t *testing.T) {
	const w, h = 8, 8
	b := animtest.New(w, h, 1, animtest.FullFrames(w, h, 60, 30, 15, 30, 60, 30, 45, 15, 30))
	budget := 9 * pixpool.SizeOf(b.FrameInfo(0).Bounds)

	a, err := New(b, WithByteBudget(budget), WithWorkers(8))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	ctx := testContext(t)
	dec := a.Decoder()

	// Frame 0: miss, decode, then hit.
	if a.Frame(0) != nil {
		t.Fatal("Frame(0) hit on a fresh animation")
	}
	bmp, err := a.Render(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	bmp.Release()
	hit := a.Frame(0)
	if hit == nil {
		t.Fatal("Frame(0) missed after decoding")
	}
	hit.Release()

	// Frames 1 and 2 asynchronously.
	release := make(map[int]func())
	entered := make(map[int]<-chan struct{})
	for f := 1; f <= 6; f++ {
		release[f], entered[f] = b.Gate(f)
	}
	defer func() {
		for _, r := range release {
			r()
		}
	}()

	f1 := a.RequestFrame(1)
	f2 := a.RequestFrame(2)
	waitEntered(t, 1, entered[1])
	waitEntered(t, 2, entered[2])
	if got := dec.InFlight(); got != 2 {
		t.Fatalf("InFlight() = %d, want 2", got)
	}

	// Complete one of them.
	release[1]()
	if _, err := f1.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if !f1.Ready() || f2.Ready() {
		t.Fatalf("after one completion: f1 ready %v, f2 ready %v", f1.Ready(), f2.Ready())
	}

	// Prefetched frames 3-6 are in flight when playback jumps to frame 7.
	for f := 3; f <= 6; f++ {
		a.Prefetch(f)
		waitEntered(t, f, entered[f])
	}
	f7 := a.RequestFrame(7)
	if n := dec.CancelOutsideWindow([]int{7, 8}); n != 4 {
		t.Errorf("CancelOutsideWindow() = %d, want 4 (frames 3-6)", n)
	}

	// Drain everything: the canceled frames are wanted again before their
	// renders finish, so they complete normally.
	pending := []*decode.Future{f2, f7, a.RequestFrame(8)}
	for f := 3; f <= 6; f++ {
		pending = append(pending, a.RequestFrame(f))
	}
	for _, r := range release {
		r()
	}
	for _, f := range pending {
		bmp, err := f.Wait(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", f.Frame(), err)
		}
		bmp.Release()
	}
	f1bmp, _ := f1.Result()
	f1bmp.Release()

	if err := dec.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if got := a.Cache().Count(); got != 9 {
		t.Errorf("Count() = %d, want 9 (frames %v)", got, a.Cache().Frames())
	}
	if got := dec.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
	if got := a.Cache().SizeBytes(); got > budget {
		t.Errorf("SizeBytes() = %d exceeds budget %d", got, budget)
	}
	for i := range 9 {
		if got := b.RenderCount(i); got != 1 {
			t.Errorf("RenderCount(%d) = %d, want 1", i, got)
		}
	}
	if st := dec.Stats(); st.Revived != 4 || st.Discarded != 0 {
		t.Errorf("decode Stats() = %+v, want 4 revived, none discarded", st)
	}
}
