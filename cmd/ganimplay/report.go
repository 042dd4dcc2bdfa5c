package main

import (
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/ganim"
	"github.com/gogpu/ganim/playback"
)

type report struct {
	Format   string
	Width    int
	Height   int
	Frames   int
	Loops    int
	Duration time.Duration
	Played   time.Duration
	Player   playback.Stats
	Anim     ganim.Stats
}

// write prints r with grouped digits.
func (r report) write(w io.Writer) {
	p := message.NewPrinter(language.English)

	loops, total := "forever", "infinite"
	if r.Loops > 0 {
		loops = p.Sprintf("%d", r.Loops)
		total = r.Duration.String()
	}

	p.Fprintf(w, "animation  %s %dx%d, %d frames, loops %s, length %s\n",
		r.Format, r.Width, r.Height, r.Frames, loops, total)
	p.Fprintf(w, "played     %s\n", r.Played)

	pl := r.Player
	p.Fprintf(w, "ticks      %d (hit %d, async %d, fallback %d, poster %d, nothing %d)\n",
		pl.Ticks, pl.Hits, pl.Async, pl.Fallbacks, pl.Posters, pl.Nothing)
	p.Fprintf(w, "frames     dropped %d, stale %d, failed %d\n", pl.Dropped, pl.Stale, pl.Failures)

	c := r.Anim.Cache
	p.Fprintf(w, "cache      %d frames, %d / %d bytes, hit rate %.1f%%, %d evictions, %d rejections\n",
		c.Len, c.Bytes, c.Budget, c.HitRate*100, c.Evictions, c.Rejections)

	d := r.Anim.Decode
	p.Fprintf(w, "decode     %d requests, %d started, %d completed, %d failed, %d canceled, %d revived\n",
		d.Requests, d.Started, d.Completed, d.Failed, d.Canceled, d.Revived)
}
