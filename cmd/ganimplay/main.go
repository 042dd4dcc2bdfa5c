// Command ganimplay plays an animated GIF or WebP through the ganim frame
// cache and reports how playback went.
//
// By default the animation is played on a simulated clock that waits for
// every decode, so the run is as fast as decoding allows and the drawn
// frames are deterministic. -realtime plays against the wall clock instead.
//
//	ganimplay -in loader.webp -for 5s -out frames/
//	ganimplay -synth synthetic.webp
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/gogpu/ganim"
	_ "github.com/gogpu/ganim/backend/gif"
	_ "github.com/gogpu/ganim/backend/webp"
	"github.com/gogpu/ganim/playback"
	"github.com/gogpu/ganim/schedule"
)

func main() {
	var (
		in         = flag.String("in", "", "animated GIF or WebP to play")
		configPath = flag.String("config", "", "YAML config file; flags override it")
		forDur     = flag.Duration("for", 0, "play at most this long (animation time)")
		out        = flag.String("out", "", "write every drawn frame as PNG into this directory")
		budget     = flag.Int64("budget", 0, "frame cache budget in bytes")
		prefetch   = flag.Int("prefetch", -1, "frames decoded ahead of the current one")
		workers    = flag.Int("workers", 0, "decode workers")
		scale      = flag.Float64("scale", 0, "scale factor for written frames")
		poster     = flag.Int("poster", -1, "write a poster PNG of at most this size and show it while decoding")
		realtime   = flag.Bool("realtime", false, "play against the wall clock")
		synth      = flag.String("synth", "", "write a synthetic animated WebP to this path and exit")
		synthN     = flag.Int("synth-frames", 24, "frame count for -synth")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *synth != "" {
		if err := writeSynth(*synth, *synthN); err != nil {
			log.Fatalf("synth: %v", err)
		}
		log.Printf("wrote %s (%d frames)", *synth, *synthN)
		return
	}

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "in":
			cfg.Input = *in
		case "for":
			cfg.For = *forDur
		case "out":
			cfg.Out = *out
		case "budget":
			cfg.Budget = *budget
		case "prefetch":
			cfg.Prefetch = *prefetch
		case "workers":
			cfg.Workers = *workers
		case "scale":
			cfg.Scale = *scale
		case "poster":
			cfg.Poster = *poster
		case "realtime":
			cfg.Realtime = *realtime
		case "v":
			cfg.Verbose = *verbose
		}
	})
	if cfg.Input == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := cfg.validate(); err != nil {
		log.Fatal(err)
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	ganim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	r, err := play(cfg)
	if err != nil {
		log.Fatal(err)
	}
	r.write(os.Stdout)
}

func writeSynth(path string, frames int) error {
	if frames < 1 {
		return fmt.Errorf("frame count must be positive, got %d", frames)
	}
	var buf bytes.Buffer
	if err := synthesize(&buf, frames, 128); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644) //nolint:gosec // output is a public image
}

func play(cfg Config) (report, error) {
	a, err := ganim.OpenFile(cfg.Input,
		ganim.WithByteBudget(cfg.Budget),
		ganim.WithPrefetch(cfg.Prefetch),
		ganim.WithWorkers(cfg.Workers))
	if err != nil {
		return report{}, err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.For+time.Minute)
	defer cancel()

	if cfg.Out != "" {
		if err := os.MkdirAll(cfg.Out, 0o755); err != nil {
			return report{}, err
		}
	}

	var opts []playback.Option
	if cfg.Poster > 0 {
		img, err := a.Poster(ctx, cfg.Poster)
		if err != nil {
			return report{}, fmt.Errorf("poster: %w", err)
		}
		if cfg.Out != "" {
			if err := imaging.Save(img, filepath.Join(cfg.Out, "poster.png")); err != nil {
				return report{}, err
			}
		}
		opts = append(opts, playback.WithPoster(img))
	}

	var surface playback.Surface = &countingSurface{}
	if cfg.Out != "" {
		surface = &pngSurface{dir: cfg.Out, scale: cfg.Scale}
	}

	d := a.NewPlayer(surface, opts...)
	defer d.Close()

	var played time.Duration
	if cfg.Realtime {
		played, err = playRealtime(ctx, d, cfg.For)
	} else {
		played, err = playSimulated(ctx, a, d, cfg.For)
	}
	if err != nil {
		return report{}, err
	}

	return report{
		Format:   a.Format(),
		Width:    a.Width(),
		Height:   a.Height(),
		Frames:   a.FrameCount(),
		Loops:    a.LoopCount(),
		Duration: a.Duration(),
		Played:   played,
		Player:   d.Stats(),
		Anim:     a.Stats(),
	}, nil
}

func playRealtime(ctx context.Context, d *playback.Driver, limit time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	start := time.Now()
	err := d.Run(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return time.Since(start), err
}

// playSimulated ticks at every frame boundary and lets all outstanding
// decodes finish before moving on.
func playSimulated(ctx context.Context, a *ganim.Animation, d *playback.Driver, limit time.Duration) (time.Duration, error) {
	var elapsed time.Duration
	retried := false
	for elapsed < limit {
		res := d.Tick(elapsed)
		if res.Outcome == playback.OutcomeDone {
			return elapsed, nil
		}
		if err := a.Decoder().Wait(ctx); err != nil {
			return elapsed, err
		}
		if !retried && res.Outcome != playback.OutcomeHit && res.Outcome != playback.OutcomeAsync {
			// The frame is decoded now; show it before time moves on.
			retried = true
			continue
		}
		retried = false
		if res.Next == schedule.NoNext {
			return elapsed, nil
		}
		elapsed = res.Next
	}
	return limit, nil
}
