package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vcrlab/tapedeck/internal/glitch"
	"github.com/vcrlab/tapedeck/internal/media"
	"github.com/vcrlab/tapedeck/internal/render"
	"github.com/vcrlab/tapedeck/internal/session"
	"github.com/vcrlab/tapedeck/internal/transcode"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "mosh":
		err = runMosh(ctx, os.Args[2:])
	case "preview":
		err = runPreview(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `tapedeck %s — VHS glitch rendering and datamoshing

usage:
  tapedeck mosh -i input.mp4 -o output.mp4 [-gop N]
  tapedeck preview -i input.mp4 [effect flags]
  tapedeck version
`, version)
}

func runMosh(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mosh", flag.ExitOnError)
	in := fs.String("i", "", "input video file")
	out := fs.String("o", "", "output video file")
	gop := fs.Int("gop", transcode.DefaultInterval,
		fmt.Sprintf("i-frame interval [%d, %d]", transcode.MinInterval, transcode.MaxInterval))
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("mosh requires -i and -o")
	}

	input, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	slog.Info("moshing", "input", *in, "bytes", len(input), "gop", *gop)
	start := time.Now()

	moshed, err := transcode.New(nil).Mosh(ctx, input, *gop)
	if err != nil {
		return err
	}

	if err := os.WriteFile(*out, moshed, 0o644); err != nil {
		return err
	}
	slog.Info("mosh complete",
		"output", *out,
		"bytes", len(moshed),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func runPreview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	in := fs.String("i", "", "input video file")
	seconds := fs.Float64("seconds", 10, "preview duration, 0 to run until interrupted")
	fps := fs.Float64("fps", 30, "draw loop refresh rate")
	width := fs.Int("w", 0, "viewport width (0: source width)")
	height := fs.Int("h", 0, "viewport height (0: source height)")

	p := glitch.Defaults()
	fs.Float64Var(&p.WaveIntensity, "wave-intensity", p.WaveIntensity, "wave warp intensity")
	fs.Float64Var(&p.WaveFrequency, "wave-frequency", p.WaveFrequency, "wave warp frequency")
	fs.Float64Var(&p.ColorShift, "color-shift", p.ColorShift, "color rotation angle (radians)")
	fs.Float64Var(&p.Speed, "speed", p.Speed, "time-driven effect speed")
	fs.Float64Var(&p.GlitchAmount, "glitch-amount", p.GlitchAmount, "glitch band offset amount")
	fs.Float64Var(&p.ScanlineIntensity, "scanline-intensity", p.ScanlineIntensity, "scanline attenuation")
	fs.Float64Var(&p.StaticAmount, "static-amount", p.StaticAmount, "static noise amount")
	fs.Float64Var(&p.TrackingNoiseAmount, "tracking-noise", p.TrackingNoiseAmount, "tracking noise amount")
	fs.Float64Var(&p.ChromaticAberration, "chromatic-aberration", p.ChromaticAberration, "per-channel UV shift")
	fs.Float64Var(&p.VerticalJitter, "vertical-jitter", p.VerticalJitter, "vertical jitter amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("preview requires -i")
	}

	var presented atomic.Int64
	s, err := render.Bind(render.Config{
		Path:     *in,
		Params:   p,
		Viewport: media.Viewport{Width: *width, Height: *height},
		FPS:      *fps,
		NewContext: func(w, h int) (render.Context, error) {
			return render.NewSoftwareContext(w, h, func(media.Frame) error {
				presented.Add(1)
				return nil
			})
		},
		OnTimeUpdate: func(current, duration float64) {
			slog.Debug("timeupdate", "current", current, "duration", duration)
		},
	})
	if err != nil {
		return err
	}

	reg := session.NewRegistry(nil)
	reg.Replace(*in, s)
	defer reg.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if *seconds <= 0 {
			<-runCtx.Done()
			return nil
		}
		select {
		case <-runCtx.Done():
		case <-time.After(time.Duration(*seconds * float64(time.Second))):
		}
		stop()
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return nil
			case <-ticker.C:
				stats := s.Stats()
				slog.Info("preview",
					"frames", stats.FramesDrawn,
					"clock", fmt.Sprintf("%.2fs", stats.Clock),
					"state", stats.Playback.String(),
				)
			}
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("preview finished", "frames_presented", presented.Load())
	return nil
}
