// Package render owns the real-time preview pipeline: it binds a video
// frame source to the glitch fragment program and a rendering context, and
// drives a per-frame draw loop across the session's whole lifecycle (bind,
// play, pause, resize, parameter change, teardown).
package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vcrlab/tapedeck/internal/glitch"
	"github.com/vcrlab/tapedeck/internal/media"
	"github.com/vcrlab/tapedeck/internal/source"
)

// PlaybackState is the source playback mode of a bound session. It is
// orthogonal to the session lifecycle: a paused session still runs its draw
// loop, it just stops advancing the source.
type PlaybackState int

// Playback states.
const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// lifecycle is the session's internal state machine:
// unbound -> binding -> bound -> disposed, with dispose reachable from any
// non-terminal state and idempotent once terminal.
type lifecycle int

const (
	stateUnbound lifecycle = iota
	stateBinding
	stateBound
	stateDisposed
)

// TimeUpdateFunc receives the source clock after each drawn frame. The
// session does not interpret the values; it only forwards them.
type TimeUpdateFunc func(currentTime, duration float64)

// Config describes one render session.
type Config struct {
	// Path is the media locator opened when Source is nil.
	Path string

	// Source overrides file opening with a caller-supplied frame source.
	Source source.Source

	// Params is the initial effect parameter set.
	Params glitch.Params

	// Viewport sizes the rendering surface. Zero means the source's own
	// decode resolution.
	Viewport media.Viewport

	// FPS is the draw loop refresh rate. Zero means 30.
	FPS float64

	// NewContext creates the rendering context for the session. Nil means
	// a frame-discarding software surface.
	NewContext func(width, height int) (Context, error)

	// OnTimeUpdate, when set, is invoked after every drawn frame.
	OnTimeUpdate TimeUpdateFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session owns exactly one frame source, one rendering context, one shader
// program, and one running draw loop. All methods are safe for concurrent
// use from any call site; every method is a no-op after Dispose.
type Session struct {
	log          *slog.Logger
	src          source.Source
	rctx         Context
	prog         *glitch.Program
	onTimeUpdate TimeUpdateFunc
	fps          float64

	mu       sync.Mutex
	state    lifecycle
	playback PlaybackState
	uniforms glitch.Uniforms
	dst      *image.RGBA
	cancel   context.CancelFunc
	done     chan struct{}

	// surfMu serializes access to the rendering surface: the draw loop's
	// Present and a caller's Resize never overlap. Lock order is mu before
	// surfMu; the loop never holds mu while presenting.
	surfMu sync.Mutex

	framesDrawn  atomic.Int64
	presentFails atomic.Int64
}

// Bind constructs a frame source for cfg, creates a rendering context sized
// to the viewport, compiles the effect program with uniform slots for all
// ten parameters plus time and resolution, and starts the draw loop.
// Playback begins immediately, looping. On failure nothing stays allocated:
// the error wraps ErrSourceLoad or ErrContextCreation.
func Bind(cfg Config) (*Session, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "render")

	s := &Session{
		log:          log,
		prog:         glitch.NewProgram(),
		onTimeUpdate: cfg.OnTimeUpdate,
		fps:          cfg.FPS,
		state:        stateBinding,
	}
	if s.fps <= 0 {
		s.fps = 30
	}

	src := cfg.Source
	if src == nil {
		f, err := source.Open(cfg.Path, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceLoad, err)
		}
		src = f
	}
	s.src = src

	w, h := cfg.Viewport.Width, cfg.Viewport.Height
	if w <= 0 || h <= 0 {
		bounds := src.Frame().Bounds()
		w, h = bounds.Dx(), bounds.Dy()
	}

	newContext := cfg.NewContext
	if newContext == nil {
		newContext = func(width, height int) (Context, error) {
			return NewSoftwareContext(width, height, nil)
		}
	}
	rctx, err := newContext(w, h)
	if err != nil {
		if cerr := src.Close(); cerr != nil {
			log.Warn("source close during failed bind", "error", cerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrContextCreation, err)
	}
	s.rctx = rctx

	s.dst = image.NewRGBA(image.Rect(0, 0, w, h))
	s.uniforms = glitch.Uniforms{ResX: float64(w), ResY: float64(h)}
	s.uniforms.Apply(cfg.Params)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = stateBound
	s.playback = Playing

	go s.run(loopCtx)

	log.Info("session bound", "viewport", fmt.Sprintf("%dx%d", w, h), "fps", s.fps)
	return s, nil
}

// SetPlaying toggles source playback without recreating the session.
// Pausing freezes the visible frame; the time-accumulator uniform keeps
// advancing with the draw loop, so time-driven effects continue to animate
// over the frozen frame.
func (s *Session) SetPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDisposed {
		return
	}
	if playing {
		s.playback = Playing
	} else {
		s.playback = Paused
	}
}

// Playback returns the current playback state. A disposed session reports
// Stopped.
func (s *Session) Playback() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback
}

// UpdateParams copies the ten effect scalars into the bound uniform
// storage, effective on the next drawn frame. The shader program is never
// reallocated. A no-op after Dispose, never an error.
func (s *Session) UpdateParams(p glitch.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDisposed {
		return
	}
	s.uniforms.Apply(p)
}

// Resize resizes the rendering surface and updates the resolution uniform.
// Idempotent for repeated identical sizes; a no-op after Dispose.
func (s *Session) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDisposed {
		return
	}
	if b := s.dst.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	s.dst = image.NewRGBA(image.Rect(0, 0, width, height))
	s.uniforms.ResX = float64(width)
	s.uniforms.ResY = float64(height)
	s.surfMu.Lock()
	s.rctx.Resize(width, height)
	s.surfMu.Unlock()
	s.log.Debug("surface resized", "viewport", fmt.Sprintf("%dx%d", width, height))
}

// Dispose stops the draw loop, releases the rendering context, and closes
// the frame source. It waits for the loop to exit before releasing, so no
// draw touches a dead context. Safe to call any number of times; teardown
// problems are logged and never propagated.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.state == stateDisposed {
		s.mu.Unlock()
		return
	}
	s.state = stateDisposed
	s.playback = Stopped
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done

	s.rctx.Release()
	if err := s.src.Close(); err != nil {
		s.log.Warn("source close", "error", err)
	}
	s.log.Info("session disposed", "frames", s.framesDrawn.Load())
}

// Stats is a point-in-time snapshot of draw loop health.
type Stats struct {
	FramesDrawn  int64
	PresentFails int64
	Clock        float64
	Playback     PlaybackState
}

// Stats returns draw loop counters and the current source clock.
func (s *Session) Stats() Stats {
	return Stats{
		FramesDrawn:  s.framesDrawn.Load(),
		PresentFails: s.presentFails.Load(),
		Clock:        s.src.CurrentTime(),
		Playback:     s.Playback(),
	}
}
