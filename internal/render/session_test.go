package render

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vcrlab/tapedeck/internal/glitch"
	"github.com/vcrlab/tapedeck/internal/media"
)

// fakeSource is a synthetic frame source: a solid color picture with a
// clock that advances one thirtieth of a second per frame.
type fakeSource struct {
	mu       sync.Mutex
	frame    *image.RGBA
	advances int
	closes   int
}

func newFakeSource(w, h int) *fakeSource {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{110, 110, 110, 255}}, image.Point{}, draw.Src)
	return &fakeSource{frame: img}
}

func (f *fakeSource) Frame() *image.RGBA { return f.frame }

func (f *fakeSource) Advance() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances++
	return nil
}

func (f *fakeSource) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return float64(f.advances) / 30
}

func (f *fakeSource) Duration() float64 { return 10 }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSource) counts() (advances, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advances, f.closes
}

// recordingContext captures presents and counts releases.
type recordingContext struct {
	mu       sync.Mutex
	frames   []media.Frame
	releases int
	width    int
	height   int
	notify   chan struct{}
}

func newRecordingContext() *recordingContext {
	return &recordingContext{notify: make(chan struct{}, 64)}
}

func (c *recordingContext) Resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = w, h
}

func (c *recordingContext) Present(f media.Frame) error {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *recordingContext) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

func (c *recordingContext) waitFrames(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		c.mu.Lock()
		got := len(c.frames)
		c.mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d presented frames", n)
		}
	}
}

func (c *recordingContext) lastFrame() media.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[len(c.frames)-1]
}

func bindFake(t *testing.T, rctx Context) (*Session, *fakeSource) {
	t.Helper()
	src := newFakeSource(32, 24)
	s, err := Bind(Config{
		Source: src,
		Params: glitch.Defaults(),
		FPS:    120,
		NewContext: func(w, h int) (Context, error) {
			rctx.Resize(w, h)
			return rctx, nil
		},
	})
	require.NoError(t, err)
	return s, src
}

func TestBindStartsPlayingAndPresents(t *testing.T) {
	t.Parallel()
	rctx := newRecordingContext()
	s, src := bindFake(t, rctx)
	defer s.Dispose()

	require.Equal(t, Playing, s.Playback())
	rctx.waitFrames(t, 3)

	advances, _ := src.counts()
	require.Greater(t, advances, 0, "playing session must advance the source")
	require.Equal(t, 24, rctx.lastFrame().Picture.Bounds().Dy())
}

func TestBindMissingSourceFails(t *testing.T) {
	t.Parallel()
	var contexts atomic.Int32
	_, err := Bind(Config{
		Path: "/nonexistent/clip.mp4",
		NewContext: func(w, h int) (Context, error) {
			contexts.Add(1)
			return newRecordingContext(), nil
		},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSourceLoad)
	require.Zero(t, contexts.Load(), "failed bind must not allocate a rendering context")
}

func TestBindContextFailureClosesSource(t *testing.T) {
	t.Parallel()
	src := newFakeSource(16, 16)
	_, err := Bind(Config{
		Source: src,
		NewContext: func(w, h int) (Context, error) {
			return nil, errors.New("no accelerated surface")
		},
	})
	require.ErrorIs(t, err, ErrContextCreation)

	_, closes := src.counts()
	require.Equal(t, 1, closes, "failed bind must release the source")
}

func TestPauseFreezesSourceButNotLoop(t *testing.T) {
	t.Parallel()
	rctx := newRecordingContext()
	s, src := bindFake(t, rctx)
	defer s.Dispose()

	rctx.waitFrames(t, 2)
	s.SetPlaying(false)
	require.Equal(t, Paused, s.Playback())

	// Let the pause settle, then measure: frames keep presenting while the
	// source stops advancing.
	time.Sleep(50 * time.Millisecond)
	advBefore, _ := src.counts()
	framesBefore := s.Stats().FramesDrawn

	rctx.waitFrames(t, int(framesBefore)+3)
	advAfter, _ := src.counts()

	require.Equal(t, advBefore, advAfter, "paused source must not advance")
	require.Greater(t, s.Stats().FramesDrawn, framesBefore, "draw loop must keep running while paused")

	s.SetPlaying(true)
	require.Equal(t, Playing, s.Playback())
}

func TestUpdateParamsTakesEffect(t *testing.T) {
	t.Parallel()
	rctx := newRecordingContext()
	s, _ := bindFake(t, rctx)
	defer s.Dispose()

	p := glitch.Params{
		WaveIntensity:       0.01,
		WaveFrequency:       11,
		ColorShift:          0.2,
		Speed:               3,
		GlitchAmount:        0.04,
		ScanlineIntensity:   0.25,
		StaticAmount:        0.06,
		TrackingNoiseAmount: 0.07,
		ChromaticAberration: 0.008,
		VerticalJitter:      0.009,
	}
	before := s.Stats().FramesDrawn
	s.UpdateParams(p)
	rctx.waitFrames(t, int(before)+2)

	// The draw loop snapshots the uniform storage under the same lock the
	// update wrote through, so field-for-field equality here means every
	// one of the ten scalars reached the frame just presented, unreordered.
	s.mu.Lock()
	got := s.uniforms.Params
	s.mu.Unlock()
	require.Equal(t, p, got)

	// Out-of-range values write through without error.
	s.UpdateParams(glitch.Params{WaveIntensity: 99, WaveFrequency: -5})
	rctx.waitFrames(t, int(before)+4)
	s.mu.Lock()
	wild := s.uniforms.Params
	s.mu.Unlock()
	require.Equal(t, float64(99), wild.WaveIntensity)
	require.Equal(t, float64(-5), wild.WaveFrequency)
}

func TestResizeIdempotent(t *testing.T) {
	t.Parallel()
	rctx := newRecordingContext()
	s, _ := bindFake(t, rctx)
	defer s.Dispose()

	s.Resize(64, 48)
	s.Resize(64, 48)
	rctx.waitFrames(t, 3)

	f := rctx.lastFrame()
	require.Equal(t, 64, f.Picture.Bounds().Dx())
	require.Equal(t, 48, f.Picture.Bounds().Dy())

	rctx.mu.Lock()
	w, h := rctx.width, rctx.height
	rctx.mu.Unlock()
	require.Equal(t, 64, w)
	require.Equal(t, 48, h)
}

// overlapContext flags any surface mutation that runs while a Present is
// in flight, with Present slowed down to widen the window.
type overlapContext struct {
	inPresent atomic.Bool
	presents  atomic.Int32
	overlaps  atomic.Int32
}

func (c *overlapContext) Resize(w, h int) {
	if c.inPresent.Load() {
		c.overlaps.Add(1)
	}
}

func (c *overlapContext) Present(media.Frame) error {
	c.inPresent.Store(true)
	time.Sleep(5 * time.Millisecond)
	c.inPresent.Store(false)
	c.presents.Add(1)
	return nil
}

func (c *overlapContext) Release() {
	if c.inPresent.Load() {
		c.overlaps.Add(1)
	}
}

func TestResizeNeverOverlapsPresent(t *testing.T) {
	t.Parallel()
	// The surface is exclusively owned: Resize from any call site must not
	// reach the context while the draw loop is presenting into it.
	rctx := &overlapContext{}
	src := newFakeSource(32, 24)
	s, err := Bind(Config{
		Source: src,
		FPS:    120,
		NewContext: func(w, h int) (Context, error) {
			return rctx, nil
		},
	})
	require.NoError(t, err)

	deadline := time.Now().Add(500 * time.Millisecond)
	for size := 40; time.Now().Before(deadline); size++ {
		s.Resize(size, size)
	}
	s.Dispose()

	require.Greater(t, rctx.presents.Load(), int32(0), "loop never presented")
	require.Zero(t, rctx.overlaps.Load(), "surface mutated while a frame was being presented")
}

func TestDisposeIdempotent(t *testing.T) {
	t.Parallel()
	rctx := newRecordingContext()
	s, src := bindFake(t, rctx)

	s.Dispose()
	s.Dispose()

	rctx.mu.Lock()
	releases := rctx.releases
	rctx.mu.Unlock()
	require.Equal(t, 1, releases, "context must be released exactly once")

	_, closes := src.counts()
	require.Equal(t, 1, closes, "source must be closed exactly once")
	require.Equal(t, Stopped, s.Playback())

	// Post-disposal calls are no-ops, never errors.
	s.UpdateParams(glitch.Defaults())
	s.SetPlaying(true)
	s.Resize(100, 100)
	require.Equal(t, Stopped, s.Playback())
}

func TestDisposeStopsDrawLoop(t *testing.T) {
	t.Parallel()
	rctx := newRecordingContext()
	s, _ := bindFake(t, rctx)

	rctx.waitFrames(t, 1)
	s.Dispose()

	frames := s.Stats().FramesDrawn
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, frames, s.Stats().FramesDrawn, "no draws after dispose")
}

func TestTimeUpdateCallbackForwardsClock(t *testing.T) {
	t.Parallel()
	type update struct{ current, duration float64 }
	updates := make(chan update, 64)

	src := newFakeSource(16, 16)
	s, err := Bind(Config{
		Source: src,
		FPS:    120,
		OnTimeUpdate: func(current, duration float64) {
			select {
			case updates <- update{current, duration}:
			default:
			}
		},
	})
	require.NoError(t, err)
	defer s.Dispose()

	select {
	case u := <-updates:
		require.Equal(t, float64(10), u.duration)
		require.GreaterOrEqual(t, u.current, float64(0))
	case <-time.After(5 * time.Second):
		t.Fatal("no time update received")
	}
}
