package render

import (
	"context"
	"io"
	"time"

	"github.com/vcrlab/tapedeck/internal/media"
)

// run is the session's draw loop: one cooperative, display-refresh-driven
// task per live session. Each tick does bounded work and returns to the
// scheduler; cancellation is checked at the top of every iteration.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(float64(time.Second) / s.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.step(now.Sub(last))
			last = now
		}
	}
}

// step draws one frame: accumulate elapsed wall time into the time uniform,
// advance the source if playing, evaluate the fragment program, present,
// and forward the source clock. The time accumulator advances regardless of
// playback state: only the source's own clock freezes on pause.
func (s *Session) step(elapsed time.Duration) {
	s.mu.Lock()
	s.uniforms.Time += elapsed.Seconds()
	playing := s.playback == Playing
	uniforms := s.uniforms
	dst := s.dst
	s.mu.Unlock()

	if playing {
		if err := s.src.Advance(); err != nil && err != io.EOF {
			s.log.Warn("frame advance", "error", err)
		}
	}

	s.prog.Render(dst, s.src.Frame(), uniforms)

	s.surfMu.Lock()
	err := s.rctx.Present(media.Frame{Picture: dst, PTS: s.src.CurrentTime()})
	s.surfMu.Unlock()
	if err != nil {
		s.presentFails.Add(1)
		s.log.Warn("present", "error", err)
	}
	s.framesDrawn.Add(1)

	if s.onTimeUpdate != nil {
		s.onTimeUpdate(s.src.CurrentTime(), s.src.Duration())
	}
}
