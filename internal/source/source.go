// Package source decodes video files into RGBA frames for the render loop.
// The concrete implementation reads through an ffmpeg-backed decoder; the
// Source interface exists so tests and synthetic feeds can stand in for a
// real file.
package source

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	vidio "github.com/AlexEidt/Vidio"
)

// Source supplies decoded frames to a render session. Frame returns the
// most recently decoded picture and stays valid (and stable) until the next
// Advance. Advance decodes the next frame, rewinding at end-of-stream when
// the source loops; a non-looping source returns io.EOF there.
type Source interface {
	Frame() *image.RGBA
	Advance() error
	CurrentTime() float64
	Duration() float64
	Close() error
}

var errNoFrames = errors.New("no decodable frames")

// File is a looping frame source over a video file. It decodes one frame
// ahead into a fixed RGBA buffer, tracking the playback clock from the
// frame index and container frame rate.
type File struct {
	path string
	loop bool

	mu     sync.Mutex
	video  *vidio.Video
	frame  *image.RGBA
	index  int
	closed bool
}

// Open probes path and decodes its first frame, so a successfully opened
// source always has a picture to show. It fails if the file is missing or
// the platform decoder cannot read it.
func Open(path string, loop bool) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("source %s: %w", path, err)
	}

	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", path, err)
	}

	f := &File{
		path:  path,
		video: video,
		loop:  loop,
		frame: image.NewRGBA(image.Rect(0, 0, video.Width(), video.Height())),
	}
	video.SetFrameBuffer(f.frame.Pix)

	if !video.Read() {
		video.Close()
		return nil, fmt.Errorf("source %s: %w", path, errNoFrames)
	}
	return f, nil
}

// Frame returns the current decoded picture.
func (f *File) Frame() *image.RGBA {
	return f.frame
}

// Width returns the decoded frame width in pixels.
func (f *File) Width() int { return f.video.Width() }

// Height returns the decoded frame height in pixels.
func (f *File) Height() int { return f.video.Height() }

// Advance decodes the next frame into the frame buffer. At end-of-stream a
// looping source reopens the file and restarts from the first frame.
func (f *File) Advance() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	if f.video.Read() {
		f.index++
		return nil
	}
	if !f.loop {
		return io.EOF
	}
	return f.rewind()
}

// rewind reopens the file for another pass. The decoder reads forward only,
// so looping is a fresh open reusing the existing frame buffer.
func (f *File) rewind() error {
	f.video.Close()
	video, err := vidio.NewVideo(f.path)
	if err != nil {
		return fmt.Errorf("rewind %s: %w", f.path, err)
	}
	video.SetFrameBuffer(f.frame.Pix)
	if !video.Read() {
		video.Close()
		return fmt.Errorf("rewind %s: %w", f.path, errNoFrames)
	}
	f.video = video
	f.index = 0
	return nil
}

// CurrentTime returns the source clock position in seconds, derived from
// the frame index and the container frame rate.
func (f *File) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	fps := f.video.FPS()
	if fps <= 0 {
		return 0
	}
	return float64(f.index) / fps
}

// Duration returns the container duration in seconds.
func (f *File) Duration() float64 {
	return f.video.Duration()
}

// Close releases the decoder. Safe to call more than once.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.video.Close()
	return nil
}
