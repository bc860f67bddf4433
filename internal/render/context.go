package render

import (
	"fmt"
	"sync"

	"github.com/vcrlab/tapedeck/internal/media"
)

// Context is the rendering surface a session presents into. A context is
// exclusively owned by one session: Resize and Release are never called
// concurrently with Present, and Release is called exactly once, after
// which the context is not used again. Hardware-accelerated surfaces live
// behind this interface as external collaborators.
type Context interface {
	Resize(width, height int)
	Present(frame media.Frame) error
	Release()
}

// SoftwareContext is the in-tree reference Context: it keeps no GPU state
// and hands every presented frame to a sink callback. A nil sink discards
// frames, which is what headless tests and dry runs want.
type SoftwareContext struct {
	mu       sync.Mutex
	width    int
	height   int
	sink     func(media.Frame) error
	released bool
}

// NewSoftwareContext creates a software surface of the given size.
func NewSoftwareContext(width, height int, sink func(media.Frame) error) (*SoftwareContext, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	return &SoftwareContext{width: width, height: height, sink: sink}, nil
}

// Resize records the new surface size.
func (c *SoftwareContext) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
	c.height = height
}

// Present forwards the frame to the sink.
func (c *SoftwareContext) Present(frame media.Frame) error {
	c.mu.Lock()
	released := c.released
	sink := c.sink
	c.mu.Unlock()

	if released {
		return fmt.Errorf("present on released context")
	}
	if sink == nil {
		return nil
	}
	return sink(frame)
}

// Release marks the surface unusable. Further Presents fail.
func (c *SoftwareContext) Release() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
}
