// Package media defines the shared value types that flow through the
// tapedeck render path, from frame decode through presentation.
package media

import "image"

// Frame is a single rendered picture plus the source clock position it was
// drawn at, in seconds. The picture buffer is owned by the render session
// and is only valid until the next presented frame.
type Frame struct {
	Picture *image.RGBA
	PTS     float64
}

// Viewport is the size of a rendering surface in pixels.
type Viewport struct {
	Width  int
	Height int
}
