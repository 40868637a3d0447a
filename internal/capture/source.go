// Package capture provides frame sources for the agent.
package capture

import (
	"image"
	"time"
)

// Frame is one captured image.
type Frame struct {
	Image      *image.RGBA
	Seq        uint64
	CapturedAt time.Time
}

// Width returns the frame width in pixels.
func (f Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f Frame) Height() int { return f.Image.Bounds().Dy() }

// Source produces frames on demand. Capture returns ok=false when no new frame
// is ready; that is not an error.
type Source interface {
	Capture() (frame Frame, ok bool, err error)
}
