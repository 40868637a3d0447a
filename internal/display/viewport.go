package display

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// Sink receives decoded frames for presentation.
type Sink interface {
	Present(img *image.RGBA)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(img *image.RGBA)

func (f SinkFunc) Present(img *image.RGBA) { f(img) }

// Viewport is a fixed-size framebuffer. Presented frames are scaled to fit
// with their aspect ratio kept and the remainder filled with black.
type Viewport struct {
	mu        sync.Mutex
	buf       *image.RGBA
	scaler    draw.Scaler
	presented int
}

// NewViewport creates a width×height viewport.
func NewViewport(width, height int) *Viewport {
	return &Viewport{
		buf:    image.NewRGBA(image.Rect(0, 0, width, height)),
		scaler: draw.ApproxBiLinear,
	}
}

// Present scales img into the viewport.
func (v *Viewport) Present(img *image.RGBA) {
	if img == nil || img.Bounds().Empty() {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	draw.Draw(v.buf, v.buf.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	v.scaler.Scale(v.buf, Fit(img.Bounds(), v.buf.Bounds()), img, img.Bounds(), draw.Src, nil)
	v.presented++
}

// Snapshot returns a copy of the framebuffer.
func (v *Viewport) Snapshot() *image.RGBA {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := image.NewRGBA(v.buf.Bounds())
	copy(out.Pix, v.buf.Pix)
	return out
}

// Presented returns how many frames have been presented.
func (v *Viewport) Presented() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.presented
}

// Fit returns the largest rectangle with src's aspect ratio that fits inside
// dst, centered.
func Fit(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return image.Rectangle{}
	}

	w, h := dw, sh*dw/sw
	if h > dh {
		w, h = sw*dh/sh, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}
