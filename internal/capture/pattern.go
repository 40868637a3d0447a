package capture

import (
	"image"
	"sync"
	"time"
)

// Pattern synthesizes a gradient with a grid and a moving dot. It stands in
// for a real display in tests and headless runs.
type Pattern struct {
	mu     sync.Mutex
	width  int
	height int
	seq    uint64
}

// NewPattern returns a width×height synthetic source.
func NewPattern(width, height int) *Pattern {
	return &Pattern{width: width, height: height}
}

// Resize changes the geometry of subsequent frames.
func (p *Pattern) Resize(width, height int) {
	p.mu.Lock()
	p.width, p.height = width, height
	p.mu.Unlock()
}

// Capture renders the next frame.
func (p *Pattern) Capture() (Frame, bool, error) {
	p.mu.Lock()
	width, height := p.width, p.height
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	if width <= 0 || height <= 0 {
		return Frame{}, false, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pix, stride := img.Pix, img.Stride

	for y := 0; y < height; y++ {
		g := uint8(50 + (y * 100 / height))
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i+0] = uint8(50 + (x * 100 / width))
			pix[i+1] = g
			pix[i+2] = 100
			pix[i+3] = 255
		}
	}

	// Grid lines
	for x := 0; x < width; x += 50 {
		for y := 0; y < height; y++ {
			i := y*stride + x*4
			pix[i], pix[i+1], pix[i+2] = 255, 255, 255
		}
	}
	for y := 0; y < height; y += 50 {
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i], pix[i+1], pix[i+2] = 255, 255, 255
		}
	}

	// Dot crosses the frame once every 120 frames.
	cx := int(seq%120) * width / 120
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			if dx*dx+dy*dy > 25 {
				continue
			}
			px, py := cx+dx, height/2+dy
			if px >= 0 && px < width && py >= 0 && py < height {
				i := py*stride + px*4
				pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 100, 100, 255
			}
		}
	}

	return Frame{Image: img, Seq: seq, CapturedAt: time.Now()}, true, nil
}
