package capture

import (
	"fmt"
	"time"

	"github.com/kbinani/screenshot"
)

// Screen captures one physical display.
type Screen struct {
	display int
	seq     uint64
}

// NewScreen returns a source for the given display index.
func NewScreen(display int) (*Screen, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if display < 0 || display >= n {
		return nil, fmt.Errorf("display %d out of range (%d active)", display, n)
	}
	return &Screen{display: display}, nil
}

// Capture grabs the whole display.
func (s *Screen) Capture() (Frame, bool, error) {
	bounds := screenshot.GetDisplayBounds(s.display)
	if bounds.Empty() {
		return Frame{}, false, nil
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return Frame{}, false, fmt.Errorf("failed to capture display %d: %w", s.display, err)
	}

	s.seq++
	return Frame{Image: img, Seq: s.seq, CapturedAt: time.Now()}, true, nil
}
