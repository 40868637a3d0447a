package display_test

import (
	"image"
	"sync"
	"testing"

	"github.com/omochice/toy-screen-stream/internal/display"
	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

func TestState_Metadata(t *testing.T) {
	s := display.NewState(50)

	if _, ok := s.Metadata(); ok {
		t.Error("Metadata() ok before any announcement")
	}

	want := protocol.FrameMetadata{Width: 800, Height: 600, Quality: 50}
	s.SetMetadata(want)
	got, ok := s.Metadata()
	if !ok || got != want {
		t.Errorf("Metadata() = %+v, %v, want %+v, true", got, ok, want)
	}

	s.ClearMetadata()
	if _, ok := s.Metadata(); ok {
		t.Error("Metadata() ok after ClearMetadata")
	}
}

func TestState_NewFrameFlagIsOneShot(t *testing.T) {
	s := display.NewState(50)

	if s.TakeNewFrame() {
		t.Error("TakeNewFrame() = true before any frame")
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	s.StoreFrame(img)

	if !s.TakeNewFrame() {
		t.Error("TakeNewFrame() = false after StoreFrame")
	}
	if s.TakeNewFrame() {
		t.Error("TakeNewFrame() = true twice for one frame")
	}
	if s.Frame() != img {
		t.Error("Frame() did not return the stored image")
	}
}

func TestState_ConcurrentTakeNewFrame(t *testing.T) {
	s := display.NewState(50)
	s.StoreFrame(image.NewRGBA(image.Rect(0, 0, 1, 1)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TakeNewFrame() {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if taken != 1 {
		t.Errorf("frame taken %d times, want 1", taken)
	}
}

func TestState_DesiredQuality(t *testing.T) {
	s := display.NewState(50)
	if got := s.DesiredQuality(); got != 50 {
		t.Errorf("DesiredQuality() = %d, want 50", got)
	}
	s.SetDesiredQuality(80)
	if got := s.DesiredQuality(); got != 80 {
		t.Errorf("DesiredQuality() = %d, want 80", got)
	}
}
