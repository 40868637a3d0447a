// Package display holds the controller's view of the remote screen and the
// sink that shows it.
package display

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

// State is shared between the message handler, the decode goroutines and the
// render loop.
//
// The frame and the metadata sit behind separate mutexes; no caller ever holds
// both. The new-frame flag is consumed by a single atomic swap so a frame is
// presented at most once.
type State struct {
	frameMu sync.Mutex
	frame   *image.RGBA

	metaMu  sync.Mutex
	meta    protocol.FrameMetadata
	hasMeta bool

	newFrame atomic.Bool
	desired  atomic.Uint32
}

// NewState returns a State whose desired quality is quality.
func NewState(quality uint32) *State {
	s := &State{}
	s.desired.Store(quality)
	return s
}

// SetMetadata replaces the last-announced metadata.
func (s *State) SetMetadata(m protocol.FrameMetadata) {
	s.metaMu.Lock()
	s.meta = m
	s.hasMeta = true
	s.metaMu.Unlock()
}

// Metadata returns the last-announced metadata. ok is false before the first
// announcement.
func (s *State) Metadata() (m protocol.FrameMetadata, ok bool) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.meta, s.hasMeta
}

// ClearMetadata forgets the announced metadata, e.g. when the agent goes away.
func (s *State) ClearMetadata() {
	s.metaMu.Lock()
	s.meta = protocol.FrameMetadata{}
	s.hasMeta = false
	s.metaMu.Unlock()
}

// StoreFrame replaces the current frame and raises the new-frame flag.
// The State takes ownership of img.
func (s *State) StoreFrame(img *image.RGBA) {
	s.frameMu.Lock()
	s.frame = img
	s.frameMu.Unlock()
	s.newFrame.Store(true)
}

// Frame returns the current frame, or nil. The image must not be modified.
func (s *State) Frame() *image.RGBA {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.frame
}

// TakeNewFrame reports whether a frame was stored since the last call and
// clears the flag.
func (s *State) TakeNewFrame() bool {
	return s.newFrame.Swap(false)
}

// SetDesiredQuality records the quality the user asked for.
func (s *State) SetDesiredQuality(q uint32) {
	s.desired.Store(q)
}

// DesiredQuality returns the quality the user asked for.
func (s *State) DesiredQuality() uint32 {
	return s.desired.Load()
}
