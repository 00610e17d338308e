// Package media defines where local audio and video tracks come from.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrDenied is returned when the user refuses access to a device.
	ErrDenied = errors.New("media access denied")
	// ErrUnavailable is returned when no device can satisfy the request.
	ErrUnavailable = errors.New("media device unavailable")
)

// Constraints selects which tracks Open should produce.
type Constraints struct {
	Audio bool
	Video bool
}

// Source acquires local media. Implementations may block, so callers run
// them off their event loop.
type Source interface {
	// Open returns the camera and microphone stream.
	Open(ctx context.Context, c Constraints) (*Stream, error)
	// OpenScreen returns a stream with a single screen-capture video track.
	OpenScreen(ctx context.Context) (*Stream, error)
}

// Stream groups the local tracks of one capture.
type Stream struct {
	ID    string
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func newStream(id string) *Stream {
	return &Stream{ID: id, stop: make(chan struct{})}
}

// Tracks returns the stream's tracks, audio first.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.Audio != nil {
		tracks = append(tracks, s.Audio)
	}
	if s.Video != nil {
		tracks = append(tracks, s.Video)
	}
	return tracks
}

// Stop ends capture. It is safe to call more than once.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Done is closed once Stop has been called.
func (s *Stream) Done() <-chan struct{} {
	return s.stop
}
