package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Synthetic frames: an Opus silence packet and a tiny VP8 payload.
var (
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	vp8Blank    = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}
)

// Synthetic is a Source that produces silent audio and blank video. It
// stands in for capture devices on headless terminals and in tests.
type Synthetic struct {
	// AudioInterval and VideoInterval pace the generated samples.
	AudioInterval time.Duration
	VideoInterval time.Duration

	// Delay simulates a permission prompt.
	Delay time.Duration
	// Deny makes every request fail with ErrDenied.
	Deny bool

	logger *slog.Logger
}

// NewSynthetic returns a source pacing audio at 20ms and video at 30fps.
func NewSynthetic(logger *slog.Logger) *Synthetic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthetic{
		AudioInterval: 20 * time.Millisecond,
		VideoInterval: time.Second / 30,
		logger:        logger.With("component", "media"),
	}
}

// Open implements Source.
func (s *Synthetic) Open(ctx context.Context, c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: no tracks requested", ErrUnavailable)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	stream := newStream("minimeet-" + uuid.NewString())
	if c.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", stream.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		stream.Audio = track
		s.pump(stream, track, opusSilence, s.AudioInterval)
	}
	if c.Video {
		track, err := s.videoTrack("video", stream.ID)
		if err != nil {
			stream.Stop()
			return nil, err
		}
		stream.Video = track
		s.pump(stream, track, vp8Blank, s.VideoInterval)
	}

	s.logger.Debug("Opened synthetic stream", "stream", stream.ID, "audio", c.Audio, "video", c.Video)
	return stream, nil
}

// OpenScreen implements Source.
func (s *Synthetic) OpenScreen(ctx context.Context) (*Stream, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	stream := newStream("screen-" + uuid.NewString())
	track, err := s.videoTrack("screen", stream.ID)
	if err != nil {
		return nil, err
	}
	stream.Video = track
	s.pump(stream, track, vp8Blank, s.VideoInterval)
	return stream, nil
}

func (s *Synthetic) videoTrack(id, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		id, streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", id, err)
	}
	return track, nil
}

func (s *Synthetic) wait(ctx context.Context) error {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Deny {
		return ErrDenied
	}
	return nil
}

// pump writes frame to track every interval until the stream stops.
func (s *Synthetic) pump(stream *Stream, track *webrtc.TrackLocalStaticSample, frame []byte, interval time.Duration) {
	if interval <= 0 {
		return
	}
	stream.wg.Add(1)
	go func() {
		defer stream.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stream.stop:
				return
			case <-ticker.C:
				if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
					s.logger.Debug("Sample write failed", "track", track.ID(), "error", err)
				}
			}
		}
	}()
}
