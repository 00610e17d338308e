package session

import (
	"context"

	"github.com/pion/webrtc/v4"
)

func (s *Session) startMedia(ctx context.Context) error {
	if s.source == nil {
		return NewError("start media", ErrNoMediaSource)
	}
	s.mediaGen++
	gen := s.mediaGen
	src, want := s.source, s.want
	go func() {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()

		stream, err := src.Open(ctx, want)
		if !s.post(mediaInput{gen: gen, stream: stream, err: err}) && stream != nil {
			stream.Stop()
		}
	}()
	return nil
}

func (s *Session) onMedia(in mediaInput) {
	if in.gen != s.mediaGen || s.left {
		if in.stream != nil {
			in.stream.Stop()
		}
		s.log.Debug("Discarding stale media", "gen", in.gen)
		return
	}
	if in.err != nil {
		s.notice(NewError("start media", in.err))
		return
	}
	if s.localStream != nil {
		s.localStream.Stop()
	}
	s.localStream = in.stream
	s.emit(LocalMedia{Stream: in.stream})
	if s.pc != nil && !s.pcUsed {
		s.addLocalTracks()
	} else if s.pc != nil {
		s.log.Info("Local media will be sent after the next negotiation")
	}
}

func (s *Session) addLocalTracks() {
	if s.localStream == nil || s.pc == nil {
		return
	}
	for _, track := range s.localStream.Tracks() {
		kind := track.Kind()
		if s.screen != nil && kind == webrtc.RTPCodecTypeVideo {
			track = s.screen
		}
		sender, err := s.pc.AddTrack(track)
		if err != nil {
			s.notice(err)
			continue
		}
		switch kind {
		case webrtc.RTPCodecTypeAudio:
			s.audioSender = sender
		case webrtc.RTPCodecTypeVideo:
			s.videoSender = sender
		}
		if out := s.outgoing(kind); out != track {
			if err := sender.ReplaceTrack(out); err != nil {
				s.notice(NewError("mute", err))
			}
		}
	}
}

// outgoing is the track that should currently be sent for kind. Nil means
// the sender stays silent.
func (s *Session) outgoing(kind webrtc.RTPCodecType) webrtc.TrackLocal {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		if s.audioOff || s.localStream == nil {
			return nil
		}
		return s.localStream.Audio
	case webrtc.RTPCodecTypeVideo:
		if s.screen != nil {
			return s.screen
		}
		if s.videoOff || s.localStream == nil {
			return nil
		}
		return s.localStream.Video
	}
	return nil
}

func (s *Session) setEnabled(kind webrtc.RTPCodecType, on bool) error {
	sender := s.videoSender
	if kind == webrtc.RTPCodecTypeAudio {
		s.audioOff = !on
		sender = s.audioSender
	} else {
		s.videoOff = !on
	}
	if sender == nil {
		return nil
	}
	if err := sender.ReplaceTrack(s.outgoing(kind)); err != nil {
		return NewError("mute", err)
	}
	return nil
}

func (s *Session) shareScreen(track webrtc.TrackLocal) error {
	if s.videoSender == nil {
		return NewError("share screen", ErrNoVideoSender)
	}
	if err := s.videoSender.ReplaceTrack(track); err != nil {
		return NewError("share screen", err)
	}
	s.screen = track
	return nil
}

func (s *Session) stopScreenShare() error {
	if s.screen == nil {
		return nil
	}
	s.screen = nil
	if s.videoSender == nil {
		return nil
	}
	if err := s.videoSender.ReplaceTrack(s.outgoing(webrtc.RTPCodecTypeVideo)); err != nil {
		return NewError("stop screen share", err)
	}
	return nil
}
