package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"modeld/internal/pubsub"
	"modeld/internal/runtime"
	"modeld/internal/store"
)

// transcriptionSession is the runtime-only record of one live stream. The
// pipeline goroutine owns the transcriber; the service holds only the sample
// ingress and the drop signal.
type transcriptionSession struct {
	samples  chan []float32
	drop     chan struct{}
	dropOnce sync.Once
	done     chan struct{}
}

func (t *transcriptionSession) signalDrop() {
	t.dropOnce.Do(func() { close(t.drop) })
}

// transcriptPayload is the JSON shape published per emitted segment.
type transcriptPayload struct {
	StreamID string `json:"stream_id"`
	Text     string `json:"text"`
}

// OpenTranscriptionStream spawns an independent transcription pipeline and
// returns its stream id. The call returns only after the transcriber is
// built; a build failure is returned and nothing is registered.
func (s *Service) OpenTranscriptionStream(ctx context.Context, modelID string) (string, error) {
	_ = modelID // a single whisper model serves all streams

	streamID := uuid.NewString()
	sess := &transcriptionSession{
		samples: make(chan []float32, 256),
		drop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	ready := make(chan error, 1)

	go s.runTranscription(streamID, sess, ready)

	if err := <-ready; err != nil {
		return "", err
	}

	s.mu.Lock()
	s.streams[streamID] = sess
	s.mu.Unlock()
	return streamID, nil
}

func (s *Service) runTranscription(streamID string, sess *transcriptionSession, ready chan<- error) {
	defer close(sess.done)

	tr, err := newTranscriber(s.cfg)
	if err != nil {
		ready <- err
		return
	}
	defer tr.Close()
	ready <- nil

	ctx := context.Background()
	windower := runtime.NewActivityWindower()

	for {
		select {
		case <-sess.drop:
			return
		case samples := <-sess.samples:
			for _, window := range windower.Push(samples) {
				text, err := tr.Transcribe(window)
				if err != nil {
					log.Warn().Err(err).Str("stream", streamID).Msg("transcription_failed")
					continue
				}
				if text == "" {
					continue
				}
				payload, _ := json.Marshal(transcriptPayload{StreamID: streamID, Text: text})
				if err := s.status.bus.Publish(ctx, pubsub.TranscriptionTextTopic, payload); err != nil {
					log.Warn().Err(err).Str("stream", streamID).Msg("transcript_publish_failed")
				}
				// Yield between segments so a long utterance backlog does
				// not monopolize the pipeline.
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

// FeedTranscriptionStream enqueues PCM samples into a stream.
func (s *Service) FeedTranscriptionStream(ctx context.Context, streamID string, samples []float32) error {
	s.mu.Lock()
	sess, ok := s.streams[streamID]
	s.mu.Unlock()
	if !ok {
		return ErrStreamNotFound
	}
	select {
	case <-sess.done:
		return ErrStreamClosed
	case sess.samples <- samples:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseTranscriptionStream removes a stream and fires its drop signal. A
// pipeline that already died reports ErrSessionCrashed.
func (s *Service) CloseTranscriptionStream(ctx context.Context, streamID string) error {
	s.mu.Lock()
	sess, ok := s.streams[streamID]
	if ok {
		delete(s.streams, streamID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrStreamNotFound
	}
	select {
	case <-sess.done:
		return ErrSessionCrashed
	default:
	}
	sess.signalDrop()
	return nil
}

// warmTranscriberModel pre-builds the whisper model for a persisted
// transcription config so its weights are resident before the first stream.
func (s *Service) warmTranscriberModel(ctx context.Context, m store.ModelConfig) {
	s.status.publish(ctx, m.ID, 0, StatusLoading, false, false)
	if tr, err := newTranscriber(s.cfg); err != nil {
		log.Warn().Err(err).Str("model", m.ID).Msg("transcriber_warmup_failed")
	} else {
		tr.Close()
	}
	s.status.publish(ctx, m.ID, 100, StatusLoaded, true, false)
}
