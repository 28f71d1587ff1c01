package runtime

import (
	"fmt"
	"os"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Transcriber converts 16 kHz mono float32 PCM into text. A transcriber is
// owned by exactly one session; its whisper context must never be shared.
type Transcriber interface {
	Transcribe(samples []float32) (string, error)
	Close()
}

type whisperTranscriber struct {
	model whisper.Model
	ctx   whisper.Context
}

// NewWhisperTranscriber loads the configured GGML whisper model and creates a
// context for one stream.
func NewWhisperTranscriber(modelPath string) (Transcriber, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model not found at %s: %w", modelPath, err)
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	ctx, err := model.NewContext()
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("create whisper context: %w", err)
	}
	return &whisperTranscriber{model: model, ctx: ctx}, nil
}

func (t *whisperTranscriber) Transcribe(samples []float32) (string, error) {
	if err := t.ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}
	var sb strings.Builder
	for {
		segment, err := t.ctx.NextSegment()
		if err != nil {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(segment.Text))
	}
	return sb.String(), nil
}

func (t *whisperTranscriber) Close() {
	if t.model != nil {
		t.model.Close()
	}
}
