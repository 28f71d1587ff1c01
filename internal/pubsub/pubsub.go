// Package pubsub provides the fire-and-forget topic bus the model service
// publishes lifecycle and transcript events on. Payloads are JSON strings;
// delivery is best effort and publish errors are reported to the caller, who
// decides whether they matter.
package pubsub

import "context"

// Topic names, stable for external consumers.
const (
	ModelLoadingStatusTopic = "ai_model_loading_status"
	TranscriptionTextTopic  = "ai_transcription_text"
)

// Bus is a fire-and-forget topic publisher.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
