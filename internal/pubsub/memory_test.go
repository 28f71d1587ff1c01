package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeld/internal/config"
)

func TestMemoryBus_PublishReachesSubscribers(t *testing.T) {
	t.Parallel()
	b := NewMemoryBus()
	defer b.Close()

	status := b.Subscribe(ModelLoadingStatusTopic)
	other := b.Subscribe(TranscriptionTextTopic)

	require.NoError(t, b.Publish(context.Background(), ModelLoadingStatusTopic, []byte(`{"model":"m"}`)))

	msg := <-status
	assert.Equal(t, ModelLoadingStatusTopic, msg.Topic)
	assert.JSONEq(t, `{"model":"m"}`, string(msg.Payload))

	select {
	case m := <-other:
		t.Fatalf("unexpected message on transcript topic: %s", m.Payload)
	default:
	}
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	b := NewMemoryBus()
	ch := b.Subscribe("t")
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, open := <-ch
	assert.False(t, open)
	// Publishing after close is a no-op, not a panic.
	assert.NoError(t, b.Publish(context.Background(), "t", []byte("x")))
}

func TestNew_SelectsBackend(t *testing.T) {
	t.Parallel()
	bus, err := New(config.BusConfig{Backend: "memory"})
	require.NoError(t, err)
	_, isMem := bus.(*MemoryBus)
	assert.True(t, isMem)

	_, err = New(config.BusConfig{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}
