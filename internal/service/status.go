package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"modeld/internal/pubsub"
	"modeld/internal/runtime"
	"modeld/internal/store"
)

// Canonical lifecycle status strings, stable for external consumers.
const (
	StatusLoading          = "Loading"
	StatusLoaded           = "Loaded"
	StatusDownloaded       = "Downloaded"
	StatusInitializing     = "Initializing"
	StatusSpawningThread   = "Spawning model thread..."
	StatusSpawningTask     = "Spawning task..."
	StatusRunningInference = "Running inference..."
	StatusReady            = "Ready"
	StatusShuttingDown     = "Shutting down"
)

// statusPublisher mirrors model lifecycle events into the status row and the
// pub/sub bus. Both sinks are best effort: failures are logged, never
// propagated to the worker that reported the event.
type statusPublisher struct {
	store store.Store
	bus   pubsub.Bus
}

func (p *statusPublisher) publish(ctx context.Context, modelID string, progress float64, status string, downloaded, loaded bool) {
	st := store.ModelStatus{
		Model:      modelID,
		Progress:   progress,
		Status:     status,
		Downloaded: downloaded,
		Loaded:     loaded,
	}
	if err := p.store.UpsertModelStatus(ctx, st); err != nil {
		log.Warn().Err(err).Str("model", modelID).Msg("model_status_upsert_failed")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		log.Warn().Err(err).Str("model", modelID).Msg("model_status_marshal_failed")
		return
	}
	if err := p.bus.Publish(ctx, pubsub.ModelLoadingStatusTopic, payload); err != nil {
		log.Warn().Err(err).Str("model", modelID).Msg("model_status_publish_failed")
	}
}

// progressFunc adapts builder progress callbacks into status events: partial
// progress reports "Loading", completion reports "Loaded".
func (p *statusPublisher) progressFunc(modelID string) runtime.ProgressFunc {
	return func(fraction float64) {
		progress := fraction * 100
		status := StatusLoading
		if progress >= 100 {
			status = StatusLoaded
		}
		p.publish(context.Background(), modelID, progress, status, false, false)
	}
}

// modelStatus returns the stored status row for a model.
func (p *statusPublisher) modelStatus(ctx context.Context, modelID string) (store.ModelStatus, error) {
	st, ok, err := p.store.GetModelStatus(ctx, modelID)
	if err != nil {
		return store.ModelStatus{}, fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return store.ModelStatus{}, ErrModelNotFound
	}
	return st, nil
}
