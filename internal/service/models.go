package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"modeld/internal/store"
)

// AddModel persists a model configuration and spawns its worker, returning
// the new id.
func (s *Service) AddModel(ctx context.Context, in store.ModelInput) (string, error) {
	id, err := s.store.AddModel(ctx, in)
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	m, ok, err := s.store.GetModel(ctx, id)
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return "", ErrModelNotFound
	}
	if err := s.initModel(ctx, m); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateModel persists the new configuration and, for LLMs, swaps the worker:
// the old worker is shut down and awaited, a new one is spawned and awaited
// until ready, and every task bound to the model is re-materialized.
// Embedding and transcription workers are left running; only the store row
// changes for them.
func (s *Service) UpdateModel(ctx context.Context, id string, in store.ModelInput) error {
	existing, ok, err := s.store.GetModel(ctx, id)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return ErrModelNotFound
	}
	if err := s.store.UpdateModel(ctx, id, in); err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	updated, ok, err := s.store.GetModel(ctx, id)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return ErrModelNotFound
	}

	if existing.Kind != store.KindLLM {
		return nil
	}

	s.shutdownLLMWorker(id)

	// Spawn the replacement and wait until its engine is serving. Between
	// removal of the old mailbox and registration of the new one, concurrent
	// senders get ErrModelUnavailable; once the new mailbox is registered,
	// their requests queue behind the engine build.
	ready := make(chan struct{})
	if err := s.spawnLLMWorker(updated, ready); err != nil {
		return err
	}
	mb, _ := s.llmMailbox(id)
	select {
	case <-ready:
	case <-mb.done:
		return fmt.Errorf("%w: model %s failed to build", ErrModelUnavailable, id)
	case <-ctx.Done():
		return ctx.Err()
	}

	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	for _, t := range tasks {
		if t.ModelID != id {
			continue
		}
		if err := s.spawnTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// RemoveModel shuts the worker down (LLMs only; embedding and transcription
// teardown is still a no-op) and removes the model from the store.
func (s *Service) RemoveModel(ctx context.Context, id string) error {
	existing, ok, err := s.store.GetModel(ctx, id)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return ErrModelNotFound
	}
	if existing.Kind == store.KindLLM {
		s.shutdownLLMWorker(id)
	}
	if err := s.store.RemoveModel(ctx, id); err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// shutdownLLMWorker sends Shutdown to a worker, awaits its confirmation and
// drops the mailbox. A missing worker is logged, not an error.
func (s *Service) shutdownLLMWorker(id string) {
	s.mu.Lock()
	mb, ok := s.llm[id]
	if ok {
		delete(s.llm, id)
	}
	s.mu.Unlock()
	if !ok {
		log.Info().Str("model", id).Msg("llm_worker_absent_nothing_to_shutdown")
		return
	}
	reply := make(chan struct{}, 1)
	if err := mb.send(llmShutdownRequest{reply: reply}); err != nil {
		log.Info().Str("model", id).Msg("llm_worker_already_stopped")
		return
	}
	if _, err := await(mb.done, reply); err == nil {
		log.Info().Str("model", id).Msg("llm_worker_confirmed_shutdown")
	}
}

// SetDefaultModel nominates the default LLM and re-materializes every task
// bound to the "default" sentinel so the next dispatch routes to the new
// default. For any other kind it returns nil without storing anything.
func (s *Service) SetDefaultModel(ctx context.Context, kind store.ModelKind, id string) error {
	if kind != store.KindLLM {
		return nil
	}
	if err := s.store.SetDefaultModel(ctx, kind, id); err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	for _, t := range tasks {
		if t.ModelID != store.DefaultModelSentinel {
			continue
		}
		if err := s.spawnTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// ModelStatus returns the stored lifecycle row for a model.
func (s *Service) ModelStatus(ctx context.Context, id string) (store.ModelStatus, error) {
	return s.status.modelStatus(ctx, id)
}
