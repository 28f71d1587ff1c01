package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"modeld/internal/store"
)

type embedRequest struct {
	text  string
	reply chan embedResult
}

type embedResult struct {
	vector []float32
	err    error
}

// spawnEmbedWorker registers a mailbox for the model and starts its worker.
// The engine build happens inside the worker; requests queue behind it.
func (s *Service) spawnEmbedWorker(m store.ModelConfig) {
	mb := newMailbox[embedRequest]()
	s.mu.Lock()
	s.embed[m.ID] = mb
	s.mu.Unlock()
	go s.runEmbedWorker(mb, m)
}

func (s *Service) runEmbedWorker(mb *mailbox[embedRequest], m store.ModelConfig) {
	defer close(mb.done)
	ctx := context.Background()

	s.status.publish(ctx, m.ID, 0, StatusLoading, false, false)

	local := store.LocalModel{FileName: m.Name}
	if m.Local != nil {
		local = *m.Local
	}
	engine, err := newEmbedEngine(ctx, s.cfg, local, s.device, s.status.progressFunc(m.ID))
	if err != nil {
		log.Error().Err(err).Str("model", m.ID).Msg("failed_to_build_embedding_model")
		s.status.publish(ctx, m.ID, 100, "Failed to build embedding model: "+err.Error(), true, false)
		return
	}
	defer engine.Close()

	s.status.publish(ctx, m.ID, 100, StatusLoaded, true, false)

	for {
		select {
		case <-mb.quit:
			return
		case req := <-mb.ch:
			vec, err := engine.Embed(ctx, req.text)
			req.reply <- embedResult{vector: vec, err: err}
		}
	}
}

// Embed routes text to the embedding worker for a model and returns the
// vector. The key is the model id; a name is accepted as a fallback for
// callers of the historical name-keyed API.
func (s *Service) Embed(ctx context.Context, modelID, text string) ([]float32, error) {
	mb := s.embedMailbox(ctx, modelID)
	if mb == nil {
		return nil, ErrModelUnavailable
	}
	reply := make(chan embedResult, 1)
	if err := mb.send(embedRequest{text: text, reply: reply}); err != nil {
		return nil, err
	}
	res, err := await(mb.done, reply)
	if err != nil {
		return nil, err
	}
	return res.vector, res.err
}

func (s *Service) embedMailbox(ctx context.Context, modelID string) *mailbox[embedRequest] {
	s.mu.Lock()
	mb, ok := s.embed[modelID]
	s.mu.Unlock()
	if ok {
		return mb
	}
	// Name fallback: resolve against the store, then against the bootstrap
	// embedder, which exists without a store row.
	if models, err := s.store.GetModels(ctx); err == nil {
		for _, m := range models {
			if m.Name == modelID {
				s.mu.Lock()
				mb, ok = s.embed[m.ID]
				s.mu.Unlock()
				if ok {
					return mb
				}
			}
		}
	}
	if modelID == bootstrapEmbedder.Name {
		s.mu.Lock()
		mb, ok = s.embed[bootstrapEmbedder.ID]
		s.mu.Unlock()
		if ok {
			return mb
		}
	}
	return nil
}
