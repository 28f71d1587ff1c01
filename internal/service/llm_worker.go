package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"modeld/internal/runtime"
	"modeld/internal/store"
)

// llmRequest is the typed message set of an LLM worker mailbox.
type llmRequest interface{ isLLMRequest() }

type llmSpawnRequest struct {
	task  store.Task
	reply chan error
}

type llmPromptRequest struct {
	taskID string
	prompt string
	reply  chan promptResult
}

type promptResult struct {
	text string
	err  error
}

type llmRemoveRequest struct {
	taskID string
	reply  chan struct{}
}

type llmShutdownRequest struct {
	reply chan struct{}
}

func (llmSpawnRequest) isLLMRequest()    {}
func (llmPromptRequest) isLLMRequest()   {}
func (llmRemoveRequest) isLLMRequest()   {}
func (llmShutdownRequest) isLLMRequest() {}

// spawnLLMWorker registers a mailbox for the model and starts its worker.
// ready, when non-nil, is closed once the engine is built and the worker is
// serving; a failed build exits the worker without closing ready (awaiters
// must also select on the mailbox done channel).
func (s *Service) spawnLLMWorker(m store.ModelConfig, ready chan struct{}) error {
	if m.Local == nil && m.Remote == nil {
		return fmt.Errorf("%w: model %s has no backing, nothing to spawn", store.ErrInvalidModel, m.Name)
	}
	mb := newMailbox[llmRequest]()
	s.mu.Lock()
	s.llm[m.ID] = mb
	s.mu.Unlock()
	go s.runLLMWorker(mb, m, ready)
	return nil
}

// taskMessages builds the replayed message prefix for a task: system prompt,
// then each example as a user/assistant pair.
func taskMessages(t store.Task) []runtime.Message {
	msgs := make([]runtime.Message, 0, 1+2*len(t.Examples))
	msgs = append(msgs, runtime.Message{Role: "system", Content: t.SystemPrompt})
	for _, ex := range t.Examples {
		msgs = append(msgs,
			runtime.Message{Role: "user", Content: ex.Input},
			runtime.Message{Role: "assistant", Content: ex.Output},
		)
	}
	return msgs
}

func (s *Service) runLLMWorker(mb *mailbox[llmRequest], m store.ModelConfig, ready chan struct{}) {
	defer close(mb.done)
	ctx := context.Background()

	s.status.publish(ctx, m.ID, 100, StatusSpawningThread, true, false)

	engine, err := s.buildChatEngine(ctx, m)
	if err != nil {
		log.Error().Err(err).Str("model", m.ID).Msg("failed_to_build_llm_model")
		s.status.publish(ctx, m.ID, 100, fmt.Sprintf("Failed to build LLM model: %v", err), true, false)
		return
	}
	defer engine.Close()

	local := m.Remote == nil

	// Materialized tasks (local models) and raw descriptions (remote models,
	// which have no server-side task state and replay the chain per call).
	tasks := map[string][]runtime.Message{}
	descriptions := map[string]store.Task{}

	s.status.publish(ctx, m.ID, 100, StatusReady, true, true)
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-mb.quit:
			return
		case req := <-mb.ch:
			switch r := req.(type) {
			case llmShutdownRequest:
				s.status.publish(ctx, m.ID, 100, StatusShuttingDown, true, false)
				r.reply <- struct{}{}
				return

			case llmSpawnRequest:
				if !local {
					descriptions[r.task.ID] = r.task
					r.reply <- nil
					continue
				}
				s.status.publish(ctx, m.ID, 100, StatusSpawningTask, true, true)
				prefix := taskMessages(r.task)
				// Warm the task with one disposable prompt so the first
				// real prompt is not the cold path.
				if _, err := engine.Chat(ctx, append(prefix[:len(prefix):len(prefix)],
					runtime.Message{Role: "user", Content: "Test example prompt"})); err != nil {
					log.Warn().Err(err).Str("model", m.ID).Str("task", r.task.ID).Msg("task_warmup_failed")
				}
				tasks[r.task.ID] = prefix
				r.reply <- nil
				s.status.publish(ctx, m.ID, 100, StatusReady, true, true)

			case llmPromptRequest:
				if local {
					prefix, ok := tasks[r.taskID]
					if !ok {
						r.reply <- promptResult{err: fmt.Errorf("%w: %s", ErrTaskNotSpawned, r.taskID)}
						continue
					}
					s.status.publish(ctx, m.ID, 100, StatusRunningInference, true, true)
					text, err := engine.Chat(ctx, append(prefix[:len(prefix):len(prefix)],
						runtime.Message{Role: "user", Content: r.prompt}))
					s.status.publish(ctx, m.ID, 100, StatusReady, true, true)
					r.reply <- promptResult{text: text, err: err}
					continue
				}
				task, ok := descriptions[r.taskID]
				if !ok {
					r.reply <- promptResult{err: fmt.Errorf("%w: %s", ErrTaskNotSpawned, r.taskID)}
					continue
				}
				msgs := append(taskMessages(task), runtime.Message{Role: "user", Content: r.prompt})
				text, err := engine.Chat(ctx, msgs)
				if err != nil && !errors.Is(err, runtime.ErrNoChoice) {
					err = fmt.Errorf("%w: %v", ErrRemoteAPI, err)
				}
				r.reply <- promptResult{text: text, err: err}

			case llmRemoveRequest:
				delete(tasks, r.taskID)
				delete(descriptions, r.taskID)
				r.reply <- struct{}{}
			}
		}
	}
}

// buildChatEngine constructs the engine for a model config, forwarding build
// progress to the status publisher.
func (s *Service) buildChatEngine(ctx context.Context, m store.ModelConfig) (runtime.ChatEngine, error) {
	if m.Local != nil {
		s.status.publish(ctx, m.ID, 0, StatusLoading, false, false)
		engine, err := newLocalChatEngine(ctx, s.cfg, *m.Local, s.device, s.status.progressFunc(m.ID))
		if err != nil {
			return nil, err
		}
		s.status.publish(ctx, m.ID, 100, StatusDownloaded, true, false)
		return engine, nil
	}
	s.status.publish(ctx, m.ID, 0, StatusInitializing, false, false)
	engine := newRemoteChatEngine(*m.Remote)
	s.status.publish(ctx, m.ID, 100, StatusInitializing, true, false)
	return engine, nil
}
