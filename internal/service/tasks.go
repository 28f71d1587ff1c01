package service

import (
	"context"
	"fmt"

	"modeld/internal/store"
)

// resolveModelID maps the "default" sentinel to the nominated LLM default.
// Resolution happens at every dispatch, so changing the default takes effect
// on next use without rewriting tasks.
func (s *Service) resolveModelID(ctx context.Context, modelID string) (string, error) {
	if modelID != store.DefaultModelSentinel {
		return modelID, nil
	}
	id, ok, err := s.store.GetDefaultModel(ctx, store.KindLLM)
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return "", ErrNoDefaultModel
	}
	return id, nil
}

// llmMailbox clones the sender for a resolved model id out of the map, so the
// lock is never held across an inference.
func (s *Service) llmMailbox(id string) (*mailbox[llmRequest], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mb, ok := s.llm[id]
	return mb, ok
}

// spawnTask materializes a task inside the worker of its resolved model.
func (s *Service) spawnTask(ctx context.Context, t store.Task) error {
	modelID, err := s.resolveModelID(ctx, t.ModelID)
	if err != nil {
		return err
	}
	mb, ok := s.llmMailbox(modelID)
	if !ok {
		return fmt.Errorf("%w: no worker for model %q", ErrModelUnavailable, modelID)
	}
	reply := make(chan error, 1)
	if err := mb.send(llmSpawnRequest{task: t, reply: reply}); err != nil {
		return err
	}
	res, err := await(mb.done, reply)
	if err != nil {
		return err
	}
	return res
}

// removeTask withdraws a task from the worker of its resolved model.
func (s *Service) removeTask(ctx context.Context, taskID string) error {
	t, ok, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return ErrTaskNotFound
	}
	modelID, err := s.resolveModelID(ctx, t.ModelID)
	if err != nil {
		return err
	}
	mb, ok := s.llmMailbox(modelID)
	if !ok {
		return fmt.Errorf("%w: no worker for model %q", ErrModelUnavailable, modelID)
	}
	reply := make(chan struct{}, 1)
	if err := mb.send(llmRemoveRequest{taskID: taskID, reply: reply}); err != nil {
		return err
	}
	_, err = await(mb.done, reply)
	return err
}

// GetTasks lists every persisted task.
func (s *Service) GetTasks(ctx context.Context) ([]store.Task, error) {
	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return tasks, nil
}

// TaskInput describes a task to create.
type TaskInput struct {
	Name         string
	ModelID      string
	SystemPrompt string
	Examples     []store.PromptExample
	MetaData     string
}

// AddTask persists a task and materializes it on its resolved worker.
func (s *Service) AddTask(ctx context.Context, in TaskInput) (store.Task, error) {
	id, err := s.store.AddTask(ctx, in.Name, in.ModelID, in.SystemPrompt, in.Examples, in.MetaData)
	if err != nil {
		return store.Task{}, fmt.Errorf("database error: %w", err)
	}
	t, ok, err := s.store.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return store.Task{}, ErrTaskNotFound
	}
	if err := s.spawnTask(ctx, t); err != nil {
		return store.Task{}, err
	}
	return t, nil
}

// UpdateTask persists the new definition, withdraws the old materialization
// and re-materializes on the (possibly different) resolved worker.
func (s *Service) UpdateTask(ctx context.Context, t store.Task) (store.Task, error) {
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return store.Task{}, fmt.Errorf("database error: %w", err)
	}
	if err := s.removeTask(ctx, t.ID); err != nil {
		return store.Task{}, err
	}
	updated, ok, err := s.store.GetTask(ctx, t.ID)
	if err != nil {
		return store.Task{}, fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return store.Task{}, ErrTaskNotFound
	}
	if err := s.spawnTask(ctx, updated); err != nil {
		return store.Task{}, err
	}
	return updated, nil
}

// DeleteTask withdraws the task from its worker and removes it from the
// store.
func (s *Service) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	if err := s.removeTask(ctx, taskID); err != nil {
		return false, err
	}
	if err := s.store.RemoveTask(ctx, taskID); err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return true, nil
}

// Prompt runs a prompt against a task on its resolved worker and returns the
// completion text.
func (s *Service) Prompt(ctx context.Context, taskID, prompt string) (string, error) {
	t, ok, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	if !ok {
		return "", ErrTaskNotFound
	}
	modelID, err := s.resolveModelID(ctx, t.ModelID)
	if err != nil {
		return "", err
	}
	mb, ok := s.llmMailbox(modelID)
	if !ok {
		return "", fmt.Errorf("%w: no worker for model %q", ErrModelUnavailable, modelID)
	}
	reply := make(chan promptResult, 1)
	if err := mb.send(llmPromptRequest{taskID: taskID, prompt: prompt, reply: reply}); err != nil {
		return "", err
	}
	res, err := await(mb.done, reply)
	if err != nil {
		return "", err
	}
	return res.text, res.err
}
