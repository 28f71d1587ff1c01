// Package store persists model configurations, tasks, default-model
// nominations and per-model status rows. New selects a Postgres-backed
// implementation when a DSN is configured; otherwise an in-memory
// implementation serves development and tests.
package store

import (
	"context"
	"errors"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidModel  = errors.New("invalid model definition")
)

// Store is the persistence contract the service core depends on. Each call is
// atomic; implementations handle their own locking.
type Store interface {
	Init(ctx context.Context) error

	GetModels(ctx context.Context) ([]ModelConfig, error)
	GetModel(ctx context.Context, id string) (ModelConfig, bool, error)
	AddModel(ctx context.Context, in ModelInput) (string, error)
	UpdateModel(ctx context.Context, id string, in ModelInput) error
	RemoveModel(ctx context.Context, id string) error

	GetDefaultModel(ctx context.Context, kind ModelKind) (string, bool, error)
	SetDefaultModel(ctx context.Context, kind ModelKind, id string) error

	GetTasks(ctx context.Context) ([]Task, error)
	GetTask(ctx context.Context, id string) (Task, bool, error)
	AddTask(ctx context.Context, name, modelID, systemPrompt string, examples []PromptExample, metaData string) (string, error)
	UpdateTask(ctx context.Context, t Task) error
	RemoveTask(ctx context.Context, id string) error

	UpsertModelStatus(ctx context.Context, s ModelStatus) error
	GetModelStatus(ctx context.Context, id string) (ModelStatus, bool, error)
}

// validateModelInput enforces the backing invariants shared by both
// implementations: exactly one backing, and remote backings only on LLMs.
func validateModelInput(in ModelInput) error {
	if (in.Local == nil) == (in.Remote == nil) {
		return ErrInvalidModel
	}
	if in.Remote != nil && in.Kind != KindLLM {
		return ErrInvalidModel
	}
	return nil
}
