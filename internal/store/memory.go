package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory Store used for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	models   map[string]ModelConfig
	tasks    map[string]Task
	statuses map[string]ModelStatus
	defaults map[ModelKind]string
	order    []string // model insertion order, for stable GetModels
	tOrder   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models:   map[string]ModelConfig{},
		tasks:    map[string]Task{},
		statuses: map[string]ModelStatus{},
		defaults: map[ModelKind]string{},
	}
}

func (s *MemoryStore) Init(ctx context.Context) error { return nil }

func (s *MemoryStore) GetModels(ctx context.Context) ([]ModelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ModelConfig, 0, len(s.models))
	for _, id := range s.order {
		if m, ok := s.models[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetModel(ctx context.Context, id string) (ModelConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	return m, ok, nil
}

func (s *MemoryStore) AddModel(ctx context.Context, in ModelInput) (string, error) {
	if err := validateModelInput(in); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.models[id] = ModelConfig{ID: id, Name: in.Name, Kind: in.Kind, Local: in.Local, Remote: in.Remote}
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryStore) UpdateModel(ctx context.Context, id string, in ModelInput) error {
	if err := validateModelInput(in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; !ok {
		return ErrModelNotFound
	}
	s.models[id] = ModelConfig{ID: id, Name: in.Name, Kind: in.Kind, Local: in.Local, Remote: in.Remote}
	return nil
}

func (s *MemoryStore) RemoveModel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; !ok {
		return ErrModelNotFound
	}
	delete(s.models, id)
	delete(s.statuses, id)
	return nil
}

func (s *MemoryStore) GetDefaultModel(ctx context.Context, kind ModelKind) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.defaults[kind]
	return id, ok, nil
}

func (s *MemoryStore) SetDefaultModel(ctx context.Context, kind ModelKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[kind] = id
	return nil
}

func (s *MemoryStore) GetTasks(ctx context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, id := range s.tOrder {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok, nil
}

func (s *MemoryStore) AddTask(ctx context.Context, name, modelID, systemPrompt string, examples []PromptExample, metaData string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.tasks[id] = Task{
		ID:           id,
		Name:         name,
		ModelID:      modelID,
		SystemPrompt: systemPrompt,
		Examples:     examples,
		MetaData:     metaData,
	}
	s.tOrder = append(s.tOrder, id)
	return id, nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return ErrTaskNotFound
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *MemoryStore) RemoveTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) UpsertModelStatus(ctx context.Context, st ModelStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[st.Model] = st
	return nil
}

func (s *MemoryStore) GetModelStatus(ctx context.Context, id string) (ModelStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	return st, ok, nil
}
