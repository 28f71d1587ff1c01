// Package service implements the model worker supervisor: it owns one
// dedicated worker per configured model, routes typed requests from
// concurrent callers onto per-worker mailboxes, maintains the task catalog,
// drives transcription sessions and mirrors every lifecycle event into the
// status row and the pub/sub bus.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"modeld/internal/config"
	"modeld/internal/pubsub"
	"modeld/internal/runtime"
	"modeld/internal/store"
)

// Service is the public facade over the worker supervisor.
//
// Each model id maps to at most one live worker; the service holds only the
// mailbox, the worker goroutine holds the engine. Mailboxes are replaced
// wholesale on update: a concurrent request during the swap fails with
// ErrModelUnavailable rather than being queued for the successor.
type Service struct {
	cfg    config.Config
	store  store.Store
	status *statusPublisher
	device runtime.Device

	mu      sync.Mutex
	llm     map[string]*mailbox[llmRequest]
	embed   map[string]*mailbox[embedRequest]
	streams map[string]*transcriptionSession
}

// New wires a service against its store and bus. Call Start to spawn workers
// for the persisted models.
func New(cfg config.Config, st store.Store, bus pubsub.Bus) *Service {
	return &Service{
		cfg:    cfg,
		store:  st,
		status: &statusPublisher{store: st, bus: bus},
		device: runtime.SelectDevice(cfg.Device),
		llm:    map[string]*mailbox[llmRequest]{},
		embed:  map[string]*mailbox[embedRequest]{},
		streams: map[string]*transcriptionSession{},
	}
}

// bootstrapEmbedder is spawned when the store holds no models at all, so a
// fresh install (and the integration tests) always has a working embedder.
var bootstrapEmbedder = store.ModelConfig{
	ID:    "bert-id",
	Name:  "bert",
	Kind:  store.KindEmbedding,
	Local: &store.LocalModel{FileName: "bert"},
}

// Start spawns a worker for every persisted model and re-materializes every
// persisted task. Per-model spawn failures are logged and do not abort the
// batch; task spawn failures are returned.
func (s *Service) Start(ctx context.Context) error {
	models, err := s.store.GetModels(ctx)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	if len(models) == 0 {
		models = []store.ModelConfig{bootstrapEmbedder}
	}

	var wg sync.WaitGroup
	for _, m := range models {
		wg.Add(1)
		go func(m store.ModelConfig) {
			defer wg.Done()
			if err := s.initModel(ctx, m); err != nil {
				log.Error().Err(err).Str("model", m.ID).Msg("model_init_failed")
			}
		}(m)
	}
	wg.Wait()

	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	for _, t := range tasks {
		if err := s.spawnTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// initModel spawns the worker matching the model kind. LLM and embedding
// spawns return once the worker goroutine exists; the engine build continues
// inside the worker and requests queue behind it.
func (s *Service) initModel(ctx context.Context, m store.ModelConfig) error {
	switch m.Kind {
	case store.KindLLM:
		return s.spawnLLMWorker(m, nil)
	case store.KindEmbedding:
		s.spawnEmbedWorker(m)
		return nil
	case store.KindTranscription:
		s.warmTranscriberModel(ctx, m)
		return nil
	default:
		return fmt.Errorf("unknown model kind %q for model %s", m.Kind, m.ID)
	}
}

// Close shuts down every worker and transcription session. Used on daemon
// shutdown; individual teardown goes through RemoveModel and
// CloseTranscriptionStream.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	llm := s.llm
	embed := s.embed
	streams := s.streams
	s.llm = map[string]*mailbox[llmRequest]{}
	s.embed = map[string]*mailbox[embedRequest]{}
	s.streams = map[string]*transcriptionSession{}
	s.mu.Unlock()

	for id, mb := range llm {
		reply := make(chan struct{}, 1)
		if err := mb.send(llmShutdownRequest{reply: reply}); err == nil {
			select {
			case <-reply:
			case <-mb.done:
			}
		}
		log.Info().Str("model", id).Msg("llm_worker_stopped")
	}
	for id, mb := range embed {
		mb.stop()
		log.Info().Str("model", id).Msg("embedding_worker_stopped")
	}
	for id, sess := range streams {
		sess.signalDrop()
		log.Info().Str("stream", id).Msg("transcription_stream_stopped")
	}
}

// mailbox is a typed multi-producer single-consumer channel addressing one
// worker. done is closed by the worker on exit; senders racing a dead worker
// observe ErrModelUnavailable instead of blocking.
type mailbox[T any] struct {
	ch       chan T
	done     chan struct{}
	stopOnce sync.Once
	quit     chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{
		ch:   make(chan T, 256),
		done: make(chan struct{}),
		quit: make(chan struct{}),
	}
}

func (m *mailbox[T]) send(req T) error {
	select {
	case <-m.done:
		return ErrModelUnavailable
	default:
	}
	select {
	case m.ch <- req:
		return nil
	case <-m.done:
		return ErrModelUnavailable
	}
}

// stop asks the worker to exit without a shutdown message (used for workers
// whose request type has no shutdown variant).
func (m *mailbox[T]) stop() {
	m.stopOnce.Do(func() { close(m.quit) })
}

// await blocks until the worker replies or exits.
func await[R any](done <-chan struct{}, reply <-chan R) (R, error) {
	var zero R
	select {
	case r := <-reply:
		return r, nil
	case <-done:
		// The worker may have replied just before exiting.
		select {
		case r := <-reply:
			return r, nil
		default:
		}
		return zero, ErrModelUnavailable
	}
}

// Global singleton shim for legacy-style callers; prefer passing the Service.
var (
	globalMu sync.Mutex
	global   *Service
)

// InitGlobal installs the process-wide service instance.
func InitGlobal(s *Service) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = s
}

// Global returns the process-wide service instance, failing fast when
// InitGlobal has not run.
func Global() (*Service, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		return nil, ErrServiceNotInitialized
	}
	return global, nil
}
