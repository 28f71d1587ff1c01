package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"modeld/internal/config"
	"modeld/internal/pubsub"
	"modeld/internal/runtime"
	"modeld/internal/store"
)

// fakeChatEngine records the final user message of every call and answers
// with an echo, so tests can assert which engine served which prompt.
type fakeChatEngine struct {
	mu      sync.Mutex
	name    string
	prompts []string
	msgLens []int
	warmups int
	closed  bool
}

func (f *fakeChatEngine) Chat(_ context.Context, msgs []runtime.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := msgs[len(msgs)-1].Content
	f.msgLens = append(f.msgLens, len(msgs))
	if last == "Test example prompt" {
		f.warmups++
	} else {
		f.prompts = append(f.prompts, last)
	}
	return "echo:" + last, nil
}

func (f *fakeChatEngine) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChatEngine) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeChatEngine) warmupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.warmups
}

func (f *fakeChatEngine) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeEmbedEngine struct{ dim int }

func (f fakeEmbedEngine) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (fakeEmbedEngine) Close() {}

// fakeTranscriber answers every window with a fixed text.
type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe([]float32) (string, error) { return f.text, nil }
func (f *fakeTranscriber) Close()                               {}

// engineRegistry tracks every fake chat engine built during a test, keyed by
// the local file name or remote model name it was built for.
type engineRegistry struct {
	mu sync.Mutex
	m  map[string][]*fakeChatEngine
}

func (r *engineRegistry) add(e *fakeChatEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[e.name] = append(r.m[e.name], e)
}

// latest returns the most recently built engine for a name.
func (r *engineRegistry) latest(name string) *fakeChatEngine {
	r.mu.Lock()
	defer r.mu.Unlock()
	engines := r.m[name]
	if len(engines) == 0 {
		return nil
	}
	return engines[len(engines)-1]
}

func (r *engineRegistry) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m[name])
}

// stubEngines replaces the engine builders with fakes for the duration of a
// test. The local builder still resolves weight sources, so unknown model
// names fail the same way the real builder does.
func stubEngines(t *testing.T) *engineRegistry {
	t.Helper()
	reg := &engineRegistry{m: map[string][]*fakeChatEngine{}}

	origLocal := newLocalChatEngine
	origRemote := newRemoteChatEngine
	origEmbed := newEmbedEngine
	origTranscriber := newTranscriber
	t.Cleanup(func() {
		newLocalChatEngine = origLocal
		newRemoteChatEngine = origRemote
		newEmbedEngine = origEmbed
		newTranscriber = origTranscriber
	})

	newLocalChatEngine = func(_ context.Context, _ config.Config, local store.LocalModel, _ runtime.Device, onProgress runtime.ProgressFunc) (runtime.ChatEngine, error) {
		if _, _, err := runtime.ResolveChatSource(local); err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(1)
		}
		e := &fakeChatEngine{name: local.FileName}
		reg.add(e)
		return e, nil
	}
	newRemoteChatEngine = func(remote store.RemoteModel) runtime.ChatEngine {
		e := &fakeChatEngine{name: remote.Model}
		reg.add(e)
		return e
	}
	newEmbedEngine = func(_ context.Context, _ config.Config, local store.LocalModel, _ runtime.Device, _ runtime.ProgressFunc) (runtime.EmbedEngine, error) {
		if _, _, err := runtime.ResolveEmbeddingSource(local); err != nil {
			return nil, err
		}
		return fakeEmbedEngine{dim: 768}, nil
	}
	newTranscriber = func(config.Config) (runtime.Transcriber, error) {
		return &fakeTranscriber{text: "hello world"}, nil
	}
	return reg
}

// statusTrace records the decoded status events published on the bus.
type statusTrace struct {
	mu     sync.Mutex
	events []store.ModelStatus
}

func recordStatuses(bus *pubsub.MemoryBus) *statusTrace {
	tr := &statusTrace{}
	ch := bus.Subscribe(pubsub.ModelLoadingStatusTopic)
	go func() {
		for msg := range ch {
			var st store.ModelStatus
			if err := json.Unmarshal(msg.Payload, &st); err != nil {
				continue
			}
			tr.mu.Lock()
			tr.events = append(tr.events, st)
			tr.mu.Unlock()
		}
	}()
	return tr
}

func (tr *statusTrace) snapshot() []store.ModelStatus {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]store.ModelStatus(nil), tr.events...)
}

func (tr *statusTrace) waitFor(t *testing.T, modelID string, match func(store.ModelStatus) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, st := range tr.snapshot() {
			if st.Model == modelID && match(st) {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func statusIs(status string) func(store.ModelStatus) bool {
	return func(st store.ModelStatus) bool { return st.Status == status }
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *pubsub.MemoryBus, *statusTrace) {
	t.Helper()
	st := store.NewMemoryStore()
	bus := pubsub.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	trace := recordStatuses(bus)
	svc := New(config.Config{Device: "cpu", DataPath: t.TempDir()}, st, bus)
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc, st, bus, trace
}

func TestGlobalAccessor(t *testing.T) {
	_, err := Global()
	require.ErrorIs(t, err, ErrServiceNotInitialized)

	svc, _, _, _ := newTestService(t)
	InitGlobal(svc)
	t.Cleanup(func() {
		globalMu.Lock()
		global = nil
		globalMu.Unlock()
	})

	got, err := Global()
	require.NoError(t, err)
	require.Same(t, svc, got)
}
