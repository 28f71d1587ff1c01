package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeld/internal/store"
)

func addLocalLLM(t *testing.T, svc *Service, name, fileName string) string {
	t.Helper()
	id, err := svc.AddModel(context.Background(), store.ModelInput{
		Name:  name,
		Kind:  store.KindLLM,
		Local: &store.LocalModel{FileName: fileName},
	})
	require.NoError(t, err)
	return id
}

func TestPromptRoundtrip(t *testing.T) {
	reg := stubEngines(t)
	svc, _, _, trace := newTestService(t)
	ctx := context.Background()

	modelID := addLocalLLM(t, svc, "Test Model", "llama_tiny_1_1b_chat")

	task, err := svc.AddTask(ctx, TaskInput{
		Name:         "Test task",
		ModelID:      modelID,
		SystemPrompt: "echo",
		Examples:     []store.PromptExample{{Input: "ping", Output: "pong"}},
	})
	require.NoError(t, err)

	out, err := svc.Prompt(ctx, task.ID, "ping")
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", out)

	engine := reg.latest("llama_tiny_1_1b_chat")
	require.NotNil(t, engine)
	assert.Equal(t, 1, engine.warmupCount(), "spawn should warm the task once")
	assert.Equal(t, 1, engine.promptCount())

	// The trace shows "Running inference..." followed by a fresh "Ready".
	require.Eventually(t, func() bool {
		lastInference, lastReady := -1, -1
		for i, st := range trace.snapshot() {
			if st.Model != modelID {
				continue
			}
			switch st.Status {
			case StatusRunningInference:
				lastInference = i
			case StatusReady:
				lastReady = i
			}
		}
		return lastInference >= 0 && lastReady > lastInference
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPromptUnknownTask(t *testing.T) {
	stubEngines(t)
	svc, _, _, _ := newTestService(t)

	_, err := svc.Prompt(context.Background(), "no-such-task", "hi")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestPromptConcurrent(t *testing.T) {
	stubEngines(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	modelID := addLocalLLM(t, svc, "Test Model", "llama_tiny")
	task, err := svc.AddTask(ctx, TaskInput{
		Name:         "stress",
		ModelID:      modelID,
		SystemPrompt: "echo",
		Examples: []store.PromptExample{
			{Input: "Test string", Output: "Yes, I'm working!"},
			{Input: "What's up?", Output: "Nothing, I'm working!"},
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Prompt(ctx, task.ID, "Test string")
			if err == nil && out == "" {
				err = context.Canceled
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestRemoteModelReplaysExamples(t *testing.T) {
	reg := stubEngines(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.AddModel(ctx, store.ModelInput{
		Name: "remote",
		Kind: store.KindLLM,
		Remote: &store.RemoteModel{
			APIKey:  "k",
			BaseURL: "https://api.example.com/v1",
			Model:   "gpt-4o-mini",
		},
	})
	require.NoError(t, err)

	task, err := svc.AddTask(ctx, TaskInput{
		Name:         "remote task",
		ModelID:      id,
		SystemPrompt: "sys",
		Examples: []store.PromptExample{
			{Input: "a", Output: "b"},
			{Input: "c", Output: "d"},
		},
	})
	require.NoError(t, err)

	out, err := svc.Prompt(ctx, task.ID, "q")
	require.NoError(t, err)
	assert.Equal(t, "echo:q", out)

	engine := reg.latest("gpt-4o-mini")
	require.NotNil(t, engine)
	// Remote prompts replay system + examples + prompt; spawn does not warm.
	assert.Equal(t, 0, engine.warmupCount())
	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.msgLens, 1)
	assert.Equal(t, 1+2*2+1, engine.msgLens[0])
}

func TestUnknownModelSource(t *testing.T) {
	stubEngines(t)
	svc, st, _, trace := newTestService(t)
	ctx := context.Background()

	id, err := svc.AddModel(ctx, store.ModelInput{
		Name:  "mystery",
		Kind:  store.KindLLM,
		Local: &store.LocalModel{FileName: "nonsense"},
	})
	require.NoError(t, err, "spawn registers; the build fails asynchronously")

	trace.waitFor(t, id, func(s store.ModelStatus) bool {
		return strings.HasPrefix(s.Status, "Failed to build LLM model:")
	})

	taskID, err := st.AddTask(ctx, "t", id, "sys", nil, "")
	require.NoError(t, err)
	_, err = svc.Prompt(ctx, taskID, "hi")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestDefaultModelRerouting(t *testing.T) {
	reg := stubEngines(t)
	svc, _, _, trace := newTestService(t)
	ctx := context.Background()

	modelA := addLocalLLM(t, svc, "A", "llama_tiny")
	modelB := addLocalLLM(t, svc, "B", "llama_tiny_1_1b_chat")
	trace.waitFor(t, modelA, statusIs(StatusReady))
	trace.waitFor(t, modelB, statusIs(StatusReady))

	require.NoError(t, svc.SetDefaultModel(ctx, store.KindLLM, modelA))

	task, err := svc.AddTask(ctx, TaskInput{
		Name:         "routed",
		ModelID:      store.DefaultModelSentinel,
		SystemPrompt: "sys",
	})
	require.NoError(t, err)

	_, err = svc.Prompt(ctx, task.ID, "one")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.latest("llama_tiny").promptCount())
	assert.Equal(t, 0, reg.latest("llama_tiny_1_1b_chat").promptCount())

	require.NoError(t, svc.SetDefaultModel(ctx, store.KindLLM, modelB))

	_, err = svc.Prompt(ctx, task.ID, "two")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.latest("llama_tiny").promptCount())
	assert.Equal(t, 1, reg.latest("llama_tiny_1_1b_chat").promptCount())
}

func TestNoDefaultModel(t *testing.T) {
	stubEngines(t)
	svc, _, _, _ := newTestService(t)

	_, err := svc.AddTask(context.Background(), TaskInput{
		Name:         "orphan",
		ModelID:      store.DefaultModelSentinel,
		SystemPrompt: "sys",
	})
	assert.ErrorIs(t, err, ErrNoDefaultModel)
}

func TestUpdateModelSwapsWorker(t *testing.T) {
	reg := stubEngines(t)
	svc, _, _, trace := newTestService(t)
	ctx := context.Background()

	modelID := addLocalLLM(t, svc, "M", "llama_tiny")
	task, err := svc.AddTask(ctx, TaskInput{
		Name:         "bound",
		ModelID:      modelID,
		SystemPrompt: "sys",
	})
	require.NoError(t, err)

	first := reg.latest("llama_tiny")

	require.NoError(t, svc.UpdateModel(ctx, modelID, store.ModelInput{
		Name:  "M renamed",
		Kind:  store.KindLLM,
		Local: &store.LocalModel{FileName: "llama_tiny"},
	}))

	trace.waitFor(t, modelID, statusIs(StatusShuttingDown))
	assert.True(t, first.isClosed(), "old engine torn down")
	assert.Equal(t, 2, reg.count("llama_tiny"), "fresh worker built a fresh engine")

	// Previously bound tasks accept prompts without the client re-adding.
	out, err := svc.Prompt(ctx, task.ID, "still here")
	require.NoError(t, err)
	assert.Equal(t, "echo:still here", out)
	assert.Equal(t, 1, reg.latest("llama_tiny").promptCount())
}

func TestUpdateModelKeepsEmbeddingWorker(t *testing.T) {
	stubEngines(t)
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.AddModel(ctx, store.ModelInput{
		Name:  "bert",
		Kind:  store.KindEmbedding,
		Local: &store.LocalModel{FileName: "bert"},
	})
	require.NoError(t, err)

	// Worker teardown for embedding models is still a no-op; only the row
	// changes.
	require.NoError(t, svc.UpdateModel(ctx, id, store.ModelInput{
		Name:  "bert renamed",
		Kind:  store.KindEmbedding,
		Local: &store.LocalModel{FileName: "bert"},
	}))

	m, ok, err := st.GetModel(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bert renamed", m.Name)

	vec, err := svc.Embed(ctx, id, "still serving")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}

func TestRemoveModelClosesMailbox(t *testing.T) {
	stubEngines(t)
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	modelID := addLocalLLM(t, svc, "M", "llama_tiny")
	task, err := svc.AddTask(ctx, TaskInput{Name: "t", ModelID: modelID, SystemPrompt: "sys"})
	require.NoError(t, err)

	// Warm path works before removal.
	_, err = svc.Prompt(ctx, task.ID, "hi")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveModel(ctx, modelID))

	_, ok, err := st.GetModel(ctx, modelID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Prompt(ctx, task.ID, "hi again")
	assert.ErrorIs(t, err, ErrModelUnavailable)

	// A re-added model gets a fresh worker and serves again.
	modelID2 := addLocalLLM(t, svc, "M", "llama_tiny")
	task2, err := svc.AddTask(ctx, TaskInput{Name: "t2", ModelID: modelID2, SystemPrompt: "sys"})
	require.NoError(t, err)
	out, err := svc.Prompt(ctx, task2.ID, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "echo:fresh", out)
}

func TestUpdateTaskMatchesDeleteThenAdd(t *testing.T) {
	reg := stubEngines(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	modelID := addLocalLLM(t, svc, "M", "llama_tiny")
	task, err := svc.AddTask(ctx, TaskInput{Name: "t", ModelID: modelID, SystemPrompt: "old"})
	require.NoError(t, err)

	task.SystemPrompt = "new"
	updated, err := svc.UpdateTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, "new", updated.SystemPrompt)

	// The task was re-materialized (one warm per spawn) and still serves.
	assert.Equal(t, 2, reg.latest("llama_tiny").warmupCount())
	out, err := svc.Prompt(ctx, task.ID, "go")
	require.NoError(t, err)
	assert.Equal(t, "echo:go", out)
}

func TestDeleteTask(t *testing.T) {
	stubEngines(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	modelID := addLocalLLM(t, svc, "M", "llama_tiny")
	task, err := svc.AddTask(ctx, TaskInput{Name: "t", ModelID: modelID, SystemPrompt: "sys"})
	require.NoError(t, err)

	ok, err := svc.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Prompt(ctx, task.ID, "hi")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.DeleteTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStartSpawnsPersistedModelsAndTasks(t *testing.T) {
	stubEngines(t)
	svc, st, _, trace := newTestService(t)
	ctx := context.Background()

	modelID, err := st.AddModel(ctx, store.ModelInput{
		Name:  "persisted",
		Kind:  store.KindLLM,
		Local: &store.LocalModel{FileName: "llama_tiny"},
	})
	require.NoError(t, err)
	taskID, err := st.AddTask(ctx, "persisted task", modelID, "sys", nil, "")
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx))

	out, err := svc.Prompt(ctx, taskID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", out)

	trace.waitFor(t, modelID, func(s store.ModelStatus) bool {
		return s.Downloaded && (s.Loaded || strings.HasPrefix(s.Status, "Failed"))
	})
}
