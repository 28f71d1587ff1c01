package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeld/internal/store"
)

func TestStartBootstrapsEmbedder(t *testing.T) {
	stubEngines(t)
	svc, _, _, trace := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx))

	// The seeded embedder is addressable by name and by id.
	vec, err := svc.Embed(ctx, "bert", "Test string")
	require.NoError(t, err)
	assert.Greater(t, len(vec), 300)

	vec, err = svc.Embed(ctx, "bert-id", "Test string")
	require.NoError(t, err)
	assert.Greater(t, len(vec), 300)

	trace.waitFor(t, "bert-id", func(st store.ModelStatus) bool {
		return st.Status == StatusLoaded && st.Downloaded
	})

	status, err := svc.ModelStatus(ctx, "bert-id")
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, status.Status)
	assert.True(t, status.Downloaded)
}

func TestEmbedByNameFallback(t *testing.T) {
	stubEngines(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.AddModel(ctx, store.ModelInput{
		Name:  "embedder",
		Kind:  store.KindEmbedding,
		Local: &store.LocalModel{FileName: "bert"},
	})
	require.NoError(t, err)

	// id is the canonical key; the stored name still routes for callers of
	// the historical name-keyed API.
	_, err = svc.Embed(ctx, id, "by id")
	require.NoError(t, err)
	_, err = svc.Embed(ctx, "embedder", "by name")
	require.NoError(t, err)

	_, err = svc.Embed(ctx, "no-such-model", "nope")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestModelStatusUnknown(t *testing.T) {
	stubEngines(t)
	svc, _, _, _ := newTestService(t)

	_, err := svc.ModelStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrModelNotFound)
}
