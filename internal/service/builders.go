package service

import (
	"context"

	"modeld/internal/config"
	"modeld/internal/runtime"
	"modeld/internal/store"
)

// Engine builders as package variables so tests can substitute fakes without
// spawning processes or loading weights.
var (
	newLocalChatEngine = func(ctx context.Context, cfg config.Config, local store.LocalModel, device runtime.Device, onProgress runtime.ProgressFunc) (runtime.ChatEngine, error) {
		return runtime.NewLocalChat(ctx, cfg, local, device, onProgress)
	}

	newRemoteChatEngine = func(remote store.RemoteModel) runtime.ChatEngine {
		return runtime.NewRemoteChat(remote)
	}

	newEmbedEngine = func(ctx context.Context, cfg config.Config, local store.LocalModel, device runtime.Device, onProgress runtime.ProgressFunc) (runtime.EmbedEngine, error) {
		return runtime.NewLocalEmbedder(ctx, cfg, local, device, onProgress)
	}

	newTranscriber = func(cfg config.Config) (runtime.Transcriber, error) {
		return runtime.NewWhisperTranscriber(cfg.WhisperModelPath)
	}
)
