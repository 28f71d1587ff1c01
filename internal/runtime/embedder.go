package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"modeld/internal/config"
	"modeld/internal/store"
)

// EmbedEngine turns text into a flat float32 vector. Engines are not safe for
// concurrent use; exactly one worker owns each engine.
type EmbedEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close()
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// localEmbedder is an embedding llama-server plus the HTTP client for its
// /v1/embeddings endpoint.
type localEmbedder struct {
	url    string
	model  string
	client *http.Client
	stop   func()
}

func (e *localEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedReq{Model: e.model, Input: []string{text}})
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings error: %s: %s", resp.Status, string(b))
	}

	var er embedResp
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(er.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return er.Data[0].Embedding, nil
}

func (e *localEmbedder) Close() {
	if e.stop != nil {
		e.stop()
	}
}

// NewLocalEmbedder resolves weights for an embedding model, spawns a dedicated
// llama-server in embedding mode and returns the engine bound to it.
func NewLocalEmbedder(ctx context.Context, cfg config.Config, local store.LocalModel, device Device, onProgress ProgressFunc) (EmbedEngine, error) {
	src, _, err := ResolveEmbeddingSource(local)
	if err != nil {
		return nil, err
	}
	modelPath, err := EnsureWeights(ctx, cfg.DataPath, "embeddings", src, cfg.HuggingFaceToken, onProgress)
	if err != nil {
		return nil, fmt.Errorf("resolve weights for %s: %w", local.FileName, err)
	}
	server, err := startLlamaServer(ctx, llamaServerOptions{
		Bin:       cfg.LlamaServerBin,
		ModelPath: modelPath,
		Device:    device,
		Embedding: true,
	})
	if err != nil {
		return nil, err
	}
	return &localEmbedder{
		url:    server.BaseURL() + "/embeddings",
		model:  src.FileName,
		client: http.DefaultClient,
		stop:   server.Stop,
	}, nil
}
