package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"modeld/internal/config"
	"modeld/internal/store"
)

// ErrNoChoice means the chat endpoint answered without any completion choice.
var ErrNoChoice = errors.New("chat response contained no choice")

// Message is one chat message in a prompt replay.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// ChatEngine produces a completion for an ordered message list. Engines are
// not safe for concurrent use; exactly one worker owns each engine.
type ChatEngine interface {
	Chat(ctx context.Context, msgs []Message) (string, error)
	Close()
}

// NormalizeBaseURL canonicalizes an OpenAI-compatible endpoint so that both
// "https://host" and "https://host/v1" inputs address the same API root.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	u = strings.TrimSuffix(u, "/v1")
	return u + "/v1"
}

func adaptMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

// openAIChat speaks chat completions to one endpoint with one model name.
// Used both for remote APIs and for the local llama-server, which exposes the
// same surface.
type openAIChat struct {
	client sdk.Client
	model  string
	stop   func()
}

func (c *openAIChat) Chat(ctx context.Context, msgs []Message) (string, error) {
	comp, err := c.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: adaptMessages(msgs),
	})
	if err != nil {
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", ErrNoChoice
	}
	return comp.Choices[0].Message.Content, nil
}

func (c *openAIChat) Close() {
	if c.stop != nil {
		c.stop()
	}
}

// NewRemoteChat builds a chat engine for an OpenAI-compatible remote API.
func NewRemoteChat(remote store.RemoteModel) ChatEngine {
	client := sdk.NewClient(
		option.WithAPIKey(remote.APIKey),
		option.WithBaseURL(NormalizeBaseURL(remote.BaseURL)),
	)
	return &openAIChat{client: client, model: remote.Model}
}

// NewLocalChat resolves weights for a local chat model, downloads them if
// needed (reporting progress), spawns a dedicated llama-server and returns an
// engine bound to it. Closing the engine stops the server.
func NewLocalChat(ctx context.Context, cfg config.Config, local store.LocalModel, device Device, onProgress ProgressFunc) (ChatEngine, error) {
	src, _, err := ResolveChatSource(local)
	if err != nil {
		return nil, err
	}
	modelPath, err := EnsureWeights(ctx, cfg.DataPath, "gguf", src, cfg.HuggingFaceToken, onProgress)
	if err != nil {
		return nil, fmt.Errorf("resolve weights for %s: %w", local.FileName, err)
	}
	server, err := startLlamaServer(ctx, llamaServerOptions{
		Bin:       cfg.LlamaServerBin,
		ModelPath: modelPath,
		Device:    device,
	})
	if err != nil {
		return nil, err
	}
	client := sdk.NewClient(
		option.WithAPIKey("none"),
		option.WithBaseURL(server.BaseURL()),
	)
	return &openAIChat{client: client, model: src.FileName, stop: server.Stop}, nil
}
