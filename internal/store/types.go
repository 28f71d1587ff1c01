package store

// ModelKind distinguishes the three model families the service hosts.
type ModelKind string

const (
	KindLLM           ModelKind = "LLM"
	KindEmbedding     ModelKind = "EMBEDDING"
	KindTranscription ModelKind = "TRANSCRIPTION"
)

// TokenizerSource points at a tokenizer file on HuggingFace.
type TokenizerSource struct {
	Repo     string `json:"repo"`
	Revision string `json:"revision"`
	FileName string `json:"fileName"`
}

// LocalModel describes locally hosted weights. FileName is either a known
// shortcut name or a file within HuggingfaceRepo.
type LocalModel struct {
	FileName        string           `json:"fileName"`
	HuggingfaceRepo string           `json:"huggingfaceRepo,omitempty"`
	Revision        string           `json:"revision,omitempty"`
	Tokenizer       *TokenizerSource `json:"tokenizer,omitempty"`
}

// RemoteModel describes an OpenAI-compatible chat endpoint.
type RemoteModel struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseURL"`
	Model   string `json:"model"`
}

// ModelConfig is the persisted, immutable descriptor of one model. Exactly
// one of Local and Remote is set; Remote is only valid for KindLLM.
type ModelConfig struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Kind   ModelKind    `json:"kind"`
	Local  *LocalModel  `json:"local,omitempty"`
	Remote *RemoteModel `json:"remote,omitempty"`
}

// ModelInput is a ModelConfig before the store assigns its id.
type ModelInput struct {
	Name   string       `json:"name"`
	Kind   ModelKind    `json:"kind"`
	Local  *LocalModel  `json:"local,omitempty"`
	Remote *RemoteModel `json:"remote,omitempty"`
}

// PromptExample is one few-shot input/output pair.
type PromptExample struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Task is a bound prompting context pinned to a model id. ModelID may be the
// sentinel "default", resolved at dispatch time.
type Task struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ModelID      string          `json:"modelId"`
	SystemPrompt string          `json:"systemPrompt"`
	Examples     []PromptExample `json:"examples"`
	MetaData     string          `json:"metaData,omitempty"`
}

// ModelStatus is the mutable per-model lifecycle row. Overwrites are
// last-writer-wins.
type ModelStatus struct {
	Model      string  `json:"model"`
	Progress   float64 `json:"progress"`
	Status     string  `json:"status"`
	Downloaded bool    `json:"downloaded"`
	Loaded     bool    `json:"loaded"`
}

// DefaultModelSentinel is the task model id that resolves to the nominated
// default at dispatch time.
const DefaultModelSentinel = "default"
