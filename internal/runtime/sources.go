package runtime

import (
	"errors"
	"fmt"

	"modeld/internal/store"
)

// ErrUnknownModelSource means a local model name is neither a known shortcut
// nor accompanied by a HuggingFace repo to fetch from.
var ErrUnknownModelSource = errors.New("unknown model source")

// WeightSource locates one GGUF file on HuggingFace.
type WeightSource struct {
	Repo     string
	Revision string
	FileName string
}

// chat model shortcuts: stable names accepted in LocalModel.FileName.
var chatShortcuts = map[string]WeightSource{
	"Qwen2.5.1-Coder-7B-Instruct":    {Repo: "bartowski/Qwen2.5.1-Coder-7B-Instruct-GGUF", FileName: "Qwen2.5.1-Coder-7B-Instruct-Q4_K_M.gguf"},
	"deepseek_r1_distill_qwen_1_5b":  {Repo: "unsloth/DeepSeek-R1-Distill-Qwen-1.5B-GGUF", FileName: "DeepSeek-R1-Distill-Qwen-1.5B-Q4_K_M.gguf"},
	"deepseek_r1_distill_qwen_7b":    {Repo: "unsloth/DeepSeek-R1-Distill-Qwen-7B-GGUF", FileName: "DeepSeek-R1-Distill-Qwen-7B-Q4_K_M.gguf"},
	"deepseek_r1_distill_qwen_14b":   {Repo: "unsloth/DeepSeek-R1-Distill-Qwen-14B-GGUF", FileName: "DeepSeek-R1-Distill-Qwen-14B-Q4_K_M.gguf"},
	"deepseek_r1_distill_llama_8b":   {Repo: "unsloth/DeepSeek-R1-Distill-Llama-8B-GGUF", FileName: "DeepSeek-R1-Distill-Llama-8B-Q4_K_M.gguf"},
	"llama_tiny":                     {Repo: "TheBloke/TinyLlama-1.1B-intermediate-step-1431k-3T-GGUF", FileName: "tinyllama-1.1b-intermediate-step-1431k-3t.Q4_K_M.gguf"},
	"llama_tiny_1_1b_chat":           {Repo: "TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF", FileName: "tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"},
	"llama_7b":                       {Repo: "TheBloke/Llama-2-7B-GGUF", FileName: "llama-2-7b.Q4_K_M.gguf"},
	"llama_7b_chat":                  {Repo: "TheBloke/Llama-2-7B-Chat-GGUF", FileName: "llama-2-7b-chat.Q4_K_M.gguf"},
	"llama_7b_code":                  {Repo: "TheBloke/CodeLlama-7B-GGUF", FileName: "codellama-7b.Q4_K_M.gguf"},
	"llama_8b":                       {Repo: "QuantFactory/Meta-Llama-3-8B-GGUF", FileName: "Meta-Llama-3-8B.Q4_K_M.gguf"},
	"llama_8b_chat":                  {Repo: "QuantFactory/Meta-Llama-3-8B-Instruct-GGUF", FileName: "Meta-Llama-3-8B-Instruct.Q4_K_M.gguf"},
	"llama_3_1_8b_chat":              {Repo: "bartowski/Meta-Llama-3.1-8B-Instruct-GGUF", FileName: "Meta-Llama-3.1-8B-Instruct-Q4_K_M.gguf"},
	"llama_13b":                      {Repo: "TheBloke/Llama-2-13B-GGUF", FileName: "llama-2-13b.Q4_K_M.gguf"},
	"llama_13b_chat":                 {Repo: "TheBloke/Llama-2-13B-chat-GGUF", FileName: "llama-2-13b-chat.Q4_K_M.gguf"},
	"llama_13b_code":                 {Repo: "TheBloke/CodeLlama-13B-GGUF", FileName: "codellama-13b.Q4_K_M.gguf"},
	"llama_34b_code":                 {Repo: "TheBloke/CodeLlama-34B-GGUF", FileName: "codellama-34b.Q4_K_M.gguf"},
	"llama_70b":                      {Repo: "TheBloke/Llama-2-70B-GGUF", FileName: "llama-2-70b.Q4_K_M.gguf"},
	"mistral_7b":                     {Repo: "TheBloke/Mistral-7B-v0.1-GGUF", FileName: "mistral-7b-v0.1.Q4_K_M.gguf"},
	"mistral_7b_instruct":            {Repo: "TheBloke/Mistral-7B-Instruct-v0.1-GGUF", FileName: "mistral-7b-instruct-v0.1.Q4_K_M.gguf"},
	"mistral_7b_instruct_2":          {Repo: "TheBloke/Mistral-7B-Instruct-v0.2-GGUF", FileName: "mistral-7b-instruct-v0.2.Q4_K_M.gguf"},
	"solar_10_7b":                    {Repo: "TheBloke/SOLAR-10.7B-v1.0-GGUF", FileName: "solar-10.7b-v1.0.Q4_K_M.gguf"},
	"solar_10_7b_instruct":           {Repo: "TheBloke/SOLAR-10.7B-Instruct-v1.0-GGUF", FileName: "solar-10.7b-instruct-v1.0.Q4_K_M.gguf"},
}

// embedding model shortcuts. "bert" is the bootstrap default.
var embeddingShortcuts = map[string]WeightSource{
	"bert": {Repo: "nomic-ai/nomic-embed-text-v1.5-GGUF", FileName: "nomic-embed-text-v1.5.Q8_0.gguf"},
}

// ResolveChatSource maps a LocalModel to a weight source: known shortcuts
// first, then an explicit HuggingFace repo. The tokenizer source, when
// present, rides along.
func ResolveChatSource(local store.LocalModel) (WeightSource, *WeightSource, error) {
	if src, ok := chatShortcuts[local.FileName]; ok {
		return withDefaultRevision(src), nil, nil
	}
	return resolveExplicit(local)
}

// ResolveEmbeddingSource is ResolveChatSource for embedding models.
func ResolveEmbeddingSource(local store.LocalModel) (WeightSource, *WeightSource, error) {
	if src, ok := embeddingShortcuts[local.FileName]; ok {
		return withDefaultRevision(src), nil, nil
	}
	return resolveExplicit(local)
}

func resolveExplicit(local store.LocalModel) (WeightSource, *WeightSource, error) {
	if local.HuggingfaceRepo == "" {
		return WeightSource{}, nil, fmt.Errorf(
			"%w: %q is not a known model name and no huggingface repo was provided",
			ErrUnknownModelSource, local.FileName)
	}
	src := WeightSource{
		Repo:     local.HuggingfaceRepo,
		Revision: local.Revision,
		FileName: local.FileName,
	}
	var tok *WeightSource
	if local.Tokenizer != nil {
		tok = &WeightSource{
			Repo:     local.Tokenizer.Repo,
			Revision: local.Tokenizer.Revision,
			FileName: local.Tokenizer.FileName,
		}
		*tok = withDefaultRevision(*tok)
	}
	return withDefaultRevision(src), tok, nil
}

func withDefaultRevision(src WeightSource) WeightSource {
	if src.Revision == "" {
		src.Revision = "main"
	}
	return src
}
