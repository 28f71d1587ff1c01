package config

// Config holds the runtime configuration for the model service daemon.
// Values come from the environment (optionally overlaid by a .env file and a
// modeld.yaml file); Load applies defaults and validates.
type Config struct {
	// DataPath is the root directory for downloaded model weights.
	DataPath string

	// LlamaServerBin is the path to the llama-server binary used to host
	// local chat and embedding models. Empty means "llama-server" on PATH.
	LlamaServerBin string

	// WhisperModelPath is the GGML whisper model used for transcription
	// streams.
	WhisperModelPath string

	// Device selects the compute device policy: auto, cuda, metal or cpu.
	Device string

	// HuggingFaceToken authenticates weight downloads, when set.
	HuggingFaceToken string

	Database DatabaseConfig
	Bus      BusConfig

	LogPath  string
	LogLevel string
}

type DatabaseConfig struct {
	// DSN is the Postgres connection string. Empty selects the in-memory
	// store.
	DSN string
}

// BusConfig selects the pub/sub backend for status and transcript topics.
type BusConfig struct {
	// Backend is one of memory, redis, kafka.
	Backend string

	Redis RedisConfig
	Kafka KafkaConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	// Brokers is a comma-separated broker list.
	Brokers string
	// TopicPrefix is prepended to topic names, e.g. "dev.modeld.".
	TopicPrefix string
}
