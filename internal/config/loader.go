package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment
	// variables; local configuration deterministically controls behavior
	// in development unless explicitly changed.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.DataPath = strings.TrimSpace(os.Getenv("DATA_PATH"))
	cfg.LlamaServerBin = strings.TrimSpace(os.Getenv("LLAMA_SERVER_BIN"))
	cfg.WhisperModelPath = strings.TrimSpace(os.Getenv("WHISPER_MODEL_PATH"))
	cfg.Device = strings.TrimSpace(os.Getenv("DEVICE"))
	cfg.HuggingFaceToken = strings.TrimSpace(os.Getenv("HF_TOKEN"))

	cfg.Database.DSN = firstNonEmpty(
		strings.TrimSpace(os.Getenv("DATABASE_URL")),
		strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
	)

	cfg.Bus.Backend = strings.TrimSpace(os.Getenv("BUS_BACKEND"))
	cfg.Bus.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Bus.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Bus.Redis.DB = n
		}
	}
	cfg.Bus.Kafka.Brokers = strings.TrimSpace(firstNonEmpty(
		os.Getenv("KAFKA_BROKERS"), os.Getenv("KAFKA_BOOTSTRAP_SERVERS")))
	cfg.Bus.Kafka.TopicPrefix = strings.TrimSpace(os.Getenv("KAFKA_STATUS_TOPIC_PREFIX"))

	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	if err := overlayFile(&cfg); err != nil {
		return Config{}, err
	}

	// Defaults after the env/file merge.
	if cfg.Device == "" {
		cfg.Device = "auto"
	}
	switch cfg.Device {
	case "auto", "cuda", "metal", "cpu":
	default:
		return Config{}, fmt.Errorf("device must be one of auto, cuda, metal, or cpu (got %q)", cfg.Device)
	}
	if cfg.Bus.Backend == "" {
		if cfg.Bus.Kafka.Brokers != "" {
			cfg.Bus.Backend = "kafka"
		} else if cfg.Bus.Redis.Addr != "" {
			cfg.Bus.Backend = "redis"
		} else {
			cfg.Bus.Backend = "memory"
		}
	}
	switch cfg.Bus.Backend {
	case "memory", "redis", "kafka":
	default:
		return Config{}, fmt.Errorf("bus backend must be one of memory, redis, or kafka (got %q)", cfg.Bus.Backend)
	}
	if cfg.Bus.Backend == "redis" && cfg.Bus.Redis.Addr == "" {
		cfg.Bus.Redis.Addr = "localhost:6379"
	}
	if cfg.Bus.Backend == "kafka" && cfg.Bus.Kafka.Brokers == "" {
		cfg.Bus.Kafka.Brokers = "localhost:9092"
	}
	if cfg.LlamaServerBin == "" {
		cfg.LlamaServerBin = "llama-server"
	}
	if cfg.DataPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("DATA_PATH not set and home directory unavailable: %w", err)
		}
		cfg.DataPath = filepath.Join(home, ".modeld")
	}
	if cfg.WhisperModelPath == "" {
		cfg.WhisperModelPath = filepath.Join(cfg.DataPath, "models", "whisper", "ggml-small.bin")
	}

	return cfg, nil
}

// overlayFile merges an optional modeld.yaml from the working directory.
// Values already set from the environment win.
func overlayFile(cfg *Config) error {
	path := strings.TrimSpace(os.Getenv("MODELD_CONFIG"))
	paths := []string{"modeld.yaml", "modeld.yml"}
	if path != "" {
		paths = []string{path}
	}
	var data []byte
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			break
		}
		if os.IsNotExist(err) {
			continue
		}
		return fmt.Errorf("read %s: %w", p, err)
	}
	if len(data) == 0 {
		return nil // optional
	}

	type fileYAML struct {
		DataPath       string `yaml:"dataPath"`
		LlamaServerBin string `yaml:"llamaServerBin"`
		WhisperModel   string `yaml:"whisperModel"`
		Device         string `yaml:"device"`
		HFToken        string `yaml:"hfToken"`
		Database       struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
		Bus struct {
			Backend string `yaml:"backend"`
			Redis   struct {
				Addr     string `yaml:"addr"`
				Password string `yaml:"password"`
				DB       int    `yaml:"db"`
			} `yaml:"redis"`
			Kafka struct {
				Brokers     string `yaml:"brokers"`
				TopicPrefix string `yaml:"topicPrefix"`
			} `yaml:"kafka"`
		} `yaml:"bus"`
		LogPath  string `yaml:"logPath"`
		LogLevel string `yaml:"logLevel"`
	}
	var f fileYAML
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if cfg.DataPath == "" {
		cfg.DataPath = strings.TrimSpace(f.DataPath)
	}
	if cfg.LlamaServerBin == "" {
		cfg.LlamaServerBin = strings.TrimSpace(f.LlamaServerBin)
	}
	if cfg.WhisperModelPath == "" {
		cfg.WhisperModelPath = strings.TrimSpace(f.WhisperModel)
	}
	if cfg.Device == "" {
		cfg.Device = strings.TrimSpace(f.Device)
	}
	if cfg.HuggingFaceToken == "" {
		cfg.HuggingFaceToken = strings.TrimSpace(f.HFToken)
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = strings.TrimSpace(f.Database.DSN)
	}
	if cfg.Bus.Backend == "" {
		cfg.Bus.Backend = strings.TrimSpace(f.Bus.Backend)
	}
	if cfg.Bus.Redis.Addr == "" {
		cfg.Bus.Redis.Addr = strings.TrimSpace(f.Bus.Redis.Addr)
	}
	if cfg.Bus.Redis.Password == "" {
		cfg.Bus.Redis.Password = f.Bus.Redis.Password
	}
	if cfg.Bus.Redis.DB == 0 {
		cfg.Bus.Redis.DB = f.Bus.Redis.DB
	}
	if cfg.Bus.Kafka.Brokers == "" {
		cfg.Bus.Kafka.Brokers = strings.TrimSpace(f.Bus.Kafka.Brokers)
	}
	if cfg.Bus.Kafka.TopicPrefix == "" {
		cfg.Bus.Kafka.TopicPrefix = strings.TrimSpace(f.Bus.Kafka.TopicPrefix)
	}
	if cfg.LogPath == "" {
		cfg.LogPath = strings.TrimSpace(f.LogPath)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = strings.TrimSpace(f.LogLevel)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
