package pubsub

import (
	"fmt"

	"modeld/internal/config"
)

// New constructs the bus backend selected by configuration.
// Supported backends: memory, redis, kafka.
func New(cfg config.BusConfig) (Bus, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBus(), nil
	case "redis":
		return NewRedisBus(cfg.Redis)
	case "kafka":
		return NewKafkaBus(cfg.Kafka), nil
	default:
		return nil, fmt.Errorf("unsupported bus backend: %s", cfg.Backend)
	}
}
