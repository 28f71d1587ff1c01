package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"modeld/internal/config"
	"modeld/internal/observability"
	"modeld/internal/pubsub"
	"modeld/internal/service"
	"modeld/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if err := st.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("store schema init failed")
	}

	bus, err := pubsub.New(cfg.Bus)
	if err != nil {
		log.Fatal().Err(err).Msg("bus init failed")
	}
	defer bus.Close()

	svc := service.New(cfg, st, bus)
	service.InitGlobal(svc)

	go func() {
		if err := svc.Start(ctx); err != nil {
			log.Error().Err(err).Msg("error while loading models")
		}
	}()

	log.Info().Str("bus", cfg.Bus.Backend).Msg("modeld running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	svc.Close(ctx)
}
