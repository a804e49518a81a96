package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/vibemeet/vibemeet/internal/adapters/http"
	"github.com/vibemeet/vibemeet/internal/adapters/signal"
	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/config"
	"github.com/vibemeet/vibemeet/internal/extern"
	"github.com/vibemeet/vibemeet/internal/store"
)

func main() {
	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	memory := store.NewMemory(cfg.Retention)
	var st store.Store = memory
	var mongoStore *store.Mongo
	if cfg.MongoURI != "" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		mongoStore, err = store.NewMongo(connectCtx, cfg.MongoURI, "vibemeet", cfg.Retention)
		connectCancel()
		if err != nil {
			log.Warn().Err(err).Msg("mongo unreachable, running on in-memory storage")
			mongoStore = nil
		} else {
			st = store.NewFallback(mongoStore, memory)
			log.Info().Msg("mongo storage connected")
		}
	} else {
		log.Info().Msg("no mongo uri configured, running on in-memory storage")
	}

	registry := app.NewRegistry()
	proto := app.NewProtocol(st, registry, cfg.HistoryLimit)

	go proto.RunSweeper(ctx, cfg.Presence.SweepEvery, cfg.Presence.StaleAfter)
	if mongoStore == nil {
		// Mongo expires messages with a TTL index; memory needs a janitor.
		go runMemoryJanitor(ctx, memory)
	}

	opts := signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		RateEvents: cfg.RateLimit.Events,
		RateWindow: cfg.RateLimit.Window,
	}
	if cfg.AI.BaseURL != "" && cfg.AI.APIKey != "" {
		primary := extern.NewOpenAICompleter(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout)
		opts.Completer = &extern.FallbackCompleter{Primary: primary}
		opts.AIMaxTokens = cfg.AI.MaxTokens
		opts.AITemperature = cfg.AI.Temperature
		log.Info().Str("model", cfg.AI.Model).Msg("assistant enabled")
	}
	if cfg.Extract.BaseURL != "" {
		opts.Extractor = extern.NewHTTPExtractor(cfg.Extract.BaseURL, cfg.Extract.Timeout)
	}
	ctl := signal.NewController(proto, opts)

	r := router.SetupRouter(ctx, cfg, proto, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("vibemeet server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if mongoStore != nil {
		if err := mongoStore.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("mongo close")
		}
	}
	log.Info().Msg("Server exited gracefully")
}

func runMemoryJanitor(ctx context.Context, m *store.Memory) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.PurgeExpired(now); n > 0 {
				log.Info().Int("purged", n).Msg("expired messages purged")
			}
		}
	}
}
