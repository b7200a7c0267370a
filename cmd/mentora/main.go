package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ombralab/mentora/internal/brain"
	"github.com/ombralab/mentora/internal/chat"
	"github.com/ombralab/mentora/internal/coach"
	"github.com/ombralab/mentora/internal/config"
	"github.com/ombralab/mentora/internal/httpapi"
	"github.com/ombralab/mentora/internal/loopdetect"
	"github.com/ombralab/mentora/internal/memory"
	"github.com/ombralab/mentora/internal/observability"
	"github.com/ombralab/mentora/internal/prompt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, storeMode, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer store.Close()
	log.Printf("memory store: %s", storeMode)

	adapter, brainMode, err := brain.NewAdapter(brain.Config{
		Provider:        cfg.BrainProvider,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		OpenAIModel:     cfg.OpenAIModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
	})
	if err != nil {
		log.Fatalf("brain adapter init failed: %v", err)
	}
	log.Printf("brain provider: %s", brainMode)

	chatProvider, chatMode, err := chat.NewProvider(chat.Config{
		Mode:        cfg.ChatProviderMode,
		RelayURL:    cfg.ChatProviderURL,
		TokenSecret: cfg.ChatTokenSecret,
	})
	if err != nil {
		log.Fatalf("chat provider init failed: %v", err)
	}
	log.Printf("chat provider: %s", chatMode)

	detector := loopdetect.New(cfg.LoopMarkerPhrases,
		loopdetect.WithWindow(cfg.LoopWindow),
		loopdetect.WithMinTurns(cfg.LoopMinTurns),
		loopdetect.WithThreshold(cfg.LoopThreshold),
	)
	assembler := prompt.NewAssembler(cfg.SystemPrompt, cfg.ContextWindow)

	orchestrator := coach.NewOrchestrator(
		store,
		detector,
		assembler,
		adapter,
		metrics,
		coach.GenParams{
			MaxTokens:   cfg.BrainMaxTokens,
			Temperature: cfg.BrainTemperature,
			TopP:        cfg.BrainTopP,
			Timeout:     cfg.BrainTimeout,
		},
		cfg.HistoryLimit,
	)

	api := httpapi.New(cfg, store, orchestrator, chatProvider, metrics, storeMode, brainMode)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
