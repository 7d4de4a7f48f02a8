package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Strikezor/SDMaker/internal/api"
	"github.com/Strikezor/SDMaker/internal/config"
	"github.com/Strikezor/SDMaker/internal/kb"
	"github.com/Strikezor/SDMaker/internal/llm"
	"github.com/Strikezor/SDMaker/internal/schema"
	"github.com/Strikezor/SDMaker/internal/synth"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// The template is loaded once per session and cached.
	tpl, err := schema.Load(cfg.TemplatePath)
	if err != nil {
		log.Error("cannot load template", "path", cfg.TemplatePath, "error", err)
		os.Exit(1)
	}
	log.Info("template loaded", "path", cfg.TemplatePath, "sections", len(tpl.Sections), "version", tpl.Version)

	store, err := kb.Open(cfg.KnowledgeBasePath)
	if err != nil {
		log.Error("cannot open knowledge base", "path", cfg.KnowledgeBasePath, "error", err)
		os.Exit(1)
	}
	log.Info("knowledge base loaded", "path", cfg.KnowledgeBasePath, "entries", store.Len())

	groq := llm.NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.FastModel, cfg.HeavyModel)

	pipeline := synth.NewPipeline(tpl, store, groq, synth.PipelineConfig{
		ValidationSnippet: cfg.ValidationSnippet,
		GapSnippet:        cfg.GapSnippet,
	}, log)
	runs := synth.NewRegistry(cfg.RunTTL)

	srv := api.NewServer(pipeline, runs, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Evict abandoned runs.
	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stopCleanup:
				return
			case <-ticker.C:
				runs.Cleanup()
			}
		}
	}()

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		close(stopCleanup)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		groq.Close()
		store.Close()
	}()

	log.Info("starting sdmaker", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
