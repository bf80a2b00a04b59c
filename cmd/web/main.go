package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stylenow-studio/internal/config"
	"stylenow-studio/internal/gemini"
	"stylenow-studio/internal/httpclient"
	"stylenow-studio/internal/session"
	"stylenow-studio/internal/webapi"
	"stylenow-studio/internal/workflow"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	gem, err := gemini.New(ctx, gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: httpClient,
		ImageModel: cfg.GeminiImageModel,
		TextModel:  cfg.GeminiTextModel,
		ImageSize:  cfg.GeminiImageSize,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("gemini init failed", "err", err)
		os.Exit(1)
	}
	if !cfg.HasCredential() {
		logger.Warn("GEMINI_API_KEY is not set; renders are disabled")
	}

	sessions, err := session.NewStore(session.Options{
		TTL: cfg.SessionTTL,
		New: func(string) (*workflow.Controller, error) {
			return workflow.New(workflow.Options{
				Generator:     gem,
				Analyzer:      gem,
				Permitted:     cfg.HasCredential,
				Debounce:      cfg.AutoRenderDebounce,
				RenderTimeout: cfg.RequestTimeout,
				Logger:        logger,
			})
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("session store init failed", "err", err)
		os.Exit(1)
	}
	defer sessions.Close()

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	api, err := webapi.New(webapi.Options{
		Sessions:       sessions,
		Permitted:      cfg.HasCredential,
		RequestTimeout: cfg.RequestTimeout,
		Static:         staticSub,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("web api init failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web started", "addr", cfg.WebAddr, "generation_enabled", cfg.HasCredential())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
