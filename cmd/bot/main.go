package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stylenow-studio/internal/config"
	"stylenow-studio/internal/gemini"
	"stylenow-studio/internal/handlers"
	"stylenow-studio/internal/httpclient"
	"stylenow-studio/internal/mediagroup"
	"stylenow-studio/internal/telegram"
	"stylenow-studio/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
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

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

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

	handler, err := handlers.New(handlers.Options{
		Messenger: tg,
		NewController: func(listener func(workflow.Snapshot)) (*workflow.Controller, error) {
			return workflow.New(workflow.Options{
				Generator:     gem,
				Analyzer:      gem,
				Permitted:     cfg.HasCredential,
				Debounce:      cfg.AutoRenderDebounce,
				RenderTimeout: cfg.RequestTimeout,
				Listener:      listener,
				Logger:        logger,
			})
		},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("handler init failed", "err", err)
		os.Exit(1)
	}
	defer handler.Close()

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onAlbum := func(album mediagroup.Album) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleAlbum(reqCtx, album)
		}()
	}

	albums := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onAlbum,
	})
	defer albums.Stop()
	handler.SetAlbumAggregator(albums)

	logger.Info("bot started", "username", tg.Username(), "generation_enabled", cfg.HasCredential())

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}
