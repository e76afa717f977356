// Command webhookd receives Telegram webhook updates for the marketplace
// bot and serves the mini-app auth endpoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/telegig/marketplace/internal/config"
	"github.com/telegig/marketplace/internal/telegram"
	"github.com/telegig/marketplace/pkg/logger"
	"github.com/telegig/marketplace/services/profiles"
	"github.com/telegig/marketplace/supabase"
)

func main() {
	log := logger.NewDefault("webhookd")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := supabase.New(supabase.Config{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
	})
	if err != nil {
		log.Error("create backend client", "error", err)
		os.Exit(1)
	}

	bot := telegram.NewBot(cfg.TelegramBotToken, log)
	profileSvc := profiles.New(db, log)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/webhook", webhookHandler(bot, cfg, log)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/auth/verify", verifyHandler(cfg.TelegramBotToken, profileSvc, log)).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", "error", err)
		}
	}()

	if cfg.BotConfigured() && cfg.WebhookURL != "" {
		if err := bot.SetWebhook(ctx, cfg.WebhookURL); err != nil {
			log.Warn("register webhook", "url", cfg.WebhookURL, "error", err)
		} else {
			log.Info("webhook registered", "url", cfg.WebhookURL)
		}
	}

	log.Info("listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
}
