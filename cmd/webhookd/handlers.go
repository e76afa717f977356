package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/telegig/marketplace/internal/config"
	"github.com/telegig/marketplace/internal/telegram"
	"github.com/telegig/marketplace/pkg/logger"
	"github.com/telegig/marketplace/services/profiles"
)

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"service":   "webhookd",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// webhookHandler answers inbound bot updates. It always returns 200: the
// platform retries non-2xx deliveries, and a failed outbound reply is not
// worth a redelivery of the same update.
func webhookHandler(bot *telegram.Bot, cfg *config.Config, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update telegram.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			log.Warn("undecodable update", "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		if update.Message == nil || update.Message.From == nil {
			w.WriteHeader(http.StatusOK)
			return
		}

		if strings.HasPrefix(update.Message.Text, "/start") {
			text := startReply(cfg)
			_, err := bot.SendMessage(r.Context(), update.Message.Chat.ID, text, &telegram.SendOptions{
				ParseMode: "HTML",
			})
			if err != nil {
				log.Warn("start reply failed", "chat_id", update.Message.Chat.ID, "error", err)
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}

func startReply(cfg *config.Config) string {
	if cfg.TelegramBotUsername == "" || cfg.AppURL == "" {
		return "Welcome to the marketplace. Open the mini app from the bot menu to get started."
	}
	return fmt.Sprintf(
		"Welcome to the marketplace!\n\nOpen the app to browse jobs and freelancers:\n%s",
		telegram.MiniAppURL(cfg.TelegramBotUsername, cfg.AppURL),
	)
}

// verifyHandler authenticates a mini-app session: it checks the signed
// init data against the bot token and returns the platform user plus the
// stored profile, which is null for first-time users.
func verifyHandler(botToken string, svc *profiles.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			InitData string `json:"init_data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InitData == "" {
			http.Error(w, "init_data required", http.StatusBadRequest)
			return
		}

		data, err := telegram.VerifyInitData(req.InitData, botToken)
		if err != nil {
			log.Warn("init data rejected", "error", err)
			http.Error(w, "invalid init data", http.StatusUnauthorized)
			return
		}
		if data.User == nil {
			http.Error(w, "no user in init data", http.StatusUnauthorized)
			return
		}

		profile, err := svc.GetByTelegramID(r.Context(), data.User.ID)
		if err != nil {
			log.Error("profile lookup failed", "telegram_id", data.User.ID, "error", err)
			http.Error(w, "profile lookup failed", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"user":    data.User,
			"profile": profile,
		})
	}
}
