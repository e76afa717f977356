// Command botctl is the operator CLI for the marketplace bot: credential
// checks, webhook management, and manual message sends.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/telegig/marketplace/internal/config"
	"github.com/telegig/marketplace/internal/telegram"
	"github.com/telegig/marketplace/pkg/logger"
)

var (
	configFile string

	cfg *config.Config
	log *logger.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "botctl",
		Short:         "Operate the marketplace Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log = logger.NewDefault("botctl")
			var err error
			cfg, err = config.Load(configFile)
			return err
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "config file path")

	root.AddCommand(infoCmd(), sendCmd(), webhookCmd(), verifyCmd(), miniAppURLCmd(), updatesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func bot() *telegram.Bot {
	return telegram.NewBot(cfg.TelegramBotToken, log)
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show bot identity and backend credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cfg.InspectAnonKey()
			if err != nil {
				fmt.Printf("Backend key: unreadable (%v)\n", err)
			} else {
				status := "valid"
				if key.Expired(time.Now()) {
					status = "EXPIRED"
				}
				fmt.Printf("Backend project: %s (role %s, key %s)\n", key.ProjectRef, key.Role, status)
			}

			if !cfg.BotConfigured() {
				fmt.Println("Bot: not configured (TELEGRAM_BOT_TOKEN unset)")
				return nil
			}

			user, err := bot().GetMe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Bot: @%s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	var chatID int64
	var text string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a text message to a chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := bot().SendMessage(cmd.Context(), chatID, text, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Sent message %d to chat %d\n", msg.MessageID, msg.Chat.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "target chat id")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.MarkFlagRequired("chat")
	cmd.MarkFlagRequired("text")
	return cmd
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the bot webhook",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set [url]",
		Short: "Register the webhook URL (defaults to the configured one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := cfg.WebhookURL
			if len(args) == 1 {
				url = args[0]
			}
			if url == "" {
				return fmt.Errorf("no webhook URL given and none configured")
			}
			if err := bot().SetWebhook(cmd.Context(), url); err != nil {
				return err
			}
			fmt.Println("Webhook set to", url)
			return nil
		},
	})
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <init-data>",
		Short: "Check a mini-app launch payload against the bot token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := telegram.VerifyInitData(args[0], cfg.TelegramBotToken)
			if err != nil {
				return err
			}
			if data.User != nil {
				fmt.Printf("Valid. User %d (%s), auth date %s\n",
					data.User.ID, data.User.FirstName, data.AuthDate.Format(time.RFC3339))
			} else {
				fmt.Println("Valid, no user field.")
			}
			return nil
		},
	}
}

func miniAppURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "miniapp-url",
		Short: "Print the mini-app launch URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.TelegramBotUsername == "" || cfg.AppURL == "" {
				return fmt.Errorf("TELEGRAM_BOT_USERNAME and APP_URL must be configured")
			}
			fmt.Println(telegram.MiniAppURL(cfg.TelegramBotUsername, cfg.AppURL))
			return nil
		},
	}
}

func updatesCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "updates",
		Short: "Long-poll pending updates and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := bot().GetUpdates(cmd.Context(), 0, timeout)
			if err != nil {
				return err
			}
			if len(updates) == 0 {
				fmt.Println("No pending updates.")
				return nil
			}
			for _, u := range updates {
				if u.Message != nil {
					fmt.Printf("%d: chat %d: %q\n", u.UpdateID, u.Message.Chat.ID, u.Message.Text)
					continue
				}
				fmt.Printf("%d: (no message)\n", u.UpdateID)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "long-poll timeout")
	return cmd
}
