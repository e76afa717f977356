// Package config loads marketplace configuration from an optional YAML file
// and the process environment. Environment values override the file;
// a .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/telegig/marketplace/pkg/errs"
)

// Config holds all settings for the marketplace layer.
type Config struct {
	// Backend credentials. Required; absence is fatal at startup.
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`

	// Bot settings. A missing token degrades the bridge to a stub
	// instead of failing startup.
	TelegramBotToken    string `yaml:"telegram_bot_token"`
	TelegramBotUsername string `yaml:"telegram_bot_username"`
	AppURL              string `yaml:"app_url"`
	WebhookURL          string `yaml:"webhook_url"`

	// Webhook server bind address.
	ListenAddr string `yaml:"listen_addr"`

	// Storage bucket holding QR codes and payment proofs.
	PaymentsBucket string `yaml:"payments_bucket"`
}

// envOverrides maps environment variable names onto config fields.
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.SupabaseURL, "SUPABASE_URL")
	set(&c.SupabaseAnonKey, "SUPABASE_ANON_KEY")
	set(&c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.TelegramBotUsername, "TELEGRAM_BOT_USERNAME")
	set(&c.AppURL, "APP_URL")
	set(&c.WebhookURL, "WEBHOOK_URL")
	set(&c.ListenAddr, "LISTEN_ADDR")
	set(&c.PaymentsBucket, "PAYMENTS_BUCKET")
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.PaymentsBucket == "" {
		c.PaymentsBucket = "payments"
	}
}

// Load reads configuration. path names an optional YAML file; an empty path
// skips the file entirely. A .env file in the working directory is loaded
// first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required backend credentials. Bot settings are not
// required here.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return errs.NewConfigurationError("SUPABASE_URL", "")
	}
	if c.SupabaseAnonKey == "" {
		return errs.NewConfigurationError("SUPABASE_ANON_KEY", "")
	}
	return nil
}

// BotConfigured reports whether the bridge has a token to work with.
func (c *Config) BotConfigured() bool { return c.TelegramBotToken != "" }

// AnonKeyInfo is what an anon key reveals about itself. Supabase anon keys
// are JWTs carrying the project ref and an expiry.
type AnonKeyInfo struct {
	ProjectRef string
	Role       string
	ExpiresAt  time.Time
}

// InspectAnonKey parses the anon key without verifying its signature and
// returns the embedded project metadata. Useful for startup diagnostics:
// a key expiring in the past means a stale credential.
func (c *Config) InspectAnonKey() (*AnonKeyInfo, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(c.SupabaseAnonKey, claims); err != nil {
		return nil, fmt.Errorf("anon key is not a JWT: %w", err)
	}

	info := &AnonKeyInfo{}
	if ref, ok := claims["ref"].(string); ok {
		info.ProjectRef = ref
	}
	if role, ok := claims["role"].(string); ok {
		info.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Expired reports whether the key's expiry lies in the past.
func (i *AnonKeyInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && i.ExpiresAt.Before(now)
}
