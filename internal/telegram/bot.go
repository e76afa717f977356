package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/telegig/marketplace/pkg/errs"
	"github.com/telegig/marketplace/pkg/logger"
)

const defaultAPIBase = "https://api.telegram.org"

// sendLimit is the platform's global outbound message ceiling.
const sendLimit = 30 // messages per second

// Bot is an explicit Bot API client instance holding its credential.
// A Bot without a token is a functional stub: every network method returns
// a ConfigurationError, construction never fails.
type Bot struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithBaseURL points the bot at a different API host. Used by tests.
func WithBaseURL(u string) BotOption {
	return func(b *Bot) { b.baseURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) BotOption {
	return func(b *Bot) { b.httpClient = c }
}

// NewBot creates a bot client. An empty token is allowed and produces a
// degraded instance; a malformed token is logged but kept, since the
// platform is the authority on validity.
func NewBot(token string, log *logger.Logger, opts ...BotOption) *Bot {
	if log == nil {
		log = logger.NewDefault("telegram")
	}

	b := &Bot{
		token:      token,
		baseURL:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(sendLimit), sendLimit),
		log:        log,
	}
	for _, opt := range opts {
		opt(b)
	}

	if token == "" {
		log.Warn("bot token not configured, telegram bridge is disabled")
	} else if !ValidateToken(token) {
		log.Warn("bot token has unexpected format")
	}
	return b
}

// Token returns the configured credential. Empty for a stub instance.
func (b *Bot) Token() string { return b.token }

// Configured reports whether the bot can reach the platform.
func (b *Bot) Configured() bool { return b.token != "" }

// apiResponse is the platform's uniform response envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// call POSTs a Bot API method and decodes the result into out when non-nil.
func (b *Bot) call(ctx context.Context, method string, payload, out any) error {
	if b.token == "" {
		return errs.NewConfigurationError("TELEGRAM_BOT_TOKEN", "")
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	reqURL := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !envelope.OK {
		return errs.NewRemoteError(envelope.ErrorCode, "", envelope.Description)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode telegram result: %w", err)
		}
	}
	return nil
}

// BotUser is the bot's own identity as reported by the platform.
type BotUser struct {
	ID                      int64  `json:"id"`
	IsBot                   bool   `json:"is_bot"`
	FirstName               string `json:"first_name"`
	Username                string `json:"username"`
	CanJoinGroups           bool   `json:"can_join_groups"`
	CanReadAllGroupMessages bool   `json:"can_read_all_group_messages"`
	SupportsInlineQueries   bool   `json:"supports_inline_queries"`
}

// GetMe fetches the bot's identity.
func (b *Bot) GetMe(ctx context.Context) (*BotUser, error) {
	var user BotUser
	if err := b.call(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendOptions carries the optional sendMessage parameters this layer uses.
type SendOptions struct {
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

// SentMessage is the subset of the platform's message object callers need.
type SentMessage struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// SendMessage sends an outbound text message, honoring the platform's send
// rate limit.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (*SentMessage, error) {
	if !b.Configured() {
		return nil, errs.NewConfigurationError("TELEGRAM_BOT_TOKEN", "")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if opts != nil {
		if opts.ParseMode != "" {
			payload["parse_mode"] = opts.ParseMode
		}
		if opts.DisableNotification {
			payload["disable_notification"] = true
		}
	}

	var msg SentMessage
	if err := b.call(ctx, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetWebhook registers the webhook URL, scoped to the update kinds this
// layer consumes.
func (b *Bot) SetWebhook(ctx context.Context, webhookURL string) error {
	payload := map[string]any{
		"url":             webhookURL,
		"allowed_updates": []string{"message", "callback_query", "web_app_data"},
	}
	return b.call(ctx, "setWebhook", payload, nil)
}

// Update is an inbound bot update. Only the fields the webhook handler
// reads are mapped.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      *struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// GetUpdates long-polls for updates starting at offset.
func (b *Bot) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}
	var updates []Update
	if err := b.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
