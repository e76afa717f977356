// Package telegram wraps the Telegram Bot API and the Mini App launch
// payload checks used by the marketplace.
package telegram

import (
	"fmt"
	"net/url"
	"regexp"
)

// tokenPattern is the structural shape of a bot token: numeric bot id,
// a colon, then a 35-character secret.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35}$`)

// ValidateToken reports whether token has the structural bot-token format.
// It never contacts the network.
func ValidateToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// MiniAppURL builds the t.me deep link that opens the Mini App.
func MiniAppURL(botUsername, appURL string) string {
	return fmt.Sprintf("https://t.me/%s?start=webapp&web_app=%s", botUsername, url.QueryEscape(appURL))
}
