package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Errors returned by VerifyInitData.
var (
	ErrNoHash      = errors.New("init data carries no hash")
	ErrHashInvalid = errors.New("init data hash mismatch")
)

// WebAppUser is the platform identity embedded in the launch payload.
type WebAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// InitData is the parsed, verified launch payload.
type InitData struct {
	QueryID  string
	User     *WebAppUser
	AuthDate time.Time
	Raw      url.Values
}

// PlaceholderUser is the fixed identity substituted when the app runs
// outside the platform host.
func PlaceholderUser() *WebAppUser {
	return &WebAppUser{ID: 123456789, FirstName: "Test User", Username: "testuser"}
}

// secretKey derives the verification key from the bot credential:
// HMAC-SHA256 keyed with the literal "WebAppData" over the token.
func secretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// dataCheckString re-serializes every field except the hash, sorted by key,
// as key=value lines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}
	return strings.Join(lines, "\n")
}

// VerifyInitData authenticates a Mini App launch payload against the bot
// credential and returns its parsed content. The check is the platform's
// documented construction: HMAC-SHA256 of the sorted key=value data string,
// keyed by a derivative of the bot token.
func VerifyInitData(initData, botToken string) (*InitData, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrNoHash
	}

	mac := hmac.New(sha256.New, secretKey(botToken))
	mac.Write([]byte(dataCheckString(values)))
	wantHash := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(wantHash), []byte(gotHash)) {
		return nil, ErrHashInvalid
	}

	return parseInitData(values)
}

func parseInitData(values url.Values) (*InitData, error) {
	data := &InitData{
		QueryID: values.Get("query_id"),
		Raw:     values,
	}

	if rawUser := values.Get("user"); rawUser != "" {
		var user WebAppUser
		if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
			return nil, fmt.Errorf("parse user field: %w", err)
		}
		data.User = &user
	}

	if rawDate := values.Get("auth_date"); rawDate != "" {
		unix, err := strconv.ParseInt(rawDate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse auth_date: %w", err)
		}
		data.AuthDate = time.Unix(unix, 0)
	}

	return data, nil
}

// SignInitData produces a signed launch payload for the given fields.
// Intended for tests and local tooling; the platform host is the only
// producer in production.
func SignInitData(values url.Values, botToken string) string {
	values.Del("hash")
	mac := hmac.New(sha256.New, secretKey(botToken))
	mac.Write([]byte(dataCheckString(values)))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}
