package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/telegig/marketplace/internal/config"
	"github.com/telegig/marketplace/internal/telegram"
	"github.com/telegig/marketplace/pkg/logger"
	"github.com/telegig/marketplace/pkg/testutil"
	"github.com/telegig/marketplace/services/profiles"
	"github.com/telegig/marketplace/supabase"
)

const testBotToken = "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func testLogger() *logger.Logger {
	return logger.NewDefault("webhookd-test")
}

func newBotAPI(t *testing.T) (*telegram.Bot, *[]string) {
	t.Helper()
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42}}}`))
	}))
	t.Cleanup(srv.Close)
	return telegram.NewBot(testBotToken, testLogger(), telegram.WithBaseURL(srv.URL)), &bodies
}

func TestWebhookHandlerStartCommand(t *testing.T) {
	bot, bodies := newBotAPI(t)
	cfg := &config.Config{TelegramBotUsername: "gigbot", AppURL: "https://app.example.com"}

	update := `{"update_id":1,"message":{"message_id":10,"from":{"id":42,"first_name":"Ann"},"chat":{"id":42},"text":"/start"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(update))
	rr := httptest.NewRecorder()

	webhookHandler(bot, cfg, testLogger()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(*bodies) != 1 {
		t.Fatalf("outbound calls = %d, want 1", len(*bodies))
	}
	if !strings.Contains((*bodies)[0], "t.me/gigbot") {
		t.Fatalf("reply missing mini app link: %s", (*bodies)[0])
	}
}

func TestWebhookHandlerIgnoresOtherText(t *testing.T) {
	bot, bodies := newBotAPI(t)
	cfg := &config.Config{}

	update := `{"update_id":1,"message":{"message_id":10,"from":{"id":42,"first_name":"Ann"},"chat":{"id":42},"text":"hello"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(update))
	rr := httptest.NewRecorder()

	webhookHandler(bot, cfg, testLogger()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(*bodies) != 0 {
		t.Fatalf("outbound calls = %d, want 0", len(*bodies))
	}
}

func TestWebhookHandlerBadBodyStillAcks(t *testing.T) {
	bot, _ := newBotAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rr := httptest.NewRecorder()

	webhookHandler(bot, &config.Config{}, testLogger()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func newProfileService(t *testing.T) (*profiles.Service, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend()
	t.Cleanup(backend.Close)

	db, err := supabase.New(supabase.Config{URL: backend.URL(), AnonKey: "test-anon-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return profiles.New(db, testLogger()), backend
}

func signedInitData(t *testing.T) string {
	t.Helper()
	user, err := json.Marshal(map[string]any{"id": 42, "first_name": "Ann", "username": "ann"})
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	return telegram.SignInitData(url.Values{
		"user":      {string(user)},
		"auth_date": {"1756600000"},
	}, testBotToken)
}

func TestVerifyHandlerAcceptsSignedData(t *testing.T) {
	svc, backend := newProfileService(t)
	backend.Stub(http.MethodGet, "profiles", http.StatusOK,
		testutil.Row(profiles.Profile{ID: "p1", TelegramID: 42, FirstName: "Ann", Role: profiles.RoleClient}))

	body, _ := json.Marshal(map[string]string{"init_data": signedInitData(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()

	verifyHandler(testBotToken, svc, testLogger()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp struct {
		User    *telegram.WebAppUser `json:"user"`
		Profile *profiles.Profile    `json:"profile"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User == nil || resp.User.ID != 42 {
		t.Fatalf("user = %+v, want id 42", resp.User)
	}
	if resp.Profile == nil || resp.Profile.ID != "p1" {
		t.Fatalf("profile = %+v, want id p1", resp.Profile)
	}
}

func TestVerifyHandlerFirstTimeUser(t *testing.T) {
	svc, backend := newProfileService(t)
	backend.Stub(http.MethodGet, "profiles", http.StatusNotAcceptable,
		`{"code":"PGRST116","message":"no rows"}`)

	body, _ := json.Marshal(map[string]string{"init_data": signedInitData(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()

	verifyHandler(testBotToken, svc, testLogger()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if string(resp["profile"]) != "null" {
		t.Fatalf("profile = %s, want null", resp["profile"])
	}
}

func TestVerifyHandlerRejectsTamperedData(t *testing.T) {
	svc, _ := newProfileService(t)

	tampered := signedInitData(t) + "&query_id=injected"
	body, _ := json.Marshal(map[string]string{"init_data": tampered})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()

	verifyHandler(testBotToken, svc, testLogger()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestVerifyHandlerRequiresBody(t *testing.T) {
	svc, _ := newProfileService(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	verifyHandler(testBotToken, svc, testLogger()).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
