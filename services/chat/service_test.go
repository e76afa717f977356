package chat

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegig/marketplace/pkg/errs"
	"github.com/telegig/marketplace/pkg/testutil"
	"github.com/telegig/marketplace/supabase"
)

func newTestService(t *testing.T) (*Service, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend()
	t.Cleanup(backend.Close)

	db, err := supabase.New(supabase.Config{URL: backend.URL(), AnonKey: "test-anon-key"})
	require.NoError(t, err)
	return New(db, nil, nil), backend
}

func TestListForJob(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodGet, "messages", http.StatusOK, `[
		{"id":"m1","job_id":"j1","sender_id":"c1","receiver_id":"f1",
		 "content":"hello","message_type":"text",
		 "sender":{"id":"c1","first_name":"Ann","role":"client"},
		 "receiver":{"id":"f1","first_name":"Bea","role":"freelancer"}},
		{"id":"m2","job_id":"j1","sender_id":"f1","receiver_id":"c1",
		 "content":"hi","message_type":"text"}
	]`)

	out, err := svc.ListForJob(context.Background(), "j1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Sender)
	assert.Equal(t, "Ann", out[0].Sender.FirstName)

	reqs := backend.RequestsFor(http.MethodGet, "messages")
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	assert.Equal(t, "eq.j1", q.Get("job_id"))
	assert.Equal(t, "created_at.asc", q.Get("order"))
	assert.Equal(t, profileExpansion, q.Get("select"))
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params SendParams
	}{
		{"job_id", SendParams{SenderID: "c1", ReceiverID: "f1", Content: "hi"}},
		{"sender_id", SendParams{JobID: "j1", ReceiverID: "f1", Content: "hi"}},
		{"receiver_id", SendParams{JobID: "j1", SenderID: "c1", Content: "hi"}},
		{"content", SendParams{JobID: "j1", SenderID: "c1", ReceiverID: "f1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tc.params)
			assert.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestSendDefaultsToText(t *testing.T) {
	svc, backend := newTestService(t)

	msg, err := svc.Send(context.Background(), SendParams{
		JobID:      "j1",
		SenderID:   "c1",
		ReceiverID: "f1",
		Content:    "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, TypeText, msg.MessageType)

	reqs := backend.RequestsFor(http.MethodPost, "messages")
	require.Len(t, reqs, 1)
	body := reqs[0].JSONBody()
	assert.Equal(t, "text", body["message_type"])
}

func TestSendKeepsExplicitType(t *testing.T) {
	svc, backend := newTestService(t)

	_, err := svc.Send(context.Background(), SendParams{
		JobID:       "j1",
		SenderID:    "c1",
		ReceiverID:  "f1",
		Content:     "see attachment",
		MessageType: TypeFile,
		FileURL:     "https://example.com/spec.pdf",
	})
	require.NoError(t, err)

	body := backend.RequestsFor(http.MethodPost, "messages")[0].JSONBody()
	assert.Equal(t, "file", body["message_type"])
	assert.Equal(t, "https://example.com/spec.pdf", body["file_url"])
}

func TestMarkRead(t *testing.T) {
	svc, backend := newTestService(t)

	err := svc.MarkRead(context.Background(), "j1", "f1")
	require.NoError(t, err)

	reqs := backend.RequestsFor(http.MethodPatch, "messages")
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	assert.Equal(t, "eq.j1", q.Get("job_id"))
	assert.Equal(t, "eq.f1", q.Get("receiver_id"))
	assert.Equal(t, map[string]any{"is_read": true}, reqs[0].JSONBody())
	assert.Equal(t, "return=minimal", reqs[0].Header.Get("Prefer"))
}

func TestUnreadCount(t *testing.T) {
	svc, backend := newTestService(t)
	backend.StubCount("messages", 7)

	n, err := svc.UnreadCount(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	reqs := backend.RequestsFor(http.MethodHead, "messages")
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	assert.Equal(t, "eq.f1", q.Get("receiver_id"))
	assert.Equal(t, "eq.false", q.Get("is_read"))
}

func TestSubscribeWithoutRealtime(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Subscribe(context.Background(), "j1", func(Message) {})
	assert.True(t, errs.IsConfiguration(err))
}

func TestSubscribeDeliversMessages(t *testing.T) {
	backend := testutil.NewBackend()
	t.Cleanup(backend.Close)
	ws := testutil.NewRealtimeServer()
	t.Cleanup(ws.Close)

	db, err := supabase.New(supabase.Config{URL: backend.URL(), AnonKey: "test-anon-key"})
	require.NoError(t, err)

	rt := supabase.NewRealtime(ws.URL(), "test-anon-key")
	require.NoError(t, rt.Connect(context.Background()))
	t.Cleanup(func() { rt.Close() })
	ws.WaitReady()

	svc := New(db, rt, nil)

	var mu sync.Mutex
	var got []Message
	sub, err := svc.Subscribe(context.Background(), "j1", func(m Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	waitFor(t, 2*time.Second, func() bool { return len(ws.Joins()) == 1 })
	joins := ws.Joins()
	assert.Equal(t, "realtime:public:messages:job_id=eq.j1", joins[0])

	require.NoError(t, ws.PushInsert(joins[0], map[string]any{
		"id": "m1", "job_id": "j1", "sender_id": "c1",
		"receiver_id": "f1", "content": "hello",
	}))
	require.NoError(t, ws.PushInsert(joins[0], map[string]any{
		"id": "m2", "job_id": "j1", "sender_id": "f1",
		"receiver_id": "c1", "content": "hi",
	}))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "m2", got[1].ID)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
