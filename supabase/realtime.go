package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Realtime handles row-change subscriptions over the backend's websocket
// interface (Phoenix protocol).
type Realtime struct {
	mu   sync.Mutex
	url  string
	conn *websocket.Conn
	subs map[string]*Subscription
	done chan struct{}
	ref  int
}

// InsertHandler receives the inserted row as raw JSON. Handlers for one
// subscription run one at a time, in server-assigned order.
type InsertHandler func(record json.RawMessage)

// phoenixMessage is the wire frame for the realtime protocol.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref"`
	JoinRef string          `json:"join_ref,omitempty"`
}

// NewRealtime creates a realtime client for the given project.
func NewRealtime(projectURL, anonKey string) *Realtime {
	wsURL := projectURL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[len("https"):]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/realtime/v1/websocket?apikey=" + anonKey + "&vsn=1.0.0"

	return &Realtime{
		url:  wsURL,
		subs: make(map[string]*Subscription),
	}
}

// Connect establishes the websocket connection. Calling Connect on a
// connected client is a no-op.
func (r *Realtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop(conn)
	go r.heartbeat()

	return nil
}

// Close tears down the connection and releases every remaining
// subscription, waiting for their dispatchers to finish. Must not be
// called from inside a handler.
func (r *Realtime) Close() error {
	r.mu.Lock()

	if r.conn == nil {
		r.mu.Unlock()
		return nil
	}

	close(r.done)
	_ = r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := r.conn.Close()
	r.conn = nil

	remaining := make([]*Subscription, 0, len(r.subs))
	for topic, sub := range r.subs {
		remaining = append(remaining, sub)
		delete(r.subs, topic)
	}
	r.mu.Unlock()

	for _, sub := range remaining {
		sub.release(false)
	}
	return err
}

// Subscription is a live channel scoped to insert events on one table
// topic. Events are dispatched by a single goroutine, so the handler never
// runs concurrently with itself.
type Subscription struct {
	rt       *Realtime
	topic    string
	joinRef  string
	fn       InsertHandler
	events   chan json.RawMessage
	quit     chan struct{}
	finished chan struct{}
	once     sync.Once
}

// SubscribeInserts opens a subscription to insert events on table, narrowed
// by an optional column filter such as "job_id=eq.123". The handler is
// invoked once per new row, in arrival order, until Unsubscribe.
func (r *Realtime) SubscribeInserts(ctx context.Context, table, filter string, fn InsertHandler) (*Subscription, error) {
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}

	topic := "realtime:public:" + table
	if filter != "" {
		topic += ":" + filter
	}

	r.mu.Lock()
	if _, exists := r.subs[topic]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}

	r.ref++
	ref := fmt.Sprintf("%d", r.ref)

	sub := &Subscription{
		rt:       r,
		topic:    topic,
		joinRef:  ref,
		fn:       fn,
		events:   make(chan json.RawMessage, 64),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	r.subs[topic] = sub

	join := phoenixMessage{
		Topic:   topic,
		Event:   "phx_join",
		Payload: postgresChangesPayload("INSERT", table, filter),
		Ref:     ref,
		JoinRef: ref,
	}
	err := r.conn.WriteJSON(join)
	if err != nil {
		delete(r.subs, topic)
		r.mu.Unlock()
		return nil, fmt.Errorf("send join: %w", err)
	}
	r.mu.Unlock()

	go sub.run()
	return sub, nil
}

func postgresChangesPayload(event, table, filter string) json.RawMessage {
	change := map[string]string{
		"event":  event,
		"schema": "public",
		"table":  table,
	}
	if filter != "" {
		change["filter"] = filter
	}
	payload, _ := json.Marshal(map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{change},
		},
	})
	return payload
}

// Unsubscribe releases the channel. When it returns, no further handler
// invocation happens. Must not be called from inside the handler.
func (s *Subscription) Unsubscribe() error {
	return s.release(true)
}

// release stops the dispatcher and waits for it to exit. With leave set it
// also detaches from the connection; Close skips that, having already torn
// the connection down.
func (s *Subscription) release(leave bool) error {
	var err error
	s.once.Do(func() {
		if leave {
			err = s.rt.leave(s)
		}
		close(s.quit)
		<-s.finished
	})
	return err
}

func (r *Realtime) leave(s *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, s.topic)

	if r.conn == nil {
		return nil
	}

	r.ref++
	msg := phoenixMessage{
		Topic:   s.topic,
		Event:   "phx_leave",
		Payload: json.RawMessage("{}"),
		Ref:     fmt.Sprintf("%d", r.ref),
		JoinRef: s.joinRef,
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

// run dispatches events one at a time until the subscription is released.
func (s *Subscription) run() {
	defer close(s.finished)
	for {
		select {
		case <-s.quit:
			return
		case record := <-s.events:
			s.fn(record)
		}
	}
}

func (r *Realtime) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg phoenixMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		record, ok := insertRecord(&msg)
		if !ok {
			continue
		}

		r.mu.Lock()
		sub := r.subs[msg.Topic]
		r.mu.Unlock()
		if sub == nil {
			continue
		}

		select {
		case sub.events <- record:
		case <-sub.quit:
		}
	}
}

// insertRecord extracts the inserted row from a realtime frame. Both the
// classic per-event frames and the consolidated postgres_changes frames
// carry the row under a "record" key.
func insertRecord(msg *phoenixMessage) (json.RawMessage, bool) {
	switch msg.Event {
	case "INSERT":
		var payload struct {
			Record json.RawMessage `json:"record"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Record == nil {
			return nil, false
		}
		return payload.Record, true
	case "postgres_changes":
		var payload struct {
			Data struct {
				Type   string          `json:"type"`
				Record json.RawMessage `json:"record"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, false
		}
		if payload.Data.Type != "INSERT" || payload.Data.Record == nil {
			return nil, false
		}
		return payload.Data.Record, true
	default:
		return nil, false
	}
}

func (r *Realtime) heartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				r.ref++
				msg := phoenixMessage{
					Topic:   "phoenix",
					Event:   "heartbeat",
					Payload: json.RawMessage("{}"),
					Ref:     fmt.Sprintf("%d", r.ref),
				}
				_ = r.conn.WriteJSON(msg)
			}
			r.mu.Unlock()
		}
	}
}
