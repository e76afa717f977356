package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/websocket"
)

// frame is the Phoenix wire envelope.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// RealtimeServer speaks just enough of the Phoenix protocol for the
// realtime client: it acks joins and leaves and lets tests push insert
// events onto a topic.
type RealtimeServer struct {
	Server *httptest.Server

	mu     sync.Mutex
	conn   *websocket.Conn
	joins  []string
	leaves []string
	ready  chan struct{}
}

// NewRealtimeServer starts a fake realtime endpoint. WaitReady blocks
// until a client has connected; Close releases the server.
func NewRealtimeServer() *RealtimeServer {
	f := &RealtimeServer{ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		close(f.ready)

		for {
			var msg frame
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Event {
			case "phx_join":
				f.mu.Lock()
				f.joins = append(f.joins, msg.Topic)
				f.mu.Unlock()
				f.write(frame{
					Topic:   msg.Topic,
					Event:   "phx_reply",
					Payload: json.RawMessage(`{"status":"ok","response":{}}`),
					Ref:     msg.Ref,
				})
			case "phx_leave":
				f.mu.Lock()
				f.leaves = append(f.leaves, msg.Topic)
				f.mu.Unlock()
			}
		}
	}))
	return f
}

// Close shuts the fake endpoint down.
func (f *RealtimeServer) Close() { f.Server.Close() }

// URL returns the fake endpoint URL (http scheme; the client rewrites it).
func (f *RealtimeServer) URL() string { return f.Server.URL }

// WaitReady blocks until a client websocket is connected.
func (f *RealtimeServer) WaitReady() { <-f.ready }

func (f *RealtimeServer) write(msg frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return
	}
	_ = f.conn.WriteJSON(msg)
}

// PushInsert sends an INSERT frame carrying record on the given topic.
func (f *RealtimeServer) PushInsert(topic string, record any) error {
	data, err := json.Marshal(map[string]any{"record": record, "type": "INSERT"})
	if err != nil {
		return err
	}
	f.write(frame{Topic: topic, Event: "INSERT", Payload: data})
	return nil
}

// Joins returns the topics joined so far.
func (f *RealtimeServer) Joins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.joins))
	copy(out, f.joins)
	return out
}

// Leaves returns the topics left so far.
func (f *RealtimeServer) Leaves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.leaves))
	copy(out, f.leaves)
	return out
}
