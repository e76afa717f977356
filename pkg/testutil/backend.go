// Package testutil provides fake remote endpoints for testing the
// data-access layer: a recording Supabase REST/storage server and helpers
// for stubbing its responses.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordedRequest is one request the fake backend received.
type RecordedRequest struct {
	Method string
	Table  string // table name for REST calls, object path for storage
	Query  url.Values
	Header http.Header
	Body   []byte
}

// JSONBody decodes the recorded request body into a generic map.
func (r RecordedRequest) JSONBody() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(r.Body, &out)
	return out
}

// stub is one queued response.
type stub struct {
	status  int
	body    string
	headers map[string]string
}

// Backend is a fake Supabase project serving REST table calls and storage
// uploads. Responses are queued per method+table; unstubbed inserts echo
// the posted row back with a server-assigned id and timestamps.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	stubs    map[string][]stub
	objects  map[string][]byte
}

// NewBackend starts a fake backend. Callers own the returned server's
// lifetime; Close releases it.
func NewBackend() *Backend {
	b := &Backend{
		stubs:   make(map[string][]stub),
		objects: make(map[string][]byte),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// Close shuts the fake backend down.
func (b *Backend) Close() { b.Server.Close() }

// URL returns the fake project URL.
func (b *Backend) URL() string { return b.Server.URL }

func stubKey(method, table string) string { return method + " " + table }

// Stub queues a response for the next call of method against table.
func (b *Backend) Stub(method, table string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := stubKey(method, table)
	b.stubs[key] = append(b.stubs[key], stub{status: status, body: body})
}

// StubCount queues an exact-count response for HEAD calls against table.
func (b *Backend) StubCount(table string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := stubKey(http.MethodHead, table)
	b.stubs[key] = append(b.stubs[key], stub{
		status:  http.StatusOK,
		headers: map[string]string{"Content-Range": fmt.Sprintf("0-0/%d", n)},
	})
}

// StubStorageError makes the next storage upload fail with the status.
func (b *Backend) StubStorageError(status int, message string) {
	b.Stub(http.MethodPost, "storage", status, fmt.Sprintf(`{"message":%q}`, message))
}

// Requests returns every recorded request in arrival order.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// RequestsFor returns the recorded requests for one method+table pair.
func (b *Backend) RequestsFor(method, table string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range b.Requests() {
		if r.Method == method && r.Table == table {
			out = append(out, r)
		}
	}
	return out
}

// Object returns the stored bytes for a storage path, and whether the
// object exists.
func (b *Backend) Object(bucket, path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+path]
	return data, ok
}

func (b *Backend) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	switch {
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
		b.record(r, table, body)
		b.respond(w, r, table, body)
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/"):
		objectPath := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")
		b.record(r, objectPath, body)
		b.respondStorage(w, r, objectPath, body)
	default:
		http.NotFound(w, r)
	}
}

func (b *Backend) record(r *http.Request, table string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, RecordedRequest{
		Method: r.Method,
		Table:  table,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
}

func (b *Backend) takeStub(method, table string) (stub, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := stubKey(method, table)
	queue := b.stubs[key]
	if len(queue) == 0 {
		return stub{}, false
	}
	b.stubs[key] = queue[1:]
	return queue[0], true
}

func (b *Backend) respond(w http.ResponseWriter, r *http.Request, table string, body []byte) {
	if s, ok := b.takeStub(r.Method, table); ok {
		for k, v := range s.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(s.status)
		io.WriteString(w, s.body)
		return
	}

	switch r.Method {
	case http.MethodPost:
		// Echo the inserted row with server-assigned fields.
		io.WriteString(w, EchoRow(body))
	case http.MethodHead:
		w.Header().Set("Content-Range", "*/0")
	case http.MethodPatch:
		w.WriteHeader(http.StatusNoContent)
	default:
		io.WriteString(w, "[]")
	}
}

func (b *Backend) respondStorage(w http.ResponseWriter, r *http.Request, objectPath string, body []byte) {
	if s, ok := b.takeStub(r.Method, "storage"); ok {
		for k, v := range s.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(s.status)
		io.WriteString(w, s.body)
		return
	}

	b.mu.Lock()
	b.objects[objectPath] = body
	b.mu.Unlock()
	fmt.Fprintf(w, `{"Key":%q}`, objectPath)
}

// EchoRow returns the posted JSON object extended with a server-assigned
// id and creation timestamps, the way the backend answers an insert with
// return=representation.
func EchoRow(posted []byte) string {
	row := map[string]any{}
	_ = json.Unmarshal(posted, &row)
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}
	out, _ := json.Marshal(row)
	return string(out)
}

// Rows marshals values into a JSON array body for stubbing list responses.
func Rows(values ...any) string {
	out, _ := json.Marshal(values)
	return string(out)
}

// Row marshals one value into a JSON object body for stubbing single
// responses.
func Row(value any) string {
	out, _ := json.Marshal(value)
	return string(out)
}
