package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"snaptide/internal/db"
	"snaptide/internal/events"
	"snaptide/internal/handlers"
	"snaptide/internal/metrics"
	"snaptide/internal/models"
	"snaptide/internal/store"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitDatabase(conn))
	t.Cleanup(func() { conn.Close() })
	return conn
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PostCreated
	err    error
}

func (p *recordingPublisher) PublishPostCreated(_ context.Context, ev events.PostCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var errDisk = errors.New("disk I/O error")

// failingStore fails every operation the way a broken database would.
type failingStore struct{}

func (failingStore) List(context.Context, store.Limit) ([]models.Post, error) {
	return nil, &store.StorageError{Op: "list", Err: errDisk}
}

func (failingStore) Get(context.Context, int64) (models.Post, error) {
	return models.Post{}, &store.StorageError{Op: "get", Err: errDisk}
}

func (failingStore) Create(context.Context, models.NewPost) (models.Post, error) {
	return models.Post{}, &store.StorageError{Op: "create", Err: errDisk}
}

func (failingStore) Count(context.Context) (int, error) { return 0, errDisk }

type panickingStore struct{ store.PostStore }

func (panickingStore) Get(context.Context, int64) (models.Post, error) { panic("boom") }

type testServer struct {
	handler http.Handler
	store   store.PostStore
	events  *recordingPublisher
	metrics *metrics.Metrics
}

func newMemoryServer(t *testing.T) *testServer {
	t.Helper()
	return newServer(t, store.NewMemoryStore(fixedNow), nil)
}

func newServer(t *testing.T, s store.PostStore, auth *handlers.AuthHandler) *testServer {
	t.Helper()
	pub := &recordingPublisher{}
	m := metrics.New()
	posts := &handlers.PostHandler{Store: s, Events: pub, Metrics: m}
	if auth != nil {
		posts.Owners = auth
	}
	return &testServer{
		handler: handlers.NewRouter(posts, auth, m),
		store:   s,
		events:  pub,
		metrics: m,
	}
}

func (s *testServer) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Reason string          `json:"reason"`
}

type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Msg    string `json:"msg"`
}
