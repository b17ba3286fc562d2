package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"snaptide/internal/handlers"
	"snaptide/internal/models"
	"snaptide/internal/store"
)

func newSQLiteServer(t *testing.T) *testServer {
	t.Helper()
	conn := setupTestDB(t)
	auth := &handlers.AuthHandler{DB: conn, Now: fixedNow}
	return newServer(t, store.NewSQLiteStore(conn, fixedNow), auth)
}

func sessionFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("no session_id cookie set")
	return nil
}

func TestRegister_Success(t *testing.T) {
	srv := newSQLiteServer(t)

	w := srv.do(t, http.MethodPost, "/auth/register", `{"email":"test@example.com","username":"testuser","password":"123456"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	user := decode[models.User](t, w)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "testuser", user.Username)
	assert.NotContains(t, w.Body.String(), "123456")
	assert.True(t, sessionFrom(t, w).HttpOnly)
}

func TestRegister_Duplicate(t *testing.T) {
	srv := newSQLiteServer(t)
	body := `{"email":"test@example.com","username":"testuser","password":"123456"}`

	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/auth/register", body).Code)

	w := srv.do(t, http.MethodPost, "/auth/register", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, handlers.ReasonConflict, decode[errorBody](t, w).Reason)
}

func TestRegister_Invalid(t *testing.T) {
	srv := newSQLiteServer(t)

	w := srv.do(t, http.MethodPost, "/auth/register", `{"email":"nope","username":"x","password":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, handlers.ReasonValidation, decode[errorBody](t, w).Reason)
}

func TestLogin(t *testing.T) {
	srv := newSQLiteServer(t)
	conn := srv.store.(*store.SQLiteStore).DB

	hashed, _ := bcrypt.GenerateFromPassword([]byte("123456"), bcrypt.DefaultCost)
	_, err := conn.Exec(`INSERT INTO users (id, email, username, password, created_at) VALUES (?, ?, ?, ?, ?)`,
		"u-1", "test@example.com", "testuser", string(hashed), fixedNow())
	require.NoError(t, err)

	w := srv.do(t, http.MethodPost, "/auth/login", `{"email":"test@example.com","password":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "u-1", decode[models.User](t, w).ID)
	first := sessionFrom(t, w)

	// logging in again replaces the earlier session
	w = srv.do(t, http.MethodPost, "/auth/login", `{"email":"test@example.com","password":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = 'u-1'`).Scan(&sessions))
	assert.Equal(t, 1, sessions)
	assert.NotEqual(t, first.Value, sessionFrom(t, w).Value)

	w = srv.do(t, http.MethodPost, "/auth/login", `{"email":"test@example.com","password":"wrong1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, handlers.ReasonInvalidCredentials, decode[errorBody](t, w).Reason)

	w = srv.do(t, http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"123456"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePost_AttachesSessionOwner(t *testing.T) {
	srv := newSQLiteServer(t)

	w := srv.do(t, http.MethodPost, "/auth/register", `{"email":"test@example.com","username":"testuser","password":"123456"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	user := decode[models.User](t, w)
	session := sessionFrom(t, w)

	w = srv.do(t, http.MethodPost, "/posts", `{"title":"Mine","content":"x"}`, session)
	require.Equal(t, http.StatusCreated, w.Code)
	post := decode[models.Post](t, w)
	assert.Equal(t, user.ID, post.Owner)

	w = srv.do(t, http.MethodGet, "/posts/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID, decode[models.Post](t, w).Owner)
	assert.Equal(t, user.ID, srv.events.events[0].Owner)

	// anonymous and unknown sessions create ownerless posts
	w = srv.do(t, http.MethodPost, "/posts", `{"title":"Anon","content":""}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), `"owner"`)

	w = srv.do(t, http.MethodPost, "/posts", `{"title":"Stale","content":""}`, &http.Cookie{Name: "session_id", Value: "bogus"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, decode[models.Post](t, w).Owner)
}

func TestLogout(t *testing.T) {
	srv := newSQLiteServer(t)

	w := srv.do(t, http.MethodPost, "/auth/register", `{"email":"test@example.com","username":"testuser","password":"123456"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	session := sessionFrom(t, w)

	w = srv.do(t, http.MethodPost, "/auth/logout", "", session)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, -1, sessionFrom(t, w).MaxAge)

	w = srv.do(t, http.MethodPost, "/posts", `{"title":"After","content":""}`, session)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, decode[models.Post](t, w).Owner)
}

func TestGetUserFromSession_Expired(t *testing.T) {
	conn := setupTestDB(t)
	_, err := conn.Exec(`INSERT INTO users (id, email, username, password, created_at) VALUES ('u-1', 'a@example.com', 'alice', 'x', ?)`, fixedNow())
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO sessions (id, user_id, expires_at) VALUES ('session123', 'u-1', ?)`, fixedNow().Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session123"})

	userID, username, ok, err := handlers.GetUserFromSession(conn, req, fixedNow())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u-1", userID)
	assert.Equal(t, "alice", username)

	_, _, ok, err = handlers.GetUserFromSession(conn, req, fixedNow().Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUserFromSession_QueryFailure(t *testing.T) {
	conn := setupTestDB(t)
	_, err := conn.Exec(`DROP TABLE sessions`)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session123"})

	_, _, ok, err := handlers.GetUserFromSession(conn, req, fixedNow())
	assert.False(t, ok)
	var serr *store.StorageError
	assert.ErrorAs(t, err, &serr)
}

func TestCreatePost_SessionLookupFailure(t *testing.T) {
	srv := newSQLiteServer(t)
	conn := srv.store.(*store.SQLiteStore).DB

	w := srv.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice","password":"123456"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	session := sessionFrom(t, w)

	_, err := conn.Exec(`DROP TABLE sessions`)
	require.NoError(t, err)

	w = srv.do(t, http.MethodPost, "/posts", `{"title":"Mine","content":"x"}`, session)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, handlers.ReasonStorage, decode[errorBody](t, w).Reason)

	n, err := srv.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, srv.events.events)

	// requests without a cookie never touch the sessions table
	w = srv.do(t, http.MethodPost, "/posts", `{"title":"Anon","content":"x"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLogout_StorageFailure(t *testing.T) {
	srv := newSQLiteServer(t)
	conn := srv.store.(*store.SQLiteStore).DB

	w := srv.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice","password":"123456"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	session := sessionFrom(t, w)

	_, err := conn.Exec(`DROP TABLE sessions`)
	require.NoError(t, err)

	w = srv.do(t, http.MethodPost, "/auth/logout", "", session)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, handlers.ReasonStorage, decode[errorBody](t, w).Reason)
}

func TestAuth_BodyErrors(t *testing.T) {
	srv := newSQLiteServer(t)

	for _, target := range []string{"/auth/register", "/auth/login"} {
		big := `{"email":"` + strings.Repeat("a", 2<<20) + `"}`
		w := srv.do(t, http.MethodPost, target, big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, target)
		assert.Equal(t, handlers.ReasonPayloadTooLarge, decode[errorBody](t, w).Reason)

		req := httptest.NewRequest(http.MethodPost, target, iotest.ErrReader(errors.New("connection reset")))
		w = httptest.NewRecorder()
		srv.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code, target)
		assert.Equal(t, handlers.ReasonInternal, decode[errorBody](t, w).Reason)
	}
}

func TestAuthRoutes_AbsentInMemoryMode(t *testing.T) {
	srv := newMemoryServer(t)
	w := srv.do(t, http.MethodPost, "/auth/register", `{"email":"test@example.com","username":"testuser","password":"123456"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
