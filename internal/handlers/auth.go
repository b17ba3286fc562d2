package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"snaptide/internal/models"
	"snaptide/internal/store"
	"snaptide/internal/validation"
)

const (
	sessionCookie = "session_id"
	sessionTTL    = 24 * time.Hour
)

var _ OwnerResolver = (*AuthHandler)(nil)

type AuthHandler struct {
	DB  *sql.DB
	Err *ErrorHandler
	Now func() time.Time
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// Register creates a user and opens a session for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, h.Err)
	if !ok {
		return
	}
	reg, err := validation.DecodeRegistration(body)
	if err != nil {
		h.Err.Validation(w, err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Err.Internal(w, err)
		return
	}

	user := models.User{
		ID:        uuid.New().String(),
		Email:     reg.Email,
		Username:  reg.Username,
		CreatedAt: h.now(),
	}
	_, err = h.DB.ExecContext(r.Context(),
		"INSERT INTO users (id, email, username, password, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Username, string(hashed), user.CreatedAt)
	if isUniqueViolation(err) {
		h.Err.Render(w, http.StatusConflict, ReasonConflict, "Email or username already taken")
		return
	}
	if err != nil {
		h.Err.Internal(w, err)
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		h.Err.Internal(w, err)
		return
	}
	writeJSON(w, user, http.StatusCreated)
}

// Login replaces any existing sessions of the user with a fresh one.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, h.Err)
	if !ok {
		return
	}
	email, password, err := validation.DecodeCredentials(body)
	if err != nil {
		h.Err.Validation(w, err)
		return
	}

	var user models.User
	var hashed string
	err = h.DB.QueryRowContext(r.Context(),
		"SELECT id, email, username, password, created_at FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Email, &user.Username, &hashed, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		h.Err.Render(w, http.StatusUnauthorized, ReasonInvalidCredentials, "Invalid email or password")
		return
	}
	if err != nil {
		h.Err.Internal(w, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) != nil {
		h.Err.Render(w, http.StatusUnauthorized, ReasonInvalidCredentials, "Invalid email or password")
		return
	}

	if _, err := h.DB.ExecContext(r.Context(), "DELETE FROM sessions WHERE user_id = ?", user.ID); err != nil {
		h.Err.Internal(w, err)
		return
	}
	if err := h.startSession(w, r, user.ID); err != nil {
		h.Err.Internal(w, err)
		return
	}
	user.CreatedAt = user.CreatedAt.UTC()
	writeJSON(w, user, http.StatusOK)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil {
		if _, err := h.DB.ExecContext(r.Context(), "DELETE FROM sessions WHERE id = ?", cookie.Value); err != nil {
			h.Err.Store(w, &store.StorageError{Op: "delete session", Err: err})
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) OwnerFromRequest(r *http.Request) (string, bool, error) {
	userID, _, ok, err := GetUserFromSession(h.DB, r, h.now())
	return userID, ok, err
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	sessionID := uuid.New().String()
	expires := h.now().Add(sessionTTL)
	_, err := h.DB.ExecContext(r.Context(),
		"INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)", sessionID, userID, expires)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Expires:  expires,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetUserFromSession returns the id and username behind the request's
// session cookie, if the session exists and has not expired at now. A missing,
// unknown or expired session is not an error; a failed query is.
func GetUserFromSession(db *sql.DB, r *http.Request, now time.Time) (string, string, bool, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", "", false, nil
	}

	var userID, username string
	var expiresAt time.Time
	err = db.QueryRowContext(r.Context(), `
		SELECT s.user_id, s.expires_at, u.username
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ?
	`, cookie.Value).Scan(&userID, &expiresAt, &username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, &store.StorageError{Op: "session lookup", Err: err}
	}

	if now.UTC().After(expiresAt.UTC()) {
		return "", "", false, nil
	}
	return userID, username, true, nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}
