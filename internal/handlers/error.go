package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"runtime/debug"

	"snaptide/internal/store"
	"snaptide/internal/validation"
)

// Stable machine-readable reasons carried by every error body.
const (
	ReasonNotFound           = "not_found"
	ReasonValidation         = "validation_error"
	ReasonStorage            = "storage_error"
	ReasonInternal           = "internal_error"
	ReasonConflict           = "conflict"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonPayloadTooLarge    = "payload_too_large"
)

type ErrorBody struct {
	Detail any    `json:"detail"`
	Reason string `json:"reason"`
}

// ErrorHandler renders error responses. A nil *ErrorHandler is ready to use.
type ErrorHandler struct{}

func (h *ErrorHandler) Render(w http.ResponseWriter, status int, reason string, detail any) {
	writeJSON(w, ErrorBody{Detail: detail, Reason: reason}, status)
}

func (h *ErrorHandler) NotFound(w http.ResponseWriter, msg string) {
	h.Render(w, http.StatusNotFound, ReasonNotFound, msg)
}

// Validation renders field-level detail for a *validation.ValidationError and
// falls back to a 500 for anything else.
func (h *ErrorHandler) Validation(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		h.Internal(w, err)
		return
	}
	h.Render(w, http.StatusUnprocessableEntity, ReasonValidation, verr.Fields)
}

// Store maps a post store failure to its single HTTP status.
func (h *ErrorHandler) Store(w http.ResponseWriter, err error) {
	var serr *store.StorageError
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.NotFound(w, "Post not found")
	case errors.As(err, &serr):
		log.Printf("storage failure: %v", err)
		h.Render(w, http.StatusInternalServerError, ReasonStorage, "Storage unavailable")
	default:
		h.Internal(w, err)
	}
}

func (h *ErrorHandler) Internal(w http.ResponseWriter, err error) {
	log.Printf("internal error: %v", err)
	h.Render(w, http.StatusInternalServerError, ReasonInternal, "Internal server error")
}

func (h *ErrorHandler) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Printf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				h.Render(w, http.StatusInternalServerError, ReasonInternal, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
