package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"snaptide/internal/events"
	"snaptide/internal/metrics"
	"snaptide/internal/store"
	"snaptide/internal/validation"
)

const (
	maxBodyBytes   = 1 << 20
	publishTimeout = 5 * time.Second
)

// OwnerResolver identifies the user behind a request, if any.
type OwnerResolver interface {
	// OwnerFromRequest reports ok=false for anonymous requests and a
	// non-nil error only when the lookup itself failed.
	OwnerFromRequest(r *http.Request) (userID string, ok bool, err error)
}

type PostHandler struct {
	Store   store.PostStore
	Owners  OwnerResolver    // nil: every post is anonymous
	Events  events.Publisher // nil: events are not emitted
	Metrics *metrics.Metrics // nil: counters are not recorded
	Err     *ErrorHandler
}

// ListPosts serves GET /posts?limit=n as a JSON array in creation order.
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	values, present := r.URL.Query()["limit"]
	var raw string
	if present {
		raw = values[0]
	}
	limit, err := validation.ParseLimit(raw, present)
	if err != nil {
		h.Err.Validation(w, err)
		return
	}

	posts, err := h.Store.List(r.Context(), limit)
	if err != nil {
		h.Err.Store(w, err)
		return
	}
	writeJSON(w, posts, http.StatusOK)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParsePostID(r.PathValue("id"))
	if err != nil {
		h.Err.Validation(w, err)
		return
	}

	post, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.Err.Store(w, err)
		return
	}
	writeJSON(w, post, http.StatusOK)
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, h.Err)
	if !ok {
		return
	}

	in, err := validation.DecodeNewPost(body)
	if err != nil {
		h.Err.Validation(w, err)
		return
	}
	if h.Owners != nil {
		owner, ok, err := h.Owners.OwnerFromRequest(r)
		if err != nil {
			h.Err.Store(w, err)
			return
		}
		if ok {
			in.Owner = owner
		}
	}

	post, err := h.Store.Create(r.Context(), in)
	if err != nil {
		h.Err.Store(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.PostsCreated.Inc()
	}

	// The post is committed at this point; a lost event must not turn into
	// a failed create.
	if h.Events != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), publishTimeout)
		if err := h.Events.PublishPostCreated(ctx, events.NewPostCreated(post)); err != nil {
			log.Printf("post %d: %v", post.ID, err)
			if h.Metrics != nil {
				h.Metrics.PublishFailures.Inc()
			}
		}
		cancel()
	}

	writeJSON(w, post, http.StatusCreated)
}

// readBody reads a request body capped at maxBodyBytes and renders the error
// response itself when it cannot.
func readBody(w http.ResponseWriter, r *http.Request, errs *ErrorHandler) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errs.Render(w, http.StatusRequestEntityTooLarge, ReasonPayloadTooLarge, "Request body too large")
		} else {
			errs.Internal(w, err)
		}
		return nil, false
	}
	return body, true
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "Health check successful"}, http.StatusOK)
}
