package handlers

import (
	"net/http"

	"snaptide/internal/metrics"
)

// NewRouter registers every route and wraps the mux in recovery and, when m
// is set, request metrics. auth may be nil, in which case the user routes are
// not served.
func NewRouter(posts *PostHandler, auth *AuthHandler, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health-check", Health)

	mux.HandleFunc("GET /posts", posts.ListPosts)
	mux.HandleFunc("GET /posts/{id}", posts.GetPost)
	mux.HandleFunc("POST /posts", posts.CreatePost)

	if auth != nil {
		mux.HandleFunc("POST /auth/register", auth.Register)
		mux.HandleFunc("POST /auth/login", auth.Login)
		mux.HandleFunc("POST /auth/logout", auth.Logout)
	}

	var h http.Handler = posts.Err.RecoveryMiddleware(mux)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
		h = m.Middleware(h)
	}
	return h
}
