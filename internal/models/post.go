package models

import "time"

type Post struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPost is a validated create request. Owner is the user id resolved from
// the caller's session, empty for anonymous posts.
type NewPost struct {
	Title   string
	Content string
	Owner   string
}
