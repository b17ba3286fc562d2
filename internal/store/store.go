// Package store owns the authoritative collection of posts. Both backends
// honor the same contract: ids are unique and strictly increasing, listing
// returns posts in creation order, and a missing id yields ErrNotFound.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snaptide/internal/models"
)

var ErrNotFound = errors.New("post not found")

// StorageError reports a failed round-trip to a persisted backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

type PostStore interface {
	List(ctx context.Context, limit Limit) ([]models.Post, error)
	Get(ctx context.Context, id int64) (models.Post, error)
	Create(ctx context.Context, in models.NewPost) (models.Post, error)
	Count(ctx context.Context) (int, error)
}

// Limit is an optional upper bound on List. The zero value means no limit.
type Limit struct {
	n   int
	set bool
}

func NoLimit() Limit { return Limit{} }

func LimitOf(n int) Limit { return Limit{n: n, set: true} }

// Bounded reports whether the limit restricts the result, and to how many
// posts. A negative limit is treated like no limit; zero is a real bound.
func (l Limit) Bounded() (int, bool) {
	if !l.set || l.n < 0 {
		return 0, false
	}
	return l.n, true
}

// Seed creates n demo posts.
func Seed(ctx context.Context, s PostStore, n int) error {
	for i := 1; i <= n; i++ {
		_, err := s.Create(ctx, models.NewPost{
			Title:   fmt.Sprintf("Post %d", i),
			Content: fmt.Sprintf("Description of Post %d", i),
		})
		if err != nil {
			return fmt.Errorf("seed post %d: %w", i, err)
		}
	}
	return nil
}

func utcNow() time.Time { return time.Now().UTC() }
