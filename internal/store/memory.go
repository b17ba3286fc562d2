package store

import (
	"context"
	"sync"
	"time"

	"snaptide/internal/models"
)

var _ PostStore = (*MemoryStore)(nil)

// MemoryStore keeps posts in process memory. Create holds the write lock
// across id assignment and insertion.
type MemoryStore struct {
	mu    sync.RWMutex
	posts []models.Post
	index map[int64]int
	maxID int64
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = utcNow
	}
	return &MemoryStore{index: make(map[int64]int), now: now}
}

func (s *MemoryStore) List(_ context.Context, limit Limit) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.posts)
	if bound, ok := limit.Bounded(); ok && bound < n {
		n = bound
	}
	out := make([]models.Post, n)
	copy(out, s.posts[:n])
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return s.posts[i], nil
}

func (s *MemoryStore) Create(_ context.Context, in models.NewPost) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Posts are never deleted, so maxID is always the largest assigned id
	// and maxID+1 is 1 + max(ids).
	s.maxID++
	p := models.Post{
		ID:        s.maxID,
		Title:     in.Title,
		Content:   in.Content,
		Owner:     in.Owner,
		CreatedAt: s.now(),
	}
	s.index[p.ID] = len(s.posts)
	s.posts = append(s.posts, p)
	return p, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts), nil
}
