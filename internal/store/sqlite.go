package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"snaptide/internal/models"
)

var _ PostStore = (*SQLiteStore)(nil)

// SQLiteStore persists posts in the posts table created by db.InitDatabase.
// Ids come from AUTOINCREMENT, so the engine assigns them atomically with the
// insert and never reuses one.
type SQLiteStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB, now func() time.Time) *SQLiteStore {
	if now == nil {
		now = utcNow
	}
	return &SQLiteStore{DB: db, now: now}
}

func (s *SQLiteStore) List(ctx context.Context, limit Limit) ([]models.Post, error) {
	query := `SELECT id, COALESCE(user_id, ''), title, content, created_at FROM posts ORDER BY id`
	var args []interface{}
	if n, ok := limit.Bounded(); ok {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.Owner, &p.Title, &p.Content, &p.CreatedAt); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		p.CreatedAt = p.CreatedAt.UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return posts, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (models.Post, error) {
	var p models.Post
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, COALESCE(user_id, ''), title, content, created_at
		FROM posts
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Owner, &p.Title, &p.Content, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		return models.Post{}, &StorageError{Op: "get", Err: err}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *SQLiteStore) Create(ctx context.Context, in models.NewPost) (models.Post, error) {
	p := models.Post{
		Title:     in.Title,
		Content:   in.Content,
		Owner:     in.Owner,
		CreatedAt: s.now(),
	}

	var owner interface{}
	if in.Owner != "" {
		owner = in.Owner
	}
	res, err := s.DB.ExecContext(ctx,
		"INSERT INTO posts (user_id, title, content, created_at) VALUES (?, ?, ?, ?)",
		owner, p.Title, p.Content, p.CreatedAt)
	if err != nil {
		return models.Post{}, &StorageError{Op: "create", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Post{}, &StorageError{Op: "create", Err: err}
	}
	p.ID = id
	return p, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}
