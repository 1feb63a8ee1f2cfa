// Package commits provides a PostgreSQL-backed store for commit records:
// snapshot events referencing one or more file paths and a message.
package commits

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/NaveDanan/HuggingSpace/pkg/models"
)

// Store is a PostgreSQL commit store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	id         TEXT PRIMARY KEY,
	model_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	message    TEXT NOT NULL,
	paths      TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS commits_model_idx ON commits (model_id, created_at DESC);
`

// New opens the commit store and ensures its schema exists.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create records a commit and returns it with id and timestamp filled in.
func (s *Store) Create(ctx context.Context, modelID, userID, message string, paths []string) (*models.Commit, error) {
	commit := &models.Commit{
		ID:      uuid.NewString(),
		ModelID: modelID,
		UserID:  userID,
		Message: message,
		Paths:   paths,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO commits (id, model_id, user_id, message, paths)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		commit.ID, commit.ModelID, commit.UserID, commit.Message, pq.Array(commit.Paths),
	).Scan(&commit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert commit: %w", err)
	}
	return commit, nil
}

// ListByModel returns the most recent commits for a model, newest first.
func (s *Store) ListByModel(ctx context.Context, modelID string, limit int) ([]*models.Commit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_id, user_id, message, paths, created_at
		 FROM commits WHERE model_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		modelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	var out []*models.Commit
	for rows.Next() {
		c := &models.Commit{}
		if err := rows.Scan(&c.ID, &c.ModelID, &c.UserID, &c.Message, pq.Array(&c.Paths), &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
