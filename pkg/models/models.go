// Package models contains shared data types used by the server, SDK, and CLI.
package models

import "time"

// FileNode represents a file or directory in a model's file tree.
// A directory never carries content; a file may have empty content.
type FileNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	IsDir    bool        `json:"is_dir"`
	Content  string      `json:"content,omitempty"`
	Size     int64       `json:"size"`
	ModTime  time.Time   `json:"mtime"`
	Children []*FileNode `json:"children,omitempty"`
}

// FlatFile is the wire shape exchanged with object storage: a /-separated
// path (no leading or trailing slash) and its full text content.
type FlatFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileResult is the per-item outcome of a batch fetch or upload. A failed
// item keeps its path with empty content so the tree can still be built.
type FileResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	OK      bool   `json:"ok"`
}

// UserInfo identifies the authenticated platform user.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session holds the platform auth session for the current user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         UserInfo  `json:"user"`
}

// IsExpired returns true if the session expires within margin.
func (s *Session) IsExpired(margin time.Duration) bool {
	if s == nil {
		return true
	}
	return time.Now().Add(margin).After(s.ExpiresAt)
}

// Commit records a snapshot event over one or more file paths of a model.
type Commit struct {
	ID        string    `json:"id"`
	ModelID   string    `json:"model_id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Paths     []string  `json:"paths"`
	CreatedAt time.Time `json:"created_at"`
}
