// Package modelfiles holds the stateful façades the web layer consumes:
// per-model file trees with load/add/update/upload operations and their
// loading/error status.
package modelfiles

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/NaveDanan/HuggingSpace/internal/storage"
	"github.com/NaveDanan/HuggingSpace/pkg/platform"
)

// Service hands out per-model file façades backed by one platform client.
type Service struct {
	client   *platform.Client
	storage  *storage.Service
	registry *xsync.Map[string, *Files]
}

// NewService creates the façade registry.
func NewService(client *platform.Client, store *storage.Service) *Service {
	return &Service{
		client:   client,
		storage:  store,
		registry: xsync.NewMap[string, *Files](),
	}
}

// For returns the file façade for a model, creating it on first use.
func (s *Service) For(modelID string) *Files {
	f, _ := s.registry.LoadOrCompute(modelID, func() (*Files, bool) {
		return &Files{
			modelID: modelID,
			client:  s.client,
			storage: s.storage,
		}, false
	})
	return f
}

// UpdateFile re-uploads a single path with overwrite semantics. It does not
// touch any façade's local tree; callers reflect the change themselves.
func (s *Service) UpdateFile(ctx context.Context, modelID, path, content string) error {
	session := s.client.GetSession()
	if session == nil {
		return ErrNoSession
	}
	filename, err := relativeName(session.User.ID, modelID, path)
	if err != nil {
		return err
	}
	_, err = s.storage.UploadFile(ctx, session.User.ID, modelID, filename, []byte(content), "")
	return err
}
