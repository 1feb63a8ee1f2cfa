// Package storage provides path-building and CRUD primitives for model
// files, with every backend call routed through the resilient retry
// wrapper.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/NaveDanan/HuggingSpace/internal/metrics"
	"github.com/NaveDanan/HuggingSpace/pkg/platform"
	"github.com/NaveDanan/HuggingSpace/pkg/retry"
)

const (
	// Bucket is the single logical bucket holding all model files.
	Bucket = "model-files"

	// MaxFileSize is the per-object ceiling, checked before any network
	// call is issued.
	MaxFileSize = 500 * 1024 * 1024

	// ListPageSize caps prefix listings at the first page. Models with
	// more files than this are truncated; there is no cursor pagination.
	ListPageSize = 100

	// DefaultContentType is used when the caller does not supply one.
	DefaultContentType = "text/plain"
)

// ValidationError reports an input rejected before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

var multiSlash = regexp.MustCompile(`/+`)

// BuildObjectPath composes the object path for a model file:
// "{userID}/models/{modelID}/{filename}". All components are trimmed and
// must be non-empty; repeated slashes are collapsed.
func BuildObjectPath(userID, modelID, filename string) (string, error) {
	userID = strings.TrimSpace(userID)
	modelID = strings.TrimSpace(modelID)
	filename = strings.TrimSpace(filename)

	switch {
	case userID == "":
		return "", &ValidationError{Reason: "user id is empty"}
	case modelID == "":
		return "", &ValidationError{Reason: "model id is empty"}
	case filename == "":
		return "", &ValidationError{Reason: "filename is empty"}
	}

	path := fmt.Sprintf("%s/models/%s/%s", userID, modelID, filename)
	return multiSlash.ReplaceAllString(path, "/"), nil
}

// prefixFor returns the listing prefix "{userID}/models/{modelID}/".
func prefixFor(userID, modelID string) (string, error) {
	userID = strings.TrimSpace(userID)
	modelID = strings.TrimSpace(modelID)
	if userID == "" {
		return "", &ValidationError{Reason: "user id is empty"}
	}
	if modelID == "" {
		return "", &ValidationError{Reason: "model id is empty"}
	}
	return multiSlash.ReplaceAllString(userID+"/models/"+modelID+"/", "/"), nil
}

// Service exposes the storage access functions over a platform client.
type Service struct {
	Client *platform.Client
	Retry  retry.Config
}

// NewService creates a storage service with the default retry policy.
func NewService(client *platform.Client) *Service {
	return &Service{Client: client, Retry: retry.DefaultConfig()}
}

// UploadFile stores content at the model file path (overwrite allowed) and
// returns the stored path. Oversized content fails before any network call.
func (s *Service) UploadFile(ctx context.Context, userID, modelID, filename string, content []byte, contentType string) (string, error) {
	path, err := BuildObjectPath(userID, modelID, filename)
	if err != nil {
		return "", err
	}
	if int64(len(content)) > MaxFileSize {
		return "", &ValidationError{
			Reason: fmt.Sprintf("file %s exceeds %d byte limit", filename, MaxFileSize),
		}
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	start := time.Now()
	err = retry.Do(ctx, s.Retry, s.Client.Gate(), func(ctx context.Context) error {
		return s.Client.Storage().Upload(ctx, Bucket, path, bytes.NewReader(content), int64(len(content)), contentType)
	})
	metrics.RecordStorageOperation("upload", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	metrics.RecordUpload(int64(len(content)))
	return path, nil
}

// DownloadFile retrieves the object content decoded as text. A missing
// object surfaces the backend's error unchanged.
func (s *Service) DownloadFile(ctx context.Context, userID, modelID, filename string) (string, error) {
	path, err := BuildObjectPath(userID, modelID, filename)
	if err != nil {
		return "", err
	}

	start := time.Now()
	data, err := retry.DoWithResult(ctx, s.Retry, s.Client.Gate(), func(ctx context.Context) ([]byte, error) {
		data, err := s.Client.Storage().Download(ctx, Bucket, path)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, retry.ErrNoData
		}
		return data, nil
	})
	metrics.RecordStorageOperation("download", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	metrics.RecordDownload(int64(len(data)))
	return string(data), nil
}

// ListFiles returns up to ListPageSize file names under the model prefix,
// name ascending, prefix stripped, empty entries filtered.
func (s *Service) ListFiles(ctx context.Context, userID, modelID string) ([]string, error) {
	prefix, err := prefixFor(userID, modelID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	entries, err := retry.DoWithResult(ctx, s.Retry, s.Client.Gate(), func(ctx context.Context) ([]platform.ObjectInfo, error) {
		return s.Client.Storage().List(ctx, Bucket, prefix, ListPageSize)
	})
	metrics.RecordStorageOperation("list", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimPrefix(e.Name, prefix)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// DeleteFile removes the single object at the model file path.
func (s *Service) DeleteFile(ctx context.Context, userID, modelID, filename string) error {
	path, err := BuildObjectPath(userID, modelID, filename)
	if err != nil {
		return err
	}

	start := time.Now()
	err = retry.Do(ctx, s.Retry, s.Client.Gate(), func(ctx context.Context) error {
		return s.Client.Storage().Remove(ctx, Bucket, path)
	})
	metrics.RecordStorageOperation("delete", time.Since(start), err == nil)
	return err
}
