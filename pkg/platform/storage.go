package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ObjectStore is the object-storage capability of the platform, addressed
// by bucket name and /-separated path.
type ObjectStore interface {
	// Upload stores body at bucket/path, overwriting any existing object.
	Upload(ctx context.Context, bucket, path string, body io.Reader, size int64, contentType string) error
	// Download returns the full object content.
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	// List returns up to limit objects under prefix, ordered by name
	// ascending. Names are relative to the prefix.
	List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error)
	// Remove deletes the single object at bucket/path.
	Remove(ctx context.Context, bucket, path string) error
}

// restStore talks to the platform's storage REST endpoints.
type restStore struct {
	client *Client
}

func (s *restStore) objectURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.client.baseURL, bucket, escapePath(path))
}

func escapePath(path string) string {
	return (&url.URL{Path: path}).EscapedPath()
}

func (s *restStore) Upload(ctx context.Context, bucket, path string, body io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(bucket, path), body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	s.client.applyHeaders(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return backendError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *restStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(bucket, path), nil)
	if err != nil {
		return nil, err
	}
	s.client.applyHeaders(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(resp)
	}
	return io.ReadAll(resp.Body)
}

// listRequest is the wire shape of the storage list endpoint.
type listRequest struct {
	Prefix string     `json:"prefix"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	SortBy listSortBy `json:"sortBy"`
}

type listSortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

type listEntry struct {
	Name     string `json:"name"`
	Metadata struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

func (s *restStore) List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error) {
	payload, _ := json.Marshal(listRequest{
		Prefix: prefix,
		Limit:  limit,
		SortBy: listSortBy{Column: "name", Order: "asc"},
	})
	u := fmt.Sprintf("%s/storage/v1/object/list/%s", s.client.baseURL, bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	s.client.applyHeaders(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(resp)
	}

	var entries []listEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse list response: %w", err)
	}

	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, ObjectInfo{Name: e.Name, Size: e.Metadata.Size})
	}
	return out, nil
}

func (s *restStore) Remove(ctx context.Context, bucket, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(bucket, path), nil)
	if err != nil {
		return err
	}
	s.client.applyHeaders(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return backendError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

var _ ObjectStore = (*restStore)(nil)
