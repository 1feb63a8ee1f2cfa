package modelfiles

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/NaveDanan/HuggingSpace/internal/logging"
	"github.com/NaveDanan/HuggingSpace/internal/metrics"
	"github.com/NaveDanan/HuggingSpace/internal/storage"
	"github.com/NaveDanan/HuggingSpace/pkg/models"
	"github.com/NaveDanan/HuggingSpace/pkg/platform"
	"github.com/NaveDanan/HuggingSpace/pkg/tree"
)

// ErrNoSession is returned by mutating operations when no user is signed in.
var ErrNoSession = errors.New("no authenticated session")

// maxConcurrentFetches bounds the parallel per-file downloads and uploads.
const maxConcurrentFetches = 10

// Files is the per-model state façade. Mutating calls are not serialized
// against each other: two concurrent AddFile calls can each merge into the
// same snapshot and one update can be lost. Sequential awaited calls are
// safe; the web layer issues them that way.
type Files struct {
	modelID string
	client  *platform.Client
	storage *storage.Service

	mu       sync.RWMutex
	files    []*models.FileNode
	loading  bool
	err      error
	failures []string
}

// Snapshot is the view the UI consumes.
type Snapshot struct {
	Files   []*models.FileNode `json:"files"`
	Loading bool               `json:"loading"`
	Error   string             `json:"error,omitempty"`
}

// Snapshot returns the current files, loading flag, and whole-operation
// error. Per-file partial failures never appear here; see Failures.
func (f *Files) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := Snapshot{Files: f.files, Loading: f.loading}
	if f.err != nil {
		s.Error = f.err.Error()
	}
	return s
}

// Failures returns the paths that failed during the last batch operation.
func (f *Files) Failures() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.failures...)
}

// Load lists the model's remote paths and downloads them all in parallel,
// then rebuilds the tree once every fetch has settled. A file that fails to
// download is logged, counted, and stands in with empty content; it never
// fails the load as a whole. With no session or model id the state resets
// to an empty list.
func (f *Files) Load(ctx context.Context) error {
	session := f.client.GetSession()
	if session == nil || f.modelID == "" {
		f.mu.Lock()
		f.files = nil
		f.loading = false
		f.err = nil
		f.failures = nil
		f.mu.Unlock()
		return nil
	}

	f.setLoading(true)
	defer f.setLoading(false)

	paths, err := f.storage.ListFiles(ctx, session.User.ID, f.modelID)
	if err != nil {
		f.setError(err)
		return err
	}

	results := f.fetchAll(ctx, session.User.ID, paths)
	f.applyResults(results)
	return nil
}

// fetchAll downloads every path concurrently and returns one FileResult per
// path, in input order.
func (f *Files) fetchAll(ctx context.Context, userID string, paths []string) []models.FileResult {
	results := make([]models.FileResult, len(paths))
	sem := make(chan struct{}, maxConcurrentFetches)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := f.storage.DownloadFile(ctx, userID, f.modelID, path)
			if err != nil {
				logging.Warn("file download failed, substituting empty content",
					zap.String("model_id", f.modelID),
					zap.String("path", path),
					zap.Error(err))
				metrics.RecordPartialFailure()
				results[i] = models.FileResult{Path: path, OK: false}
				return
			}
			results[i] = models.FileResult{Path: path, Content: content, OK: true}
		}(i, path)
	}
	wg.Wait()
	return results
}

// applyResults rebuilds the tree from a full result set in one step, so the
// UI never observes a partially merged tree.
func (f *Files) applyResults(results []models.FileResult) {
	flat := make([]models.FlatFile, 0, len(results))
	var failures []string
	for _, r := range results {
		flat = append(flat, models.FlatFile{Path: r.Path, Content: r.Content})
		if !r.OK {
			failures = append(failures, r.Path)
		}
	}

	built := tree.Build(flat)
	metrics.RecordTreeBuild()

	f.mu.Lock()
	f.files = built
	f.err = nil
	f.failures = failures
	f.mu.Unlock()
}

// AddFile uploads a new file and merges it into the current flattened set,
// rebuilding the tree. A duplicate filename overwrites the existing entry.
func (f *Files) AddFile(ctx context.Context, filename, content string) error {
	session := f.client.GetSession()
	if session == nil {
		return ErrNoSession
	}

	if _, err := f.storage.UploadFile(ctx, session.User.ID, f.modelID, filename, []byte(content), ""); err != nil {
		f.setError(err)
		return err
	}

	f.merge([]models.FlatFile{{Path: filename, Content: content}})
	return nil
}

// Incoming is one file of an upload batch.
type Incoming struct {
	Name   string
	Reader io.Reader
}

// UploadAll reads and uploads a batch in parallel and merges the successes
// into the tree. A per-file read or upload failure is logged and excluded
// from the merge; the batch itself still succeeds.
func (f *Files) UploadAll(ctx context.Context, batch []Incoming) error {
	session := f.client.GetSession()
	if session == nil {
		return ErrNoSession
	}

	results := make([]models.FileResult, len(batch))
	sem := make(chan struct{}, maxConcurrentFetches)
	var wg sync.WaitGroup

	for i, item := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item Incoming) {
			defer wg.Done()
			defer func() { <-sem }()

			data, err := io.ReadAll(item.Reader)
			if err == nil {
				_, err = f.storage.UploadFile(ctx, session.User.ID, f.modelID, item.Name, data, "")
			}
			if err != nil {
				logging.Warn("file upload failed, excluding from merge",
					zap.String("model_id", f.modelID),
					zap.String("name", item.Name),
					zap.Error(err))
				metrics.RecordPartialFailure()
				results[i] = models.FileResult{Path: item.Name, OK: false}
				return
			}
			results[i] = models.FileResult{Path: item.Name, Content: string(data), OK: true}
		}(i, item)
	}
	wg.Wait()

	var merged []models.FlatFile
	var failures []string
	for _, r := range results {
		if r.OK {
			merged = append(merged, models.FlatFile{Path: r.Path, Content: r.Content})
		} else {
			failures = append(failures, r.Path)
		}
	}

	f.merge(merged)
	f.mu.Lock()
	f.failures = failures
	f.mu.Unlock()
	return nil
}

// merge rebuilds the tree from the current flattened set plus incoming
// records; an incoming path that already exists overwrites.
func (f *Files) merge(incoming []models.FlatFile) {
	f.mu.Lock()
	defer f.mu.Unlock()

	flat := tree.Flatten(f.files)
	for _, in := range incoming {
		replaced := false
		for i := range flat {
			if flat[i].Path == in.Path {
				flat[i] = in
				replaced = true
				break
			}
		}
		if !replaced {
			flat = append(flat, in)
		}
	}

	f.files = tree.Build(flat)
	f.err = nil
	metrics.RecordTreeBuild()
}

func (f *Files) setLoading(loading bool) {
	f.mu.Lock()
	f.loading = loading
	f.mu.Unlock()
}

func (f *Files) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// relativeName strips the storage prefix from a tree path when the caller
// passed a full object path instead of a model-relative one.
func relativeName(userID, modelID, path string) (string, error) {
	name := strings.TrimPrefix(path, userID+"/models/"+modelID+"/")
	name = strings.Trim(name, "/")
	if name == "" {
		return "", &storage.ValidationError{Reason: "file path is empty"}
	}
	return name, nil
}
