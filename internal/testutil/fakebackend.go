// Package testutil provides an in-memory fake of the hosted platform for
// package tests: auth token issuance, the row probe, and object storage.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// FakeBackend emulates the platform's REST surface over an in-memory
// object map. All fields are safe for concurrent use through the mutex.
type FakeBackend struct {
	mu       sync.Mutex
	objects  map[string][]byte // key: bucket/path
	requests map[string]int    // method+space+path counters
	failWith map[string]int    // object path -> forced status
}

// NewFakeBackend creates an empty fake platform.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		objects:  make(map[string][]byte),
		requests: make(map[string]int),
		failWith: make(map[string]int),
	}
}

// Put seeds an object.
func (f *FakeBackend) Put(bucket, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+path] = content
}

// Get returns a stored object.
func (f *FakeBackend) Get(bucket, path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+path]
	return data, ok
}

// FailPath forces the given status for any storage operation on path.
func (f *FakeBackend) FailPath(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith[path] = status
}

// Requests returns how many times method+" "+path was hit.
func (f *FakeBackend) Requests(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method+" "+path]
}

// StorageRequests returns the total number of storage-endpoint hits.
func (f *FakeBackend) StorageRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for key, n := range f.requests {
		if strings.Contains(key, "/storage/v1/") {
			total += n
		}
	}
	return total
}

func (f *FakeBackend) count(r *http.Request) {
	f.mu.Lock()
	f.requests[r.Method+" "+r.URL.Path]++
	f.mu.Unlock()
}

// ServeHTTP implements the platform REST surface.
func (f *FakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.count(r)

	switch {
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[]")

	case r.URL.Path == "/auth/v1/token":
		f.serveToken(w)
	case r.URL.Path == "/auth/v1/signup":
		f.serveToken(w)
	case r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/list/"):
		f.serveList(w, r)
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/"):
		f.serveObject(w, r)

	default:
		http.NotFound(w, r)
	}
}

func (f *FakeBackend) serveToken(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "test-token",
		"refresh_token": "test-refresh",
		"expires_in":    3600,
		"user":          map[string]string{"id": "user-1", "email": "user@example.com"},
	})
}

func (f *FakeBackend) serveList(w http.ResponseWriter, r *http.Request) {
	bucket := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/list/")
	var req struct {
		Prefix string `json:"prefix"`
		Limit  int    `json:"limit"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	var names []string
	sizes := make(map[string]int)
	for key, data := range f.objects {
		full := strings.TrimPrefix(key, bucket+"/")
		if !strings.HasPrefix(full, req.Prefix) {
			continue
		}
		name := strings.TrimPrefix(full, req.Prefix)
		names = append(names, name)
		sizes[name] = len(data)
	}
	f.mu.Unlock()

	sort.Strings(names)
	if req.Limit > 0 && len(names) > req.Limit {
		names = names[:req.Limit]
	}

	entries := make([]map[string]any, 0, len(names))
	for _, name := range names {
		entries = append(entries, map[string]any{
			"name":     name,
			"metadata": map[string]any{"size": sizes[name]},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (f *FakeBackend) serveObject(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")

	f.mu.Lock()
	path := key
	if i := strings.IndexByte(key, '/'); i >= 0 {
		path = key[i+1:]
	}
	status := f.failWith[path]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":"forced failure"}`)
		return
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.objects[key] = data
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Key":%q}`, key)

	case http.MethodGet:
		f.mu.Lock()
		data, ok := f.objects[key]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Object not found"}`)
			return
		}
		w.Write(data)

	case http.MethodDelete:
		f.mu.Lock()
		_, ok := f.objects[key]
		delete(f.objects, key)
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Object not found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"message":"Successfully deleted"}`)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
