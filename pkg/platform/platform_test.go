package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NaveDanan/HuggingSpace/internal/testutil"
	"github.com/NaveDanan/HuggingSpace/pkg/models"
)

func testClient(t *testing.T) (*Client, *testutil.FakeBackend) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	c, err := New(Config{URL: ts.URL, AnonKey: "test-anon"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, backend
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{AnonKey: "k"}); err == nil {
		t.Error("expected error without URL")
	}
	if _, err := New(Config{URL: "http://localhost"}); err == nil {
		t.Error("expected error without anon key")
	}
}

func TestProbe(t *testing.T) {
	c, backend := testClient(t)

	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if backend.Requests("GET", "/rest/v1/models") != 1 {
		t.Error("probe should query the models table once")
	}
}

func TestProbe_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c, err := New(Config{URL: ts.URL, AnonKey: "test-anon"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Probe(context.Background()); err == nil {
		t.Fatal("expected probe error on 500")
	}
}

func TestSignInWithPassword(t *testing.T) {
	c, _ := testClient(t)

	var events []string
	unsubscribe := c.OnAuthStateChange(func(event string, s *models.Session) {
		events = append(events, event)
	})
	defer unsubscribe()

	session, err := c.SignInWithPassword(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if session.AccessToken != "test-token" {
		t.Errorf("AccessToken = %q", session.AccessToken)
	}
	if session.User.ID != "user-1" {
		t.Errorf("User.ID = %q", session.User.ID)
	}

	got := c.GetSession()
	if got == nil || got.AccessToken != "test-token" {
		t.Errorf("GetSession = %+v", got)
	}
	// GetSession returns a copy, not the internal pointer.
	got.AccessToken = "mutated"
	if c.GetSession().AccessToken != "test-token" {
		t.Error("GetSession must return a copy")
	}

	if len(events) != 1 || events[0] != EventSignedIn {
		t.Errorf("events = %v, want [SIGNED_IN]", events)
	}
}

func TestSignOut(t *testing.T) {
	c, _ := testClient(t)
	if _, err := c.SignInWithPassword(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatal(err)
	}

	var events []string
	defer c.OnAuthStateChange(func(event string, s *models.Session) {
		events = append(events, event)
		if s != nil {
			t.Error("sign-out event must carry a nil session")
		}
	})()

	if err := c.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out failed: %v", err)
	}
	if c.GetSession() != nil {
		t.Error("session should be cleared")
	}
	if len(events) != 1 || events[0] != EventSignedOut {
		t.Errorf("events = %v, want [SIGNED_OUT]", events)
	}
}

func TestSignIn_BackendError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"msg":"Invalid login credentials"}`))
	}))
	defer ts.Close()

	c, err := New(Config{URL: ts.URL, AnonKey: "test-anon"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.SignInWithPassword(context.Background(), "user@example.com", "wrong")
	if err == nil || !strings.Contains(err.Error(), "Invalid login credentials") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestRESTStore_RoundTrip(t *testing.T) {
	c, backend := testClient(t)
	store := c.Storage()
	ctx := context.Background()

	content := "hello, model"
	err := store.Upload(ctx, "model-files", "u1/models/m1/readme.md", strings.NewReader(content), int64(len(content)), "text/plain")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	data, err := store.Download(ctx, "model-files", "u1/models/m1/readme.md")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("downloaded %q, want %q", data, content)
	}

	if stored, ok := backend.Get("model-files", "u1/models/m1/readme.md"); !ok || string(stored) != content {
		t.Error("object not stored on backend")
	}
}

func TestRESTStore_ListSortedRelative(t *testing.T) {
	c, _ := testClient(t)
	store := c.Storage()
	ctx := context.Background()

	for _, name := range []string{"zz.txt", "aa.txt", "mid.txt"} {
		if err := store.Upload(ctx, "model-files", "u1/models/m1/"+name, strings.NewReader("x"), 1, "text/plain"); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.List(ctx, "model-files", "u1/models/m1/", 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"aa.txt", "mid.txt", "zz.txt"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("entries[%d].Name = %q, want %q", i, entries[i].Name, name)
		}
	}
}

func TestRESTStore_Remove(t *testing.T) {
	c, backend := testClient(t)
	store := c.Storage()
	ctx := context.Background()

	backend.Put("model-files", "u1/models/m1/gone.txt", []byte("x"))
	if err := store.Remove(ctx, "model-files", "u1/models/m1/gone.txt"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok := backend.Get("model-files", "u1/models/m1/gone.txt"); ok {
		t.Error("object should be deleted")
	}

	if err := store.Remove(ctx, "model-files", "u1/models/m1/gone.txt"); err == nil {
		t.Error("removing a missing object should surface the backend error")
	}
}

func TestRESTStore_DownloadMissing(t *testing.T) {
	c, _ := testClient(t)

	_, err := c.Storage().Download(context.Background(), "model-files", "u1/models/m1/none.txt")
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Status != http.StatusNotFound {
		t.Errorf("expected 404 BackendError, got %v", err)
	}
}
