package modelfiles

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NaveDanan/HuggingSpace/internal/storage"
	"github.com/NaveDanan/HuggingSpace/internal/testutil"
	"github.com/NaveDanan/HuggingSpace/pkg/models"
	"github.com/NaveDanan/HuggingSpace/pkg/platform"
	"github.com/NaveDanan/HuggingSpace/pkg/retry"
	"github.com/NaveDanan/HuggingSpace/pkg/tree"
)

func testSetup(t *testing.T) (*Service, *testutil.FakeBackend, *platform.Client) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	client, err := platform.New(platform.Config{URL: ts.URL, AnonKey: "test-anon"})
	if err != nil {
		t.Fatal(err)
	}

	store := storage.NewService(client)
	store.Retry = retry.Config{
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: 250 * time.Millisecond,
		WaitTimeout:    50 * time.Millisecond,
	}
	return NewService(client, store), backend, client
}

func signIn(t *testing.T, client *platform.Client) {
	t.Helper()
	client.SetSession(&models.Session{
		AccessToken: "test-token",
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        models.UserInfo{ID: "user-1", Email: "user@example.com"},
	})
}

func TestLoad_BuildsTree(t *testing.T) {
	svc, backend, client := testSetup(t)
	signIn(t, client)

	backend.Put("model-files", "user-1/models/m1/readme.md", []byte("# hi"))
	backend.Put("model-files", "user-1/models/m1/src/app.py", []byte("pass"))

	files := svc.For("m1")
	if err := files.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	snap := files.Snapshot()
	if snap.Loading {
		t.Error("loading flag should be cleared")
	}
	if snap.Error != "" {
		t.Errorf("unexpected error: %s", snap.Error)
	}
	if got := tree.CountNodes(snap.Files); got != 3 {
		t.Fatalf("CountNodes = %d, want 3 (readme, src, src/app.py)", got)
	}
	readme := tree.FindByPath(snap.Files, "readme.md")
	if readme == nil || readme.Content != "# hi" {
		t.Errorf("readme node: %+v", readme)
	}
	app := tree.FindByPath(snap.Files, "src/app.py")
	if app == nil || app.Content != "pass" {
		t.Errorf("app node: %+v", app)
	}
}

func TestLoad_PartialFailureKeepsGoing(t *testing.T) {
	svc, backend, client := testSetup(t)
	signIn(t, client)

	backend.Put("model-files", "user-1/models/m1/good.txt", []byte("fine"))
	backend.Put("model-files", "user-1/models/m1/bad.txt", []byte("doomed"))
	backend.FailPath("user-1/models/m1/bad.txt", 500)

	files := svc.For("m1")
	if err := files.Load(context.Background()); err != nil {
		t.Fatalf("partial failure must not fail the load: %v", err)
	}

	snap := files.Snapshot()
	if snap.Error != "" {
		t.Errorf("per-file failure leaked into the whole-load error: %s", snap.Error)
	}
	good := tree.FindByPath(snap.Files, "good.txt")
	if good == nil || good.Content != "fine" {
		t.Errorf("good node: %+v", good)
	}
	bad := tree.FindByPath(snap.Files, "bad.txt")
	if bad == nil {
		t.Fatal("failed file must still appear in the tree")
	}
	if bad.Content != "" {
		t.Errorf("failed file should carry empty content, got %q", bad.Content)
	}

	failures := files.Failures()
	if len(failures) != 1 || failures[0] != "bad.txt" {
		t.Errorf("Failures = %v, want [bad.txt]", failures)
	}
}

func TestLoad_NoSessionResetsState(t *testing.T) {
	svc, backend, _ := testSetup(t)
	backend.Put("model-files", "user-1/models/m1/readme.md", []byte("# hi"))

	files := svc.For("m1")
	if err := files.Load(context.Background()); err != nil {
		t.Fatalf("load without session must be a no-op reset: %v", err)
	}

	snap := files.Snapshot()
	if len(snap.Files) != 0 || snap.Loading || snap.Error != "" {
		t.Errorf("expected empty state, got %+v", snap)
	}
}

func TestAddFile_SequentialAdds(t *testing.T) {
	svc, backend, client := testSetup(t)
	signIn(t, client)

	files := svc.For("m1")
	if err := files.AddFile(context.Background(), "a.txt", "first"); err != nil {
		t.Fatalf("add a.txt: %v", err)
	}
	if err := files.AddFile(context.Background(), "b.txt", "second"); err != nil {
		t.Fatalf("add b.txt: %v", err)
	}

	snap := files.Snapshot()
	if tree.FindByPath(snap.Files, "a.txt") == nil || tree.FindByPath(snap.Files, "b.txt") == nil {
		t.Errorf("both files must survive sequential adds, got %+v", snap.Files)
	}

	if _, ok := backend.Get("model-files", "user-1/models/m1/a.txt"); !ok {
		t.Error("a.txt not uploaded")
	}
	if _, ok := backend.Get("model-files", "user-1/models/m1/b.txt"); !ok {
		t.Error("b.txt not uploaded")
	}
}

func TestAddFile_DuplicateOverwrites(t *testing.T) {
	svc, _, client := testSetup(t)
	signIn(t, client)

	files := svc.For("m1")
	if err := files.AddFile(context.Background(), "a.txt", "old"); err != nil {
		t.Fatal(err)
	}
	if err := files.AddFile(context.Background(), "a.txt", "new"); err != nil {
		t.Fatal(err)
	}

	snap := files.Snapshot()
	if len(snap.Files) != 1 {
		t.Fatalf("duplicate add must not duplicate the node, got %d", len(snap.Files))
	}
	if snap.Files[0].Content != "new" {
		t.Errorf("Content = %q, want new", snap.Files[0].Content)
	}
}

func TestAddFile_RequiresSession(t *testing.T) {
	svc, _, _ := testSetup(t)
	if err := svc.For("m1").AddFile(context.Background(), "a.txt", "x"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestUploadAll_ExcludesFailures(t *testing.T) {
	svc, backend, client := testSetup(t)
	signIn(t, client)
	backend.FailPath("user-1/models/m1/bad.bin", 500)

	files := svc.For("m1")
	err := files.UploadAll(context.Background(), []Incoming{
		{Name: "ok.txt", Reader: strings.NewReader("fine")},
		{Name: "bad.bin", Reader: strings.NewReader("doomed")},
	})
	if err != nil {
		t.Fatalf("batch must succeed despite a per-file failure: %v", err)
	}

	snap := files.Snapshot()
	if tree.FindByPath(snap.Files, "ok.txt") == nil {
		t.Error("ok.txt missing from tree")
	}
	if tree.FindByPath(snap.Files, "bad.bin") != nil {
		t.Error("failed upload must not be merged into the tree")
	}
	failures := files.Failures()
	if len(failures) != 1 || failures[0] != "bad.bin" {
		t.Errorf("Failures = %v, want [bad.bin]", failures)
	}
}

func TestUpdateFile_OverwritesRemote(t *testing.T) {
	svc, backend, client := testSetup(t)
	signIn(t, client)
	backend.Put("model-files", "user-1/models/m1/app.py", []byte("old"))

	if err := svc.UpdateFile(context.Background(), "m1", "app.py", "new body"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	stored, ok := backend.Get("model-files", "user-1/models/m1/app.py")
	if !ok || string(stored) != "new body" {
		t.Errorf("stored = %q, ok=%v", stored, ok)
	}
}

func TestUpdateFile_AcceptsFullObjectPath(t *testing.T) {
	svc, backend, client := testSetup(t)
	signIn(t, client)

	if err := svc.UpdateFile(context.Background(), "m1", "user-1/models/m1/app.py", "body"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, ok := backend.Get("model-files", "user-1/models/m1/app.py"); !ok {
		t.Error("object not stored under the model prefix")
	}
}

func TestFor_ReturnsSameFacade(t *testing.T) {
	svc, _, _ := testSetup(t)
	if svc.For("m1") != svc.For("m1") {
		t.Error("For must return the same façade for the same model")
	}
	if svc.For("m1") == svc.For("m2") {
		t.Error("distinct models must get distinct façades")
	}
}
