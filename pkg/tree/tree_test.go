package tree

import (
	"testing"

	"github.com/NaveDanan/HuggingSpace/pkg/models"
)

func TestBuild_NestedDirectories(t *testing.T) {
	roots := Build([]models.FlatFile{
		{Path: "a/b.txt", Content: "x"},
		{Path: "a/c.txt", Content: "y"},
	})

	if len(roots) != 1 {
		t.Fatalf("expected 1 top-level node, got %d", len(roots))
	}
	dir := roots[0]
	if dir.Name != "a" || !dir.IsDir || dir.Path != "a" {
		t.Fatalf("unexpected directory node: %+v", dir)
	}
	if dir.Content != "" {
		t.Error("directory must not carry content")
	}
	if len(dir.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(dir.Children))
	}

	b, c := dir.Children[0], dir.Children[1]
	if b.Name != "b.txt" || b.Path != "a/b.txt" || b.IsDir || b.Size != 1 {
		t.Errorf("unexpected file node b: %+v", b)
	}
	if c.Name != "c.txt" || c.Path != "a/c.txt" || c.IsDir || c.Size != 1 {
		t.Errorf("unexpected file node c: %+v", c)
	}
}

func TestBuild_Empty(t *testing.T) {
	if roots := Build(nil); len(roots) != 0 {
		t.Errorf("expected empty forest, got %d nodes", len(roots))
	}
}

func TestBuild_InsertionOrder(t *testing.T) {
	roots := Build([]models.FlatFile{
		{Path: "zzz.txt", Content: "1"},
		{Path: "aaa.txt", Content: "2"},
		{Path: "dir/x.txt", Content: "3"},
	})

	want := []string{"zzz.txt", "aaa.txt", "dir"}
	if len(roots) != len(want) {
		t.Fatalf("expected %d top-level nodes, got %d", len(want), len(roots))
	}
	for i, name := range want {
		if roots[i].Name != name {
			t.Errorf("roots[%d].Name = %q, want %q (sibling order is insertion order)", i, roots[i].Name, name)
		}
	}
}

func TestBuild_LastWriteWins(t *testing.T) {
	roots := Build([]models.FlatFile{
		{Path: "readme.md", Content: "old"},
		{Path: "readme.md", Content: "new content"},
	})

	if len(roots) != 1 {
		t.Fatalf("duplicate path must not produce duplicate nodes, got %d", len(roots))
	}
	if roots[0].Content != "new content" {
		t.Errorf("Content = %q, want last write", roots[0].Content)
	}
	if roots[0].Size != int64(len("new content")) {
		t.Errorf("Size = %d, want %d", roots[0].Size, len("new content"))
	}
}

func TestBuild_FileAndDirectoryMix(t *testing.T) {
	roots := Build([]models.FlatFile{
		{Path: "config.json", Content: "{}"},
		{Path: "src/main.py", Content: "pass"},
		{Path: "src/lib/util.py", Content: ""},
	})

	if got := CountNodes(roots); got != 5 {
		t.Errorf("CountNodes = %d, want 5", got)
	}

	util := FindByPath(roots, "src/lib/util.py")
	if util == nil {
		t.Fatal("src/lib/util.py not found")
	}
	if util.IsDir || util.Size != 0 {
		t.Errorf("empty file node: %+v", util)
	}
	if lib := FindByPath(roots, "src/lib"); lib == nil || !lib.IsDir {
		t.Error("intermediate directory src/lib missing")
	}
}

func TestFlatten_RoundTrip(t *testing.T) {
	in := []models.FlatFile{
		{Path: "a/b.txt", Content: "x"},
		{Path: "a/c/d.txt", Content: "y"},
		{Path: "top.txt", Content: "z"},
	}
	flat := Flatten(Build(in))

	if len(flat) != len(in) {
		t.Fatalf("Flatten returned %d records, want %d", len(flat), len(in))
	}
	byPath := make(map[string]string)
	for _, f := range flat {
		byPath[f.Path] = f.Content
	}
	for _, f := range in {
		if byPath[f.Path] != f.Content {
			t.Errorf("path %s: content %q, want %q", f.Path, byPath[f.Path], f.Content)
		}
	}
}

func TestFindByPath_Missing(t *testing.T) {
	roots := Build([]models.FlatFile{{Path: "a/b.txt", Content: "x"}})
	if FindByPath(roots, "a/missing.txt") != nil {
		t.Error("expected nil for missing path")
	}
	if FindByPath(nil, "a") != nil {
		t.Error("expected nil for empty forest")
	}
}
