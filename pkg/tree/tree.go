// Package tree reconciles flat path/content records into a hierarchical
// file-node view and back.
package tree

import (
	"strings"
	"time"

	"github.com/NaveDanan/HuggingSpace/pkg/models"
)

// Build converts flat file records into a forest of top-level nodes.
//
// For each record the path is split on "/", directory nodes are walked or
// created for every segment but the last, and a file node is inserted (or
// overwritten, last write wins) at the final segment. Sibling order is
// insertion order; nothing is sorted. Build never mutates its input and the
// returned nodes share no state with previous trees.
func Build(files []models.FlatFile) []*models.FileNode {
	var roots []*models.FileNode

	for _, f := range files {
		segments := strings.Split(f.Path, "/")
		siblings := &roots
		prefix := ""

		for _, seg := range segments[:len(segments)-1] {
			if prefix == "" {
				prefix = seg
			} else {
				prefix = prefix + "/" + seg
			}
			dir := findChild(*siblings, seg)
			if dir == nil {
				dir = &models.FileNode{
					Name:  seg,
					Path:  prefix,
					IsDir: true,
				}
				*siblings = append(*siblings, dir)
			}
			siblings = &dir.Children
		}

		name := segments[len(segments)-1]
		node := findChild(*siblings, name)
		if node == nil {
			node = &models.FileNode{Name: name}
			*siblings = append(*siblings, node)
		}
		node.Path = f.Path
		node.IsDir = false
		node.Content = f.Content
		node.Size = int64(len(f.Content))
		node.ModTime = time.Now()
		node.Children = nil
	}

	return roots
}

func findChild(siblings []*models.FileNode, name string) *models.FileNode {
	for _, n := range siblings {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Flatten walks a forest and returns its file nodes as flat records, in
// depth-first sibling order. Directories contribute nothing of their own.
func Flatten(roots []*models.FileNode) []models.FlatFile {
	var out []models.FlatFile
	var walk func(nodes []*models.FileNode)
	walk = func(nodes []*models.FileNode) {
		for _, n := range nodes {
			if n.IsDir {
				walk(n.Children)
				continue
			}
			out = append(out, models.FlatFile{Path: n.Path, Content: n.Content})
		}
	}
	walk(roots)
	return out
}

// FindByPath resolves a path in a forest (recursive).
func FindByPath(roots []*models.FileNode, path string) *models.FileNode {
	for _, n := range roots {
		if n.Path == path {
			return n
		}
		if found := FindByPath(n.Children, path); found != nil {
			return found
		}
	}
	return nil
}

// CountNodes counts all nodes in a forest.
func CountNodes(roots []*models.FileNode) int {
	count := 0
	for _, n := range roots {
		count += 1 + CountNodes(n.Children)
	}
	return count
}
