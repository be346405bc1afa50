// Package vfs implements the per-user virtual filesystem (component G):
// an on-disk tree rooted at <base>/user_<ID>/ plus an in-memory FileTree
// index persisted as an opaque blob in the backend store.
package vfs

import (
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// NodeType tags a Node as a file or a folder.
type NodeType string

const (
	TypeFile   NodeType = "file"
	TypeFolder NodeType = "folder"
)

// Node is one entry in a FileTree. Children preserves insertion order —
// clients render it directly, so it is never sorted.
type Node struct {
	Type     NodeType `cbor:"type"`
	Name     string   `cbor:"name"`
	Children []*Node  `cbor:"children,omitempty"`
}

// FileTree is the tagged tree describing one user's visible filesystem.
type FileTree struct {
	Root []*Node `cbor:"root"`
}

// New returns an empty FileTree.
func New() *FileTree {
	return &FileTree{Root: []*Node{}}
}

// Marshal encodes the tree as the opaque CBOR blob persisted in the
// backend store, keyed by user id.
func (t *FileTree) Marshal() ([]byte, error) {
	return cbor.Marshal(t)
}

// Unmarshal decodes a FileTree from a blob previously produced by
// Marshal. An empty blob decodes to an empty tree (a brand-new user has
// no stored blob yet).
func Unmarshal(blob []byte) (*FileTree, error) {
	if len(blob) == 0 {
		return New(), nil
	}
	var t FileTree
	if err := cbor.Unmarshal(blob, &t); err != nil {
		return nil, err
	}
	if t.Root == nil {
		t.Root = []*Node{}
	}
	return &t, nil
}

// splitPath validates and splits a client-supplied path into components.
// Paths are rejected if they contain "..", a leading "/", or any empty
// component.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	if strings.HasPrefix(path, "/") {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" || p == ".." || p == "." {
			return nil, ErrInvalidPath
		}
	}
	return parts, nil
}

// find walks children case-sensitively matching name, requiring
// type==folder at every intermediate step. It
// returns the slice holding the matched node's siblings, the matched
// node, and its index within that slice.
func find(children []*Node, parts []string) (siblings []*Node, node *Node, idx int, err error) {
	siblings = children
	idx = -1
	for i, part := range parts {
		idx = -1
		for j, n := range siblings {
			if n.Name == part {
				idx = j
				node = n
				break
			}
		}
		if idx == -1 {
			return nil, nil, -1, ErrNotFound
		}
		isLast := i == len(parts)-1
		if !isLast {
			if node.Type != TypeFolder {
				return nil, nil, -1, ErrNotFolder
			}
			siblings = node.Children
		}
	}
	return siblings, node, idx, nil
}

// Find traverses the tree for path and returns the matching node.
func (t *FileTree) Find(path string) (*Node, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	_, node, _, err := find(t.Root, parts)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// parentChildren resolves the Children slice of path's parent directory,
// along with the leaf name. Returns ErrParentMissing if any intermediate
// component is absent, and ErrNotFolder if an intermediate component is
// a file.
func (t *FileTree) parentChildren(path string) (parent *Node, children *[]*Node, leaf string, err error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, nil, "", err
	}
	leaf = parts[len(parts)-1]
	dirParts := parts[:len(parts)-1]

	if len(dirParts) == 0 {
		return nil, &t.Root, leaf, nil
	}

	_, node, _, ferr := find(t.Root, dirParts)
	if ferr != nil {
		if ferr == ErrNotFound {
			return nil, nil, "", ErrParentMissing
		}
		return nil, nil, "", ferr
	}
	if node.Type != TypeFolder {
		return nil, nil, "", ErrNotFolder
	}
	return node, &node.Children, leaf, nil
}

// CreateFile appends a {type:file,name:leaf} node under path's parent.
// The parent must already exist; the leaf must not.
func (t *FileTree) CreateFile(path string) error {
	_, children, leaf, err := t.parentChildren(path)
	if err != nil {
		return err
	}
	for _, n := range *children {
		if n.Name == leaf {
			return ErrAlreadyExists
		}
	}
	*children = append(*children, &Node{Type: TypeFile, Name: leaf})
	return nil
}

// CreateDir appends a {type:folder,name:leaf,children:[]} node under
// path's parent.
func (t *FileTree) CreateDir(path string) error {
	_, children, leaf, err := t.parentChildren(path)
	if err != nil {
		return err
	}
	for _, n := range *children {
		if n.Name == leaf {
			return ErrAlreadyExists
		}
	}
	*children = append(*children, &Node{Type: TypeFolder, Name: leaf, Children: []*Node{}})
	return nil
}

// DeleteFile removes the leaf node from its parent's Children. Works for
// both file and (empty or not) folder nodes; disk-side removal is the
// caller's responsibility (see fs.go).
func (t *FileTree) DeleteFile(path string) error {
	_, children, leaf, err := t.parentChildren(path)
	if err != nil {
		return err
	}
	for i, n := range *children {
		if n.Name == leaf {
			*children = append((*children)[:i], (*children)[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
