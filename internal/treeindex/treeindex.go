// Package treeindex loads and serves the published structural skeletons:
// the canon-wide super-tree plus one tree per text collection. Trees are
// loaded eagerly, validated once, and never mutated afterwards, so an Index
// is safe for concurrent readers.
package treeindex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TreeNode is one position in a published skeleton. Child order is document
// order.
type TreeNode struct {
	ID       string
	Children []*TreeNode
	// Container marks a root label from the object skeleton form. Container
	// nodes are lookupable (root titles resolve against them) but do not
	// count toward nesting depth: their children sit at depth zero.
	Container bool
}

// UnknownNodeError reports an identifier absent from both the super-tree and
// the requested collection tree. It signals a structural inconsistency between
// the content source and the skeleton and must abort the affected volume.
type UnknownNodeError struct {
	Collection string
	NodeID     string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("node %q not found in tree for collection %q or in super-tree", e.NodeID, e.Collection)
}

// MalformedTreeError reports a skeleton that is not a valid forest (duplicate
// ids, empty ids, unparseable nesting). Raised at load time, before any
// assembly starts.
type MalformedTreeError struct {
	Collection string // empty for the super-tree
	Reason     string
}

func (e *MalformedTreeError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("malformed super-tree: %s", e.Reason)
	}
	return fmt.Sprintf("malformed tree for collection %q: %s", e.Collection, e.Reason)
}

// forest is one validated skeleton with a flat id lookup and the ancestor
// path (root..self, by id) for every node.
type forest struct {
	roots []*TreeNode
	byID  map[string]*TreeNode
	paths map[string][]*TreeNode
}

// Index holds the super-tree plus per-collection trees for one run.
type Index struct {
	super       *forest
	collections map[string]*forest
}

// New builds an Index from the raw super-tree document and one raw document
// per collection. All trees are parsed and validated up front.
func New(superDoc []byte, collectionDocs map[string][]byte) (*Index, error) {
	super, err := parseForest("", superDoc)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		super:       super,
		collections: make(map[string]*forest, len(collectionDocs)),
	}
	for id, doc := range collectionDocs {
		f, err := parseForest(id, doc)
		if err != nil {
			return nil, err
		}
		idx.collections[id] = f
	}
	return idx, nil
}

// Lookup resolves an id against the collection tree first, then the
// super-tree. Absence from both is an UnknownNodeError, never a silent skip.
func (x *Index) Lookup(collection, id string) (*TreeNode, error) {
	if f, ok := x.collections[collection]; ok {
		if n, ok := f.byID[id]; ok {
			return n, nil
		}
	}
	if n, ok := x.super.byID[id]; ok {
		return n, nil
	}
	return nil, &UnknownNodeError{Collection: collection, NodeID: id}
}

// Path returns the ancestor chain from a tree root down to id, inclusive,
// resolved with the same collection-then-super precedence as Lookup.
func (x *Index) Path(collection, id string) ([]*TreeNode, error) {
	if f, ok := x.collections[collection]; ok {
		if p, ok := f.paths[id]; ok {
			return p, nil
		}
	}
	if p, ok := x.super.paths[id]; ok {
		return p, nil
	}
	return nil, &UnknownNodeError{Collection: collection, NodeID: id}
}

// Roots returns the root nodes of a collection tree in document order.
func (x *Index) Roots(collection string) []*TreeNode {
	if f, ok := x.collections[collection]; ok {
		return f.roots
	}
	return nil
}

// jsonNode is the wire shape of one skeleton node.
type jsonNode struct {
	ID       string     `json:"id"`
	Children []jsonNode `json:"children"`

	container bool
}

// parseForest accepts either an array of nodes or an object keyed by root id
// with {"children": [...]} values. The object form is decoded token by token
// because root order is document order and must survive parsing.
func parseForest(collection string, doc []byte) (*forest, error) {
	roots, err := parseRoots(doc)
	if err != nil {
		return nil, &MalformedTreeError{Collection: collection, Reason: err.Error()}
	}
	f := &forest{
		byID:  make(map[string]*TreeNode),
		paths: make(map[string][]*TreeNode),
	}
	for _, r := range roots {
		node, err := f.build(r, nil)
		if err != nil {
			return nil, &MalformedTreeError{Collection: collection, Reason: err.Error()}
		}
		f.roots = append(f.roots, node)
	}
	return f, nil
}

func parseRoots(doc []byte) ([]jsonNode, error) {
	// Try the array form first.
	var arr []jsonNode
	if err := json.Unmarshal(doc, &arr); err == nil {
		return arr, nil
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode skeleton: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("skeleton must be an object or array, got %v", tok)
	}

	var roots []jsonNode
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode skeleton key: %w", err)
		}
		key := keyTok.(string)
		var body struct {
			Children []jsonNode `json:"children"`
		}
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("decode skeleton node %q: %w", key, err)
		}
		roots = append(roots, jsonNode{ID: key, Children: body.Children, container: true})
	}
	return roots, nil
}

// build converts a jsonNode subtree into TreeNodes, recording id lookups and
// ancestor paths, and rejecting empty or duplicate ids.
func (f *forest) build(jn jsonNode, ancestors []*TreeNode) (*TreeNode, error) {
	if jn.ID == "" {
		return nil, fmt.Errorf("node with empty id under %s", pathString(ancestors))
	}
	if _, exists := f.byID[jn.ID]; exists {
		return nil, fmt.Errorf("duplicate node id %q", jn.ID)
	}

	node := &TreeNode{ID: jn.ID, Container: jn.container}
	f.byID[jn.ID] = node

	path := make([]*TreeNode, len(ancestors), len(ancestors)+1)
	copy(path, ancestors)
	path = append(path, node)
	f.paths[jn.ID] = path

	for _, c := range jn.Children {
		child, err := f.build(c, path)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func pathString(ancestors []*TreeNode) string {
	if len(ancestors) == 0 {
		return "root"
	}
	return ancestors[len(ancestors)-1].ID
}
