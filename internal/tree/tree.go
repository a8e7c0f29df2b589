// Package tree builds a navigable hierarchy from a flat list of namespaced
// agent network names.
//
// A name such as "industry/retail/macys" becomes the folder chain
// industry → retail with the network "macys" as a leaf. Names without a
// separator are collected under a synthetic Uncategorized node, which always
// comes after the regular roots.
package tree

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"agentnav/internal/network"
)

const (
	// UncategorizedID is the fixed ID of the bucket holding single-segment names.
	UncategorizedID = "uncategorized"
	// UncategorizedLabel is the bucket's display label.
	UncategorizedLabel = "Uncategorized"
)

// Node is one entry in the tree. ID is the "/"-joined path from the root down
// to and including Label. Children are exclusively owned by their parent.
type Node struct {
	ID       string
	Label    string
	Children []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// IsUncategorized reports whether n is the synthetic Uncategorized bucket.
// A folder whose path happens to be "uncategorized" is not: its label is
// the lowercase path segment.
func (n *Node) IsUncategorized() bool {
	return n.ID == UncategorizedID && n.Label == UncategorizedLabel
}

// Result is the output of Build. It is not mutated after Build returns and
// may be shared freely between readers.
type Result struct {
	// Roots holds the top-level nodes in label order, with the Uncategorized
	// bucket last when present.
	Roots []*Node
	// Index maps the ID of every node that ended an input name to the record
	// that produced it. Folder-only nodes are never indexed.
	Index map[string]network.Record
}

// Build converts records into a sorted tree plus an index of leaf records.
//
// Build never fails: degenerate names (empty, leading, trailing or repeated
// separators) yield whatever shape splitting on "/" produces. When two
// records share a name the later one wins the index entry. Build keeps no
// state between calls and is safe for concurrent use.
func Build(records []network.Record) *Result {
	nodes := make(map[string]*Node)
	index := make(map[string]network.Record, len(records))
	var roots []*Node

	var uncategorized *Node
	var loose map[string]*Node

	for _, rec := range records {
		name := rec.AgentName

		if !strings.Contains(name, network.Separator) {
			if uncategorized == nil {
				uncategorized = &Node{ID: UncategorizedID, Label: UncategorizedLabel}
				loose = make(map[string]*Node)
			}
			if _, ok := loose[name]; !ok {
				n := &Node{ID: name, Label: name}
				loose[name] = n
				uncategorized.Children = append(uncategorized.Children, n)
			}
			index[name] = rec
			continue
		}

		// IDs are prefixes of name, so slicing avoids rebuilding the joined
		// path at every depth.
		var parent *Node
		start := 0
		for {
			end := strings.Index(name[start:], network.Separator)
			last := end < 0
			if last {
				end = len(name)
			} else {
				end += start
			}

			id := name[:end]
			node, ok := nodes[id]
			if !ok {
				node = &Node{ID: id, Label: name[start:end]}
				nodes[id] = node
				if parent == nil {
					roots = append(roots, node)
				} else {
					parent.Children = append(parent.Children, node)
				}
			}

			if last {
				index[id] = rec
				break
			}
			parent = node
			start = end + len(network.Separator)
		}
	}

	less := labelOrder()
	slices.SortFunc(roots, less)
	if uncategorized != nil {
		roots = append(roots, uncategorized)
	}
	sortChildren(roots, less)

	return &Result{Roots: roots, Index: index}
}

// labelOrder returns a comparison of node labels using English collation,
// falling back to byte order so that distinct labels never compare equal.
// The collator is not safe for concurrent use, so each Build gets its own.
func labelOrder() func(a, b *Node) int {
	c := collate.New(language.English)
	return func(a, b *Node) int {
		if r := c.CompareString(a.Label, b.Label); r != 0 {
			return r
		}
		return strings.Compare(a.Label, b.Label)
	}
}

// sortChildren sorts the children of every node reachable from roots.
// Traversal is breadth-first over an explicit queue; deep paths must not
// grow the call stack.
func sortChildren(roots []*Node, less func(a, b *Node) int) {
	queue := slices.Clone(roots)
	for i := 0; i < len(queue); i++ {
		n := queue[i]
		queue[i] = nil
		if len(n.Children) == 0 {
			continue
		}
		slices.SortFunc(n.Children, less)
		queue = append(queue, n.Children...)
	}
}

// Lookup returns the record indexed under id.
func (r *Result) Lookup(id string) (network.Record, bool) {
	rec, ok := r.Index[id]
	return rec, ok
}

// Walk visits every node breadth-first, roots first, passing the node's depth
// (0 for roots). Returning false from fn stops the walk.
func (r *Result) Walk(fn func(n *Node, depth int) bool) {
	type item struct {
		node  *Node
		depth int
	}
	queue := make([]item, 0, len(r.Roots))
	for _, n := range r.Roots {
		queue = append(queue, item{n, 0})
	}
	for i := 0; i < len(queue); i++ {
		it := queue[i]
		if !fn(it.node, it.depth) {
			return
		}
		for _, c := range it.node.Children {
			queue = append(queue, item{c, it.depth + 1})
		}
	}
}

// Find returns the first node, in breadth-first order, whose ID is id.
//
// A single-segment name that is also the first segment of a longer name
// yields two nodes with the same ID: the folder among the roots and the
// network under Uncategorized. Find returns the folder; use Lookup for the
// record.
func (r *Result) Find(id string) (*Node, bool) {
	var found *Node
	r.Walk(func(n *Node, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// Parents maps every non-root node to its parent.
func (r *Result) Parents() map[*Node]*Node {
	parents := make(map[*Node]*Node)
	r.Walk(func(n *Node, _ int) bool {
		for _, c := range n.Children {
			parents[c] = n
		}
		return true
	})
	return parents
}

// Len returns the number of nodes in the tree, including folders and the
// Uncategorized bucket.
func (r *Result) Len() int {
	count := 0
	r.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}
