package lessontree

import (
	"strings"

	"golang.org/x/text/cases"
)

// Query is a case-folded free-text search.
type Query struct {
	raw    string
	folded string
}

// NewQuery compiles s; surrounding whitespace is ignored.
func NewQuery(s string) Query {
	s = strings.TrimSpace(s)
	return Query{raw: s, folded: fold(s)}
}

func (q Query) String() string { return q.raw }

// Empty reports whether the query matches everything.
func (q Query) Empty() bool { return q.folded == "" }

// Matches reports whether the node's own title or description contains the query.
func (q Query) Matches(n LessonNode) bool {
	if q.Empty() {
		return true
	}
	return strings.Contains(fold(n.Title), q.folded) ||
		strings.Contains(fold(n.Description), q.folded)
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// ChildrenFunc returns the children of n that are available without fetching.
type ChildrenFunc func(n LessonNode) []LessonNode

// EmbeddedChildren returns whatever children n already carries: resolved Children
// and embedded Activities.
func EmbeddedChildren(n LessonNode) []LessonNode {
	switch {
	case len(n.Children) == 0:
		return n.Activities
	case len(n.Activities) == 0:
		return n.Children
	}
	out := make([]LessonNode, 0, len(n.Children)+len(n.Activities))
	out = append(out, n.Children...)
	return append(out, n.Activities...)
}

// IsVisible reports whether n matches q directly or has an available descendant
// that does. Unloaded subtrees are not fetched and count as no match.
func IsVisible(n LessonNode, q Query, children ChildrenFunc) bool {
	if q.Matches(n) {
		return true
	}
	if children == nil {
		children = EmbeddedChildren
	}
	for _, c := range children(n) {
		if IsVisible(c, q, children) {
			return true
		}
	}
	return false
}

// FilterResult is the outcome of a search pass over a tree.
type FilterResult struct {
	Visible map[NodeID]bool
	// Expand lists, children before parents, the nodes that must be expanded because a
	// descendant matches.
	Expand []NodeID
}

// Filter walks every available node under roots and records which are visible and
// which must be expanded. Nodes without an id are evaluated but never recorded.
func Filter(roots []LessonNode, q Query, children ChildrenFunc) FilterResult {
	if children == nil {
		children = EmbeddedChildren
	}
	res := FilterResult{Visible: make(map[NodeID]bool)}
	seen := make(map[NodeID]bool)
	var walk func(n LessonNode) bool
	walk = func(n LessonNode) bool {
		descendant := false
		for _, c := range children(n) {
			if walk(c) {
				descendant = true
			}
		}
		visible := descendant || q.Matches(n)
		if n.ID.Valid() {
			if visible {
				res.Visible[n.ID] = true
			}
			if descendant && !q.Empty() && !seen[n.ID] {
				seen[n.ID] = true
				res.Expand = append(res.Expand, n.ID)
			}
		}
		return visible
	}
	for _, r := range roots {
		walk(r)
	}
	return res
}

// AutoExpand returns the ids of nodes that have a matching descendant.
func AutoExpand(roots []LessonNode, q Query, children ChildrenFunc) []NodeID {
	return Filter(roots, q, children).Expand
}
