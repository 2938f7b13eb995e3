// Package lessontree holds the canonical lesson tree used by the course dashboard:
// normalization of raw content payloads, lazy child resolution, batched reveal of
// top-level lessons, and search visibility.
package lessontree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NodeType is the content kind of a lesson node.
type NodeType string

const (
	TypeLearningObject    NodeType = "learning_object"
	TypeTopic             NodeType = "topic"
	TypeVideo             NodeType = "video"
	TypePracticeQuestions NodeType = "practice_questions"
	TypeH5P               NodeType = "h5p"
	TypeAssessment        NodeType = "assessment"
	TypeExam              NodeType = "exam"
)

var typeLabels = map[NodeType]string{
	TypeLearningObject:    "Learning Object",
	TypeTopic:             "Topic",
	TypeVideo:             "Video",
	TypePracticeQuestions: "Practice Questions",
	TypeH5P:               "H5P",
	TypeAssessment:        "Assessment",
	TypeExam:              "Exam",
}

// Valid reports whether t is one of the known content kinds.
func (t NodeType) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Label returns a human-readable name for the type, used when a node has no title.
func (t NodeType) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	if t == "" {
		return "Untitled"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

// NodeID is an opaque node identifier. The content API sends ids either as
// JSON numbers or strings; both decode to the same NodeID.
type NodeID string

// UnmarshalJSON accepts a string, a number or null.
func (id *NodeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("node id must be a string or number: %w", err)
	}
	*id = NodeID(n.String())
	return nil
}

// Valid reports whether the id can be used as a cache key.
func (id NodeID) Valid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// LessonNode is the canonical, shape-independent tree node rendered by the dashboard.
//
// Children is nil until fetched; an empty non-nil slice means "fetched, no children".
// ChildrenLoaded separates the two cases once a node is copied into a view.
type LessonNode struct {
	ID             NodeID         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Type           NodeType       `json:"type"`
	Activities     []LessonNode   `json:"activities,omitempty"`
	Children       []LessonNode   `json:"children,omitempty"`
	ChildrenLoaded bool           `json:"children_loaded"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Expandable reports whether the node may have children to resolve.
func (n LessonNode) Expandable() bool {
	return n.Type == TypeLearningObject || n.Type == TypeTopic
}

// HasEmbeddedChildren reports whether the node already carries its children
// (a normalized topic carries its activities).
func (n LessonNode) HasEmbeddedChildren() bool {
	return n.Type == TypeTopic && n.Activities != nil
}

// LessonSummary is one entry of a course's top-level lesson list.
type LessonSummary struct {
	ID          NodeID         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Type        NodeType       `json:"type,omitempty"`
	Metadata    map[string]any `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the full object as Metadata.
func (s *LessonSummary) UnmarshalJSON(data []byte) error {
	type plain LessonSummary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = LessonSummary(p)
	s.Metadata = raw
	return nil
}

// MarshalJSON writes the original object when one was decoded.
func (s LessonSummary) MarshalJSON() ([]byte, error) {
	if s.Metadata != nil {
		return json.Marshal(s.Metadata)
	}
	type plain LessonSummary
	return json.Marshal(plain(s))
}

// Node converts the summary into a canonical top-level node. Summaries without a
// type are learning objects, the only container the lesson list returns.
func (s LessonSummary) Node() LessonNode {
	typ := s.Type
	if typ == "" {
		typ = TypeLearningObject
	}
	title := firstNonEmpty(s.Title, s.Name)
	if title == "" {
		title = typ.Label()
	}
	return LessonNode{
		ID:          s.ID,
		Title:       title,
		Description: s.Description,
		Type:        typ,
		Metadata:    s.Metadata,
	}
}

// NodesFromSummaries converts a lesson list, preserving order.
func NodesFromSummaries(summaries []LessonSummary) []LessonNode {
	nodes := make([]LessonNode, len(summaries))
	for i, s := range summaries {
		nodes[i] = s.Node()
	}
	return nodes
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
