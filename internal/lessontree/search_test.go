package lessontree_test

import (
	"testing"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

// sampleTree: course root > learning object > topic > activities.
func sampleTree() []lessontree.LessonNode {
	return []lessontree.LessonNode{
		{
			ID: "unit-1", Title: "Unit 1", Type: lessontree.TypeLearningObject, ChildrenLoaded: true,
			Children: []lessontree.LessonNode{
				{
					ID: "lo-1", Title: "Algebra", Type: lessontree.TypeLearningObject, ChildrenLoaded: true,
					Children: []lessontree.LessonNode{
						{
							ID: "topic-1", Title: "Linear equations", Type: lessontree.TypeTopic,
							Activities: []lessontree.LessonNode{
								{ID: "act-1", Title: "Intro video", Type: lessontree.TypeVideo},
								{ID: "act-2", Title: "Drill", Description: "Practice set", Type: lessontree.TypePracticeQuestions},
							},
						},
					},
				},
			},
		},
		{
			ID: "unit-2", Title: "Unit 2", Type: lessontree.TypeLearningObject, ChildrenLoaded: true,
			Children: []lessontree.LessonNode{
				{ID: "lo-2", Title: "Geometry", Type: lessontree.TypeLearningObject},
			},
		},
	}
}

func TestQuery_Matches(t *testing.T) {
	node := lessontree.LessonNode{Title: "Straße Basics", Description: "An INTRO"}

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"  ", true},
		{"intro", true},
		{"STRASSE", true},
		{"basics", true},
		{"missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := lessontree.NewQuery(tt.query).Matches(node); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestIsVisible_PropagatesUpward(t *testing.T) {
	tree := sampleTree()
	q := lessontree.NewQuery("practice")

	if !lessontree.IsVisible(tree[0], q, nil) {
		t.Error("unit-1 should be visible through its matching descendant")
	}
	if lessontree.IsVisible(tree[1], q, nil) {
		t.Error("unit-2 has no matching descendant")
	}
}

func TestIsVisible_UnloadedSubtreeDoesNotMatch(t *testing.T) {
	node := lessontree.LessonNode{ID: "lo-x", Title: "Chemistry", Type: lessontree.TypeLearningObject}

	if lessontree.IsVisible(node, lessontree.NewQuery("titration"), nil) {
		t.Error("unexpanded node should not match on content it has not loaded")
	}
}

func TestFilter_PracticeThreeLevelsDeep(t *testing.T) {
	res := lessontree.Filter(sampleTree(), lessontree.NewQuery("practice"), nil)

	for _, id := range []lessontree.NodeID{"unit-1", "lo-1", "topic-1", "act-2"} {
		if !res.Visible[id] {
			t.Errorf("Visible[%s] = false, want true", id)
		}
	}
	for _, id := range []lessontree.NodeID{"unit-2", "lo-2", "act-1"} {
		if res.Visible[id] {
			t.Errorf("Visible[%s] = true, want false", id)
		}
	}

	want := map[lessontree.NodeID]bool{"unit-1": true, "lo-1": true, "topic-1": true}
	if len(res.Expand) != len(want) {
		t.Fatalf("Expand = %v, want %d ids", res.Expand, len(want))
	}
	for _, id := range res.Expand {
		if !want[id] {
			t.Errorf("unexpected expanded id %s", id)
		}
	}
}

func TestFilter_EmptyQuery(t *testing.T) {
	res := lessontree.Filter(sampleTree(), lessontree.NewQuery(""), nil)

	if len(res.Expand) != 0 {
		t.Errorf("Expand = %v, want none for empty query", res.Expand)
	}
	if !res.Visible["lo-2"] {
		t.Error("every node is visible for an empty query")
	}
}

func TestFilter_CustomChildren(t *testing.T) {
	roots := []lessontree.LessonNode{{ID: "lo-1", Title: "Algebra", Type: lessontree.TypeLearningObject}}
	cached := map[lessontree.NodeID][]lessontree.LessonNode{
		"lo-1": {{ID: "t", Title: "Quadratics", Type: lessontree.TypeTopic}},
	}
	children := func(n lessontree.LessonNode) []lessontree.LessonNode {
		if c, ok := cached[n.ID]; ok {
			return c
		}
		return lessontree.EmbeddedChildren(n)
	}

	got := lessontree.AutoExpand(roots, lessontree.NewQuery("quad"), children)
	if len(got) != 1 || got[0] != "lo-1" {
		t.Errorf("AutoExpand() = %v, want [lo-1]", got)
	}
}
