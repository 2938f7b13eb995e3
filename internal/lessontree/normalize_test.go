package lessontree_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

func decodeTopics(t *testing.T, payload string) []lessontree.RawTopic {
	t.Helper()
	var detail lessontree.RawNodeDetail
	if err := json.Unmarshal([]byte(payload), &detail); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return detail.Topics
}

func TestNormalizeTopics_NestedTopics(t *testing.T) {
	raw := decodeTopics(t, `{"topics":[{"topics":[{"id":1,"name":"T1","activities":[{"id":10,"type":"video","name":"V1"}]}]}]}`)

	got := lessontree.NormalizeTopics(raw)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	topic := got[0]
	if topic.ID != "1" || topic.Type != lessontree.TypeTopic || topic.Title != "T1" {
		t.Errorf("topic = %+v, want id 1, type topic, title T1", topic)
	}
	if len(topic.Activities) != 1 {
		t.Fatalf("len(Activities) = %d, want 1", len(topic.Activities))
	}
	act := topic.Activities[0]
	if act.ID != "10" || act.Type != lessontree.TypeVideo || act.Title != "V1" {
		t.Errorf("activity = %+v, want id 10, type video, title V1", act)
	}
	if act.Metadata["name"] != "V1" {
		t.Errorf("activity Metadata = %v, want raw activity passthrough", act.Metadata)
	}
}

func TestNormalizeTopics_ShapeEquivalence(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"nested", `{"topics":[{"topics":[{"id":"t","name":"Fractions","activities":[{"id":"a","type":"h5p","name":"Drag"}]}]}]}`},
		{"direct", `{"topics":[{"id":"t","name":"Fractions","activities":[{"id":"a","type":"h5p","name":"Drag"}]}]}`},
	}

	var want []lessontree.LessonNode
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lessontree.NormalizeTopics(decodeTopics(t, tt.payload))
			if want == nil {
				want = got
				return
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("NormalizeTopics() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestNormalizeTopics_BareNameMatchesEmptyTopic(t *testing.T) {
	bare := lessontree.NormalizeTopics(decodeTopics(t, `{"topics":[{"id":"t","name":"Intro"}]}`))
	direct := lessontree.NormalizeTopics(decodeTopics(t, `{"topics":[{"id":"t","name":"Intro","activities":[]}]}`))
	nested := lessontree.NormalizeTopics(decodeTopics(t, `{"topics":[{"topics":[{"id":"t","name":"Intro"}]}]}`))

	if !reflect.DeepEqual(bare, direct) {
		t.Errorf("bare = %+v, direct = %+v", bare, direct)
	}
	if !reflect.DeepEqual(bare, nested) {
		t.Errorf("bare = %+v, nested = %+v", bare, nested)
	}
	if len(bare) != 1 || len(bare[0].Activities) != 0 || bare[0].Activities == nil {
		t.Errorf("bare = %+v, want one topic with empty activities", bare)
	}
}

func TestNormalizeTopics_SkipsAndFallbacks(t *testing.T) {
	raw := decodeTopics(t, `{"topics":[
		{"topics":[{"id":"skip"},{"activities":[{"id":"q","type":"practice_questions"}]}]},
		{"description":"nothing to show"},
		{"id":"solo","activities":[]}
	]}`)

	got := lessontree.NormalizeTopics(raw)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Title != "Topic" {
		t.Errorf("got[0].Title = %q, want type fallback Topic", got[0].Title)
	}
	if got[0].Activities[0].Title != "Practice Questions" {
		t.Errorf("activity Title = %q, want Practice Questions", got[0].Activities[0].Title)
	}
	if got[1].ID != "solo" {
		t.Errorf("got[1].ID = %q, want solo", got[1].ID)
	}
}

func TestNormalizeTopics_PreservesOrderAndMissingIDs(t *testing.T) {
	raw := decodeTopics(t, `{"topics":[{"name":"B"},{"id":2,"name":"A"},{"topics":[{"name":"C"}]}]}`)

	got := lessontree.NormalizeTopics(raw)
	titles := []string{}
	for _, n := range got {
		titles = append(titles, n.Title)
	}
	if !reflect.DeepEqual(titles, []string{"B", "A", "C"}) {
		t.Errorf("titles = %v, want [B A C]", titles)
	}
	if got[0].ID.Valid() {
		t.Errorf("got[0].ID = %q, want empty id passed through", got[0].ID)
	}
}

func TestChildrenOf_LeafTypes(t *testing.T) {
	detail := lessontree.RawNodeDetail{Topics: []lessontree.RawTopic{{ID: "x", Name: "X"}}}

	for _, typ := range []lessontree.NodeType{lessontree.TypeVideo, lessontree.TypeExam, lessontree.TypeTopic} {
		got := lessontree.ChildrenOf(typ, detail)
		if got == nil || len(got) != 0 {
			t.Errorf("ChildrenOf(%s) = %v, want empty non-nil", typ, got)
		}
	}
	if got := lessontree.ChildrenOf(lessontree.TypeLearningObject, detail); len(got) != 1 {
		t.Errorf("ChildrenOf(learning_object) len = %d, want 1", len(got))
	}
}

func TestNodeType_Label(t *testing.T) {
	tests := []struct {
		typ  lessontree.NodeType
		want string
	}{
		{lessontree.TypeH5P, "H5P"},
		{lessontree.TypeAssessment, "Assessment"},
		{"reading_list", "Reading List"},
		{"", "Untitled"},
	}
	for _, tt := range tests {
		if got := tt.typ.Label(); got != tt.want {
			t.Errorf("%q.Label() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestNodeType_Valid(t *testing.T) {
	tests := []struct {
		typ  lessontree.NodeType
		want bool
	}{
		{lessontree.TypeVideo, true},
		{lessontree.TypeExam, true},
		{"reading_list", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.typ.Valid(); got != tt.want {
			t.Errorf("%q.Valid() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestNormalizeTopics_UnknownActivityTypeKept(t *testing.T) {
	nodes := lessontree.NormalizeTopics([]lessontree.RawTopic{{
		ID:         "t1",
		Name:       "Reading",
		Activities: []lessontree.RawActivity{{ID: "a1", Type: "reading_list"}},
	}})
	if len(nodes) != 1 || len(nodes[0].Activities) != 1 {
		t.Fatalf("nodes = %+v", nodes)
	}
	a := nodes[0].Activities[0]
	if a.Type != "reading_list" || a.Title != "Reading List" || !a.ChildrenLoaded {
		t.Errorf("activity = %+v", a)
	}
}

func TestLessonSummary_Node(t *testing.T) {
	var s lessontree.LessonSummary
	if err := json.Unmarshal([]byte(`{"id":"lo-1","description":"d","weight":3}`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	n := s.Node()
	if n.Type != lessontree.TypeLearningObject {
		t.Errorf("Type = %q, want learning_object", n.Type)
	}
	if n.Title != "Learning Object" {
		t.Errorf("Title = %q, want type fallback", n.Title)
	}
	if n.Metadata["weight"] != float64(3) {
		t.Errorf("Metadata = %v, want passthrough of unknown fields", n.Metadata)
	}
	if n.ChildrenLoaded || n.Children != nil {
		t.Error("summary node should start with children not fetched")
	}
}
