package lessontree

import "log/slog"

// NormalizeTopics converts the raw topics of a learning object into a flat, ordered
// sequence of topic nodes whose Activities are leaf nodes. It is the only place that
// inspects which raw shape an element uses.
//
// Elements without an id are passed through with an empty ID; callers must not use
// such nodes as cache keys.
func NormalizeTopics(raw []RawTopic) []LessonNode {
	out := make([]LessonNode, 0, len(raw))
	for _, el := range raw {
		switch {
		case el.Topics != nil:
			for _, nested := range el.Topics {
				if nested.Name == "" && len(nested.Activities) == 0 {
					continue
				}
				out = append(out, topicNode(nested))
			}
		case el.Activities != nil:
			out = append(out, topicNode(el))
		case el.Name != "":
			out = append(out, topicNode(el))
		}
	}
	return out
}

// ChildrenOf normalizes a node detail payload into the children of a node of type typ.
// Only learning objects have resolvable children; every other type is a leaf.
func ChildrenOf(typ NodeType, detail RawNodeDetail) []LessonNode {
	if typ != TypeLearningObject {
		return []LessonNode{}
	}
	return NormalizeTopics(detail.Topics)
}

func topicNode(t RawTopic) LessonNode {
	title := t.Name
	if title == "" {
		title = TypeTopic.Label()
	}
	return LessonNode{
		ID:          t.ID,
		Title:       title,
		Description: t.Description,
		Type:        TypeTopic,
		Activities:  activityNodes(t.Activities),
	}
}

func activityNodes(raw []RawActivity) []LessonNode {
	nodes := make([]LessonNode, 0, len(raw))
	for _, a := range raw {
		if !a.Type.Valid() {
			slog.Warn("unknown activity type", "activity_id", a.ID, "type", a.Type)
		}
		title := a.Name
		if title == "" {
			title = a.Type.Label()
		}
		nodes = append(nodes, LessonNode{
			ID:             a.ID,
			Title:          title,
			Description:    a.Description,
			Type:           a.Type,
			Children:       []LessonNode{},
			ChildrenLoaded: true,
			Metadata:       a.Raw,
		})
	}
	return nodes
}
