// Package content talks to the remote content/LMS service that owns courses,
// learning objects, topics and activities.
package content

import (
	"context"
	"errors"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

// ErrNotFound is returned when a course or node does not exist.
var ErrNotFound = errors.New("content: not found")

// Source fetches course content. Implementations must be safe for concurrent use.
type Source interface {
	// FetchTopLevelLessons returns a course's lesson list in display order.
	FetchTopLevelLessons(ctx context.Context, courseID string) ([]lessontree.LessonSummary, error)
	// FetchNodeDetail returns the raw detail payload of one node.
	FetchNodeDetail(ctx context.Context, id lessontree.NodeID, typ lessontree.NodeType) (lessontree.RawNodeDetail, error)
}

// lessonList is the envelope of the lesson list endpoint.
type lessonList struct {
	Lessons []lessontree.LessonSummary `json:"lessons"`
}
