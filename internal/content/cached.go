package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

const keyPrefix = "lessons:v1:"

// KV is the byte store behind CachedSource.
type KV interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedSource caches successful responses of another Source. Cache failures are
// logged and bypassed; failed fetches are never cached.
type CachedSource struct {
	next Source
	kv   KV
	ttl  time.Duration
}

// NewCachedSource wraps next with a response cache.
func NewCachedSource(next Source, kv KV, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, kv: kv, ttl: ttl}
}

func courseKey(courseID string) string {
	return keyPrefix + "course:" + courseID
}

func nodeKey(id lessontree.NodeID, typ lessontree.NodeType) string {
	return keyPrefix + "node:" + string(typ) + ":" + string(id)
}

func (s *CachedSource) FetchTopLevelLessons(ctx context.Context, courseID string) ([]lessontree.LessonSummary, error) {
	key := courseKey(courseID)
	var list lessonList
	if s.load(ctx, key, &list) {
		return list.Lessons, nil
	}

	lessons, err := s.next.FetchTopLevelLessons(ctx, courseID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, lessonList{Lessons: lessons})
	return lessons, nil
}

func (s *CachedSource) FetchNodeDetail(ctx context.Context, id lessontree.NodeID, typ lessontree.NodeType) (lessontree.RawNodeDetail, error) {
	if !id.Valid() {
		return s.next.FetchNodeDetail(ctx, id, typ)
	}
	key := nodeKey(id, typ)
	var detail lessontree.RawNodeDetail
	if s.load(ctx, key, &detail) {
		return detail, nil
	}

	detail, err := s.next.FetchNodeDetail(ctx, id, typ)
	if err != nil {
		return lessontree.RawNodeDetail{}, err
	}
	s.store(ctx, key, detail)
	return detail, nil
}

// InvalidateCourse drops the cached lesson list of a course.
func (s *CachedSource) InvalidateCourse(ctx context.Context, courseID string) error {
	if err := s.kv.Delete(ctx, courseKey(courseID)); err != nil {
		return fmt.Errorf("invalidate course %s: %w", courseID, err)
	}
	return nil
}

// InvalidateNodes drops the cached details of the given nodes.
func (s *CachedSource) InvalidateNodes(ctx context.Context, nodes []lessontree.LessonNode) error {
	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.ID.Valid() {
			keys = append(keys, nodeKey(n.ID, n.Type))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate nodes: %w", err)
	}
	return nil
}

func (s *CachedSource) load(ctx context.Context, key string, v any) bool {
	data, ok, err := s.kv.GetBytes(ctx, key)
	if err != nil {
		slog.Warn("content cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("discarding corrupt content cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (s *CachedSource) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("content cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.kv.SetBytes(ctx, key, data, s.ttl); err != nil {
		slog.Warn("content cache write failed", "key", key, "error", err)
	}
}
