package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

type memoryKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("cache down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// countingSource records calls and returns canned content.
type countingSource struct {
	mu          sync.Mutex
	lessonCalls int
	detailCalls int
	err         error
}

func (s *countingSource) FetchTopLevelLessons(_ context.Context, courseID string) ([]lessontree.LessonSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessonCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []lessontree.LessonSummary{{ID: "lo-1", Name: "Lesson for " + courseID}}, nil
}

func (s *countingSource) FetchNodeDetail(_ context.Context, id lessontree.NodeID, typ lessontree.NodeType) (lessontree.RawNodeDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls++
	if s.err != nil {
		return lessontree.RawNodeDetail{}, s.err
	}
	return lessontree.RawNodeDetail{
		ID: id,
		Topics: []lessontree.RawTopic{
			{Name: "Group", Topics: []lessontree.RawTopic{{ID: "t1", Name: "T1", Activities: []lessontree.RawActivity{
				{ID: "a1", Type: lessontree.TypeVideo, Raw: map[string]any{"id": "a1", "type": "video", "duration": float64(90)}},
			}}}},
		},
	}, nil
}

func TestCachedSource_CachesDetails(t *testing.T) {
	next := &countingSource{}
	src := NewCachedSource(next, newMemoryKV(), time.Minute)

	first, err := src.FetchNodeDetail(context.Background(), "lo-1", lessontree.TypeLearningObject)
	if err != nil {
		t.Fatalf("FetchNodeDetail() error = %v", err)
	}
	second, err := src.FetchNodeDetail(context.Background(), "lo-1", lessontree.TypeLearningObject)
	if err != nil {
		t.Fatalf("FetchNodeDetail() error = %v", err)
	}
	if next.detailCalls != 1 {
		t.Errorf("detailCalls = %d, want 1", next.detailCalls)
	}

	// The cached copy must normalize exactly like the fresh one.
	a := lessontree.NormalizeTopics(first.Topics)
	b := lessontree.NormalizeTopics(second.Topics)
	if len(b) != 1 || b[0].Title != a[0].Title {
		t.Fatalf("cached normalize = %+v, want %+v", b, a)
	}
	if b[0].Activities[0].Metadata["duration"] != float64(90) {
		t.Errorf("activity metadata lost through cache: %v", b[0].Activities[0].Metadata)
	}
}

func TestCachedSource_CachesLessonsAndInvalidates(t *testing.T) {
	next := &countingSource{}
	src := NewCachedSource(next, newMemoryKV(), time.Minute)
	ctx := context.Background()

	for range 2 {
		if _, err := src.FetchTopLevelLessons(ctx, "c1"); err != nil {
			t.Fatalf("FetchTopLevelLessons() error = %v", err)
		}
	}
	if next.lessonCalls != 1 {
		t.Errorf("lessonCalls = %d, want 1", next.lessonCalls)
	}

	if err := src.InvalidateCourse(ctx, "c1"); err != nil {
		t.Fatalf("InvalidateCourse() error = %v", err)
	}
	if _, err := src.FetchTopLevelLessons(ctx, "c1"); err != nil {
		t.Fatalf("FetchTopLevelLessons() error = %v", err)
	}
	if next.lessonCalls != 2 {
		t.Errorf("lessonCalls = %d, want 2 after invalidation", next.lessonCalls)
	}
}

func TestCachedSource_FailuresNotCached(t *testing.T) {
	next := &countingSource{err: errors.New("upstream down")}
	kv := newMemoryKV()
	src := NewCachedSource(next, kv, time.Minute)

	if _, err := src.FetchNodeDetail(context.Background(), "lo-1", lessontree.TypeLearningObject); err == nil {
		t.Fatal("expected upstream error")
	}
	if len(kv.data) != 0 {
		t.Errorf("cache entries = %d, want 0", len(kv.data))
	}
}

func TestCachedSource_BypassesBrokenCache(t *testing.T) {
	next := &countingSource{}
	kv := newMemoryKV()
	kv.failGet = true
	src := NewCachedSource(next, kv, time.Minute)

	if _, err := src.FetchTopLevelLessons(context.Background(), "c1"); err != nil {
		t.Fatalf("FetchTopLevelLessons() error = %v, want cache failure ignored", err)
	}
}
