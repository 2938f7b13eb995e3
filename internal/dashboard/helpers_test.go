package dashboard_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-dashboard/internal/content"
	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

// fakeSource serves generated courses: course "c" with n lessons has learning
// objects "c-lo-1".."c-lo-n", each holding one topic with one practice activity.
type fakeSource struct {
	mu          sync.Mutex
	courses     map[string]int
	courseCalls map[string]int
	detailCalls map[lessontree.NodeID]int
	courseErr   error
	detailErr   error
	started     chan lessontree.NodeID
	release     chan struct{}
}

func newFakeSource(courses map[string]int) *fakeSource {
	return &fakeSource{
		courses:     courses,
		courseCalls: make(map[string]int),
		detailCalls: make(map[lessontree.NodeID]int),
	}
}

func (f *fakeSource) FetchTopLevelLessons(_ context.Context, courseID string) ([]lessontree.LessonSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courseCalls[courseID]++
	if f.courseErr != nil {
		return nil, f.courseErr
	}
	n, ok := f.courses[courseID]
	if !ok {
		return nil, content.ErrNotFound
	}
	out := make([]lessontree.LessonSummary, n)
	for i := range out {
		out[i] = lessontree.LessonSummary{
			ID:   lessontree.NodeID(fmt.Sprintf("%s-lo-%d", courseID, i+1)),
			Name: fmt.Sprintf("Lesson %d", i+1),
			Type: lessontree.TypeLearningObject,
		}
	}
	return out, nil
}

func (f *fakeSource) FetchNodeDetail(ctx context.Context, id lessontree.NodeID, typ lessontree.NodeType) (lessontree.RawNodeDetail, error) {
	f.mu.Lock()
	f.detailCalls[id]++
	err := f.detailErr
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return lessontree.RawNodeDetail{}, ctx.Err()
		}
	}
	if err != nil {
		return lessontree.RawNodeDetail{}, err
	}
	if typ != lessontree.TypeLearningObject {
		return lessontree.RawNodeDetail{ID: id}, nil
	}
	return lessontree.RawNodeDetail{
		ID:   id,
		Type: typ,
		Topics: []lessontree.RawTopic{{
			ID:   id + "-topic",
			Name: "Topic of " + string(id),
			Activities: []lessontree.RawActivity{{
				ID:   id + "-practice",
				Name: "Practice for " + string(id),
				Type: lessontree.TypePracticeQuestions,
			}},
		}},
	}, nil
}

func (f *fakeSource) detailCount(id lessontree.NodeID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

func (f *fakeSource) courseCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.courseCalls[id]
}

func (f *fakeSource) setDetailErr(err error) {
	f.mu.Lock()
	f.detailErr = err
	f.mu.Unlock()
}

func (f *fakeSource) setCourseErr(err error) {
	f.mu.Lock()
	f.courseErr = err
	f.mu.Unlock()
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

var testLoader = lessontree.LoaderConfig{InitialBatchSize: 20, BatchSize: 10}
