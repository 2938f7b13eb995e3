// Package dashboard serves course-view sessions to the browser dashboard: each
// session owns the lesson reveal window, the child cache and the search state of
// one open course view.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-dashboard/internal/analytics"
	"github.com/p-n-ai/pai-dashboard/internal/content"
	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
	"github.com/p-n-ai/pai-dashboard/internal/notify"
)

const subscriberBuffer = 32

var (
	// ErrUnknownNode is returned when a node id is not part of the loaded tree.
	ErrUnknownNode = errors.New("dashboard: node is not in the loaded tree")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("dashboard: session closed")
	// ErrNoCourse is returned when a session has no course open.
	ErrNoCourse = errors.New("dashboard: no course open")
)

// Invalidator drops cached upstream content on an explicit refresh.
type Invalidator interface {
	InvalidateCourse(ctx context.Context, courseID string) error
	InvalidateNodes(ctx context.Context, nodes []lessontree.LessonNode) error
}

// Deps holds the collaborators shared by all sessions.
type Deps struct {
	Source           content.Source
	Invalidator      Invalidator // optional
	Notifier         notify.Notifier
	Events           analytics.EventLogger
	Loader           lessontree.LoaderConfig
	AutoLoadInterval time.Duration // zero disables timer-driven loading
	ScrollThreshold  int
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.NewGateway()
	}
	if d.Events == nil {
		d.Events = analytics.NopEventLogger{}
	}
	if d.ScrollThreshold <= 0 {
		d.ScrollThreshold = 200
	}
	return d
}

// StreamEvent is pushed to a session's subscribers.
type StreamEvent struct {
	Type         string                  `json:"type"`
	CourseID     string                  `json:"course_id,omitempty"`
	NodeID       string                  `json:"node_id,omitempty"`
	Lessons      []lessontree.LessonNode `json:"lessons,omitempty"`
	Children     []lessontree.LessonNode `json:"children,omitempty"`
	HasMore      bool                    `json:"has_more"`
	Notification *notify.Notification    `json:"notification,omitempty"`
}

// Snapshot is the renderable state of a session.
type Snapshot struct {
	SessionID string                  `json:"session_id"`
	CourseID  string                  `json:"course_id"`
	Lessons   []lessontree.LessonNode `json:"lessons"`
	Loaded    int                     `json:"loaded"`
	Total     int                     `json:"total"`
	HasMore   bool                    `json:"has_more"`
	Loading   bool                    `json:"loading"`
	Query     string                  `json:"query"`
	Expanded  []lessontree.NodeID     `json:"expanded"`
	Visible   []lessontree.NodeID     `json:"visible,omitempty"`
}

// SearchResult is the outcome of OnSearch.
type SearchResult struct {
	Query    string              `json:"query"`
	Visible  []lessontree.NodeID `json:"visible"`
	Expanded []lessontree.NodeID `json:"expanded"`
	// Pending lists expanded nodes whose children are being resolved again.
	Pending  []lessontree.NodeID `json:"pending,omitempty"`
}

// Session is one course view.
type Session struct {
	id       string
	deps     Deps
	loader   *lessontree.BatchLoader
	resolver *lessontree.Resolver

	mu          sync.Mutex
	courseID    string
	ctx         context.Context
	cancel      context.CancelFunc
	generation  uint64
	expanded    map[lessontree.NodeID]bool
	resolved    map[lessontree.NodeID]lessontree.NodeType
	query       lessontree.Query
	subscribers map[chan StreamEvent]struct{}
	lastActive  time.Time
	closed      bool
}

// NewSession creates a session with no course open.
func NewSession(id string, deps Deps) *Session {
	deps = deps.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		deps:        deps,
		loader:      lessontree.NewBatchLoader(deps.Loader),
		resolver:    lessontree.NewResolver(deps.Source),
		ctx:         ctx,
		cancel:      cancel,
		expanded:    make(map[lessontree.NodeID]bool),
		resolved:    make(map[lessontree.NodeID]lessontree.NodeType),
		subscribers: make(map[chan StreamEvent]struct{}),
		lastActive:  time.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CourseID returns the open course, if any.
func (s *Session) CourseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.courseID
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = time.Now()
	return nil
}

// Open fetches the lesson list of courseID and makes it the session's course.
// Any previous course's state is discarded only once the new list has arrived,
// so a failed fetch leaves the current view intact.
func (s *Session) Open(ctx context.Context, courseID string) error {
	if err := s.touch(); err != nil {
		return err
	}
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	summaries, err := s.deps.Source.FetchTopLevelLessons(ctx, courseID)
	if err != nil {
		s.failed(courseID, "", fmt.Sprintf("Could not load lessons for course %s", courseID), err)
		return fmt.Errorf("open course %s: %w", courseID, err)
	}
	nodes := lessontree.NodesFromSummaries(summaries)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if gen != s.generation {
		s.mu.Unlock()
		return lessontree.ErrStaleResult
	}
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	courseCtx := s.ctx
	s.courseID = courseID
	s.expanded = make(map[lessontree.NodeID]bool)
	s.resolved = make(map[lessontree.NodeID]lessontree.NodeType)
	s.query = lessontree.NewQuery("")
	s.resolver.Reset()
	s.loader.Initialize(nodes)
	s.mu.Unlock()

	slog.Info("course opened", "session_id", s.id, "course_id", courseID, "lessons", len(nodes))
	s.logEvent(analytics.Event{
		CourseID:  courseID,
		EventType: analytics.EventSessionOpened,
		Data:      map[string]any{"lessons": len(nodes)},
	})
	s.publish(StreamEvent{
		Type:     "course_opened",
		CourseID: courseID,
		Lessons:  s.loader.Visible(),
		HasMore:  s.loader.HasMore(),
	})

	if s.deps.AutoLoadInterval > 0 {
		go s.autoLoad(courseCtx, s.deps.AutoLoadInterval)
	}
	return nil
}

// Refresh drops every cached child and reloads the current course.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.touch(); err != nil {
		return err
	}
	s.mu.Lock()
	courseID := s.courseID
	resolved := make([]lessontree.LessonNode, 0, len(s.resolved))
	for id, typ := range s.resolved {
		resolved = append(resolved, lessontree.LessonNode{ID: id, Type: typ})
	}
	s.mu.Unlock()

	if courseID == "" {
		return ErrNoCourse
	}
	if inv := s.deps.Invalidator; inv != nil {
		if err := inv.InvalidateCourse(ctx, courseID); err != nil {
			slog.Warn("course cache invalidation failed", "course_id", courseID, "error", err)
		}
		if err := inv.InvalidateNodes(ctx, resolved); err != nil {
			slog.Warn("node cache invalidation failed", "course_id", courseID, "error", err)
		}
	}
	if err := s.Open(ctx, courseID); err != nil {
		return err
	}
	s.logEvent(analytics.Event{CourseID: courseID, EventType: analytics.EventRefreshed})
	return nil
}

// OnScrollNearEnd loads the next batch when the view is within the scroll
// threshold of the end of the list. It reports how many lessons were added.
func (s *Session) OnScrollNearEnd(distance int) (int, error) {
	if distance > s.deps.ScrollThreshold {
		return 0, nil
	}
	return s.LoadMore()
}

// LoadMore reveals the next batch of lessons. Overlapping calls add nothing.
func (s *Session) LoadMore() (int, error) {
	if err := s.touch(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	ctx, courseID := s.ctx, s.courseID
	s.mu.Unlock()

	n, err := s.loader.LoadMore(ctx)
	if err != nil {
		if errors.Is(err, lessontree.ErrNotInitialized) {
			return 0, ErrNoCourse
		}
		if errors.Is(err, lessontree.ErrStaleResult) || errors.Is(err, context.Canceled) {
			return 0, nil
		}
		s.failed(courseID, "", "Could not load more lessons", err)
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	visible := s.loader.Visible()
	s.logEvent(analytics.Event{
		CourseID:  courseID,
		EventType: analytics.EventBatchLoaded,
		Data:      map[string]any{"added": n, "loaded": len(visible)},
	})
	s.publish(StreamEvent{
		Type:     "batch_loaded",
		CourseID: courseID,
		Lessons:  visible[len(visible)-n:],
		HasMore:  s.loader.HasMore(),
	})
	return n, nil
}

func (s *Session) autoLoad(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.loader.HasMore() {
			return
		}
		if s.loader.Loading() {
			continue
		}
		if _, err := s.LoadMore(); err != nil {
			slog.Debug("auto load stopped", "session_id", s.id, "error", err)
			return
		}
	}
}

// OnExpand marks id expanded and resolves its children. Topics carry their
// activities and are never fetched.
func (s *Session) OnExpand(id lessontree.NodeID) ([]lessontree.LessonNode, error) {
	if err := s.touch(); err != nil {
		return nil, err
	}
	if !id.Valid() {
		return nil, lessontree.ErrMalformedNode
	}
	node, ok := s.findNode(id)
	if !ok {
		return nil, ErrUnknownNode
	}

	s.mu.Lock()
	s.expanded[id] = true
	ctx, courseID, gen := s.ctx, s.courseID, s.generation
	s.mu.Unlock()

	if node.HasEmbeddedChildren() {
		return node.Activities, nil
	}

	// Leaves and merged subtrees already carry their children.
	fetched := !node.ChildrenLoaded
	children := lessontree.LoadedChildren(node)
	if fetched {
		var err error
		children, err = s.resolver.Resolve(ctx, node)
		if err != nil {
			if errors.Is(err, lessontree.ErrStaleResult) || s.stale(gen) {
				return nil, lessontree.ErrStaleResult
			}
			s.failed(courseID, string(id), fmt.Sprintf("Could not load %q", node.Title), err)
			return nil, err
		}
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil, lessontree.ErrStaleResult
	}
	if fetched {
		s.resolved[id] = node.Type
	}
	s.mu.Unlock()

	s.logEvent(analytics.Event{
		CourseID:  courseID,
		NodeID:    string(id),
		EventType: analytics.EventNodeExpanded,
		Data:      map[string]any{"children": len(children)},
	})
	s.publish(StreamEvent{
		Type:     "children_loaded",
		CourseID: courseID,
		NodeID:   string(id),
		Children: children,
		HasMore:  s.loader.HasMore(),
	})
	return children, nil
}

// OnCollapse clears the expanded flag of id. Loaded children stay cached.
func (s *Session) OnCollapse(id lessontree.NodeID) error {
	if err := s.touch(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expanded, id)
	return nil
}

// OnSearch filters the loaded tree by query and expands the ancestors of matches.
// Subtrees that were never expanded are not fetched and do not match.
func (s *Session) OnSearch(query string) (SearchResult, error) {
	if err := s.touch(); err != nil {
		return SearchResult{}, err
	}
	q := lessontree.NewQuery(query)
	tree := s.VisibleLessons()
	res := lessontree.Filter(tree, q, nil)

	s.mu.Lock()
	s.query = q
	for _, id := range res.Expand {
		s.expanded[id] = true
	}
	expanded := sortedIDs(s.expanded)
	courseID := s.courseID
	s.mu.Unlock()

	// Expanded nodes whose children never arrived are resolved again so the
	// next pass can search them. Nothing that was never expanded is fetched.
	var pending []lessontree.NodeID
	if !q.Empty() {
		for _, id := range expanded {
			n, ok := findIn(tree, id)
			if !ok || n.HasEmbeddedChildren() || n.ChildrenLoaded || s.resolver.Loading(id) {
				continue
			}
			pending = append(pending, id)
			go func() {
				if _, err := s.OnExpand(id); err != nil {
					slog.Debug("search expansion failed", "node_id", id, "error", err)
				}
			}()
		}
	}

	if !q.Empty() {
		s.logEvent(analytics.Event{
			CourseID:  courseID,
			EventType: analytics.EventSearch,
			Data:      map[string]any{"query": q.String(), "matches": len(res.Visible)},
		})
	}
	return SearchResult{
		Query:    q.String(),
		Visible:  sortedIDs(res.Visible),
		Expanded: res.Expand,
		Pending:  pending,
	}, nil
}

// VisibleLessons returns the revealed lessons with every resolved subtree merged in.
func (s *Session) VisibleLessons() []lessontree.LessonNode {
	lessons := s.loader.Visible()
	for i := range lessons {
		lessons[i] = s.merge(lessons[i], map[lessontree.NodeID]bool{})
	}
	return lessons
}

// merge copies n with its resolved children attached. path guards against id
// collisions forming a cycle.
func (s *Session) merge(n lessontree.LessonNode, path map[lessontree.NodeID]bool) lessontree.LessonNode {
	if !n.ID.Valid() || n.HasEmbeddedChildren() || path[n.ID] {
		return n
	}
	children, ok := s.resolver.Children(n.ID)
	if !ok {
		return n
	}
	path[n.ID] = true
	merged := make([]lessontree.LessonNode, len(children))
	for i, c := range children {
		merged[i] = s.merge(c, path)
	}
	delete(path, n.ID)
	n.Children = merged
	n.ChildrenLoaded = true
	return n
}

// NodeChildren returns the available children of id without fetching.
func (s *Session) NodeChildren(id lessontree.NodeID) ([]lessontree.LessonNode, bool) {
	if children, ok := s.resolver.Children(id); ok {
		return children, true
	}
	if n, ok := s.findNode(id); ok && n.HasEmbeddedChildren() {
		return n.Activities, true
	}
	return nil, false
}

// IsLoadingNode reports whether the children of id are being fetched.
func (s *Session) IsLoadingNode(id lessontree.NodeID) bool {
	return s.resolver.Loading(id)
}

// HasMore reports whether unrevealed lessons remain.
func (s *Session) HasMore() bool {
	return s.loader.HasMore()
}

// Snapshot returns the renderable state of the session.
func (s *Session) Snapshot() Snapshot {
	lessons := s.VisibleLessons()

	s.mu.Lock()
	q := s.query
	snap := Snapshot{
		SessionID: s.id,
		CourseID:  s.courseID,
		Query:     q.String(),
		Expanded:  sortedIDs(s.expanded),
	}
	s.mu.Unlock()

	snap.Lessons = lessons
	snap.Loaded = s.loader.Loaded()
	snap.Total = s.loader.Total()
	snap.HasMore = s.loader.HasMore()
	snap.Loading = s.loader.Loading()
	if !q.Empty() {
		snap.Visible = sortedIDs(lessontree.Filter(lessons, q, nil).Visible)
	}
	return snap
}

// Subscribe returns a stream of session events and a function that ends it.
// Slow subscribers miss events rather than blocking the session.
func (s *Session) Subscribe() (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, subscriberBuffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (s *Session) publish(ev StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping stream event for slow subscriber", "session_id", s.id, "type", ev.Type)
		}
	}
}

// Close cancels outstanding work and ends every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.cancel()
	s.loader.Reset()
	s.resolver.Reset()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.generation
}

func (s *Session) findNode(id lessontree.NodeID) (lessontree.LessonNode, bool) {
	return findIn(s.VisibleLessons(), id)
}

// findIn returns the first node with id in depth-first order.
func findIn(nodes []lessontree.LessonNode, id lessontree.NodeID) (lessontree.LessonNode, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
		if found, ok := findIn(lessontree.EmbeddedChildren(n), id); ok {
			return found, true
		}
	}
	return lessontree.LessonNode{}, false
}

func (s *Session) failed(courseID, nodeID, message string, err error) {
	slog.Warn("content fetch failed",
		"session_id", s.id,
		"course_id", courseID,
		"node_id", nodeID,
		"error", err,
	)
	if nerr := s.deps.Notifier.Broadcast(context.Background(), notify.Notification{
		Level:     notify.LevelError,
		SessionID: s.id,
		CourseID:  courseID,
		NodeID:    nodeID,
		Message:   message,
	}); nerr != nil {
		slog.Warn("notification delivery failed", "session_id", s.id, "error", nerr)
	}
	s.logEvent(analytics.Event{
		CourseID:  courseID,
		NodeID:    nodeID,
		EventType: analytics.EventFetchFailed,
		Data:      map[string]any{"error": err.Error()},
	})
}

func (s *Session) logEvent(e analytics.Event) {
	e.SessionID = s.id
	if err := s.deps.Events.LogEvent(e); err != nil {
		slog.Warn("failed to log event", "type", e.EventType, "error", err)
	}
}

func sortedIDs(set map[lessontree.NodeID]bool) []lessontree.NodeID {
	ids := make([]lessontree.NodeID, 0, len(set))
	for id, ok := range set {
		if ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
