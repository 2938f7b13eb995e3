package lessontree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrMalformedNode is returned for nodes without an id; they cannot be cached.
	ErrMalformedNode = errors.New("lessontree: node has no id")
	// ErrStaleResult is returned when a fetch finished after the resolver was reset.
	ErrStaleResult = errors.New("lessontree: result belongs to a previous course view")
)

// DetailFetcher fetches the raw detail payload of one node.
type DetailFetcher interface {
	FetchNodeDetail(ctx context.Context, id NodeID, typ NodeType) (RawNodeDetail, error)
}

// DetailFetcherFunc adapts a function to DetailFetcher.
type DetailFetcherFunc func(ctx context.Context, id NodeID, typ NodeType) (RawNodeDetail, error)

func (f DetailFetcherFunc) FetchNodeDetail(ctx context.Context, id NodeID, typ NodeType) (RawNodeDetail, error) {
	return f(ctx, id, typ)
}

// Resolver resolves and caches the children of expandable nodes. Each node id is
// fetched at most once per generation; concurrent requests for the same id share
// the pending fetch. A failed fetch caches nothing so the next request retries.
type Resolver struct {
	fetcher DetailFetcher

	mu         sync.RWMutex
	cache      map[NodeID][]LessonNode
	inflight   map[NodeID]bool
	generation uint64
	group      singleflight.Group
}

// NewResolver creates a resolver backed by fetcher.
func NewResolver(fetcher DetailFetcher) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		cache:    make(map[NodeID][]LessonNode),
		inflight: make(map[NodeID]bool),
	}
}

// Resolve returns the normalized children of node, fetching them if needed.
// The returned slice is shared with the cache and must not be modified.
func (r *Resolver) Resolve(ctx context.Context, node LessonNode) ([]LessonNode, error) {
	if !node.ID.Valid() {
		return nil, ErrMalformedNode
	}
	if node.ChildrenLoaded {
		return LoadedChildren(node), nil
	}

	r.mu.Lock()
	if children, ok := r.cache[node.ID]; ok {
		r.mu.Unlock()
		return children, nil
	}
	gen := r.generation
	r.inflight[node.ID] = true
	r.mu.Unlock()

	key := fmt.Sprintf("%d/%s", gen, node.ID)
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.fetch(ctx, gen, node)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("joined pending children fetch", "node_id", node.ID)
	}
	return v.([]LessonNode), nil
}

func (r *Resolver) fetch(ctx context.Context, gen uint64, node LessonNode) (children []LessonNode, err error) {
	// A fetch for the same id may have completed between the cache check and Do.
	r.mu.RLock()
	cached, ok := r.cache[node.ID]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	defer func() {
		r.mu.Lock()
		if r.generation == gen {
			if err == nil {
				r.cache[node.ID] = children
			}
			delete(r.inflight, node.ID)
		}
		r.mu.Unlock()
	}()

	detail, err := r.fetcher.FetchNodeDetail(ctx, node.ID, node.Type)
	if err != nil {
		return nil, fmt.Errorf("fetching children of %s %s: %w", node.Type, node.ID, err)
	}
	children = ChildrenOf(node.Type, detail)

	r.mu.RLock()
	stale := r.generation != gen
	r.mu.RUnlock()
	if stale {
		return nil, ErrStaleResult
	}
	return children, nil
}

// LoadedChildren returns the children a loaded node carries, never nil.
func LoadedChildren(n LessonNode) []LessonNode {
	if n.Children == nil {
		return []LessonNode{}
	}
	return n.Children
}

// Children returns the cached children of id, if resolved.
func (r *Resolver) Children(id NodeID) ([]LessonNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cache[id]
	return c, ok
}

// Loaded reports whether the children of id have been resolved.
func (r *Resolver) Loaded(id NodeID) bool {
	_, ok := r.Children(id)
	return ok
}

// Loading reports whether a fetch for id is in flight.
func (r *Resolver) Loading(id NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inflight[id]
}

// Len returns the number of cached entries.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Reset drops every cached entry and in-flight marker. Fetches still running
// complete but their results are discarded.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.cache = make(map[NodeID][]LessonNode)
	r.inflight = make(map[NodeID]bool)
}
