package lessontree

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultInitialBatchSize = 20
	DefaultBatchSize        = 10
	DefaultBatchDelay       = 50 * time.Millisecond
)

// ErrNotInitialized is returned by LoadMore before Initialize has been called.
var ErrNotInitialized = errors.New("lessontree: batch loader not initialized")

// LoaderConfig sizes the reveal window.
type LoaderConfig struct {
	InitialBatchSize int
	BatchSize        int
	BatchDelay       time.Duration // pause before each batch is appended
}

// BatchLoader reveals an already fetched, ordered lesson list in fixed-size batches.
// The revealed prefix only grows until Reset or the next Initialize, and at most
// one LoadMore runs at a time; overlapping calls return without appending.
type BatchLoader struct {
	initialBatch int
	batch        int
	delay        time.Duration

	mu          sync.Mutex
	items       []LessonNode
	loaded      int
	loading     bool
	initialized bool
	generation  uint64
}

// NewBatchLoader creates a loader; zero config values fall back to the defaults.
func NewBatchLoader(cfg LoaderConfig) *BatchLoader {
	initial := cfg.InitialBatchSize
	if initial <= 0 {
		initial = DefaultInitialBatchSize
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	delay := cfg.BatchDelay
	if delay < 0 {
		delay = 0
	}
	return &BatchLoader{
		initialBatch: initial,
		batch:        batch,
		delay:        delay,
	}
}

// Initialize replaces the lesson list and reveals the initial batch.
func (l *BatchLoader) Initialize(items []LessonNode) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	l.items = append([]LessonNode(nil), items...)
	l.loaded = min(l.initialBatch, len(l.items))
	l.loading = false
	l.initialized = true
}

// LoadMore appends the next batch to the revealed prefix and returns how many
// items were added. It returns 0 with a nil error when nothing remains or another
// batch is already loading.
func (l *BatchLoader) LoadMore(ctx context.Context) (int, error) {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return 0, ErrNotInitialized
	}
	if l.loading || len(l.items) == 0 || l.loaded >= len(l.items) {
		l.mu.Unlock()
		return 0, nil
	}
	l.loading = true
	gen := l.generation
	l.mu.Unlock()

	if l.delay > 0 {
		timer := time.NewTimer(l.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			l.mu.Lock()
			if l.generation == gen {
				l.loading = false
			}
			l.mu.Unlock()
			return 0, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.generation != gen {
		return 0, ErrStaleResult
	}
	n := min(l.batch, len(l.items)-l.loaded)
	l.loaded += n
	l.loading = false
	return n, nil
}

// Visible returns a copy of the revealed prefix.
func (l *BatchLoader) Visible() []LessonNode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LessonNode(nil), l.items[:l.loaded]...)
}

// HasMore reports whether unrevealed items remain.
func (l *BatchLoader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded < len(l.items)
}

// Loading reports whether a batch is being appended.
func (l *BatchLoader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Loaded returns the length of the revealed prefix.
func (l *BatchLoader) Loaded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Total returns the length of the full lesson list.
func (l *BatchLoader) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Reset clears the list; Initialize must be called again before LoadMore.
func (l *BatchLoader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.items = nil
	l.loaded = 0
	l.loading = false
	l.initialized = false
}
