package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

// Chain tries its sources in registration order and returns the first success.
type Chain struct {
	sources map[string]Source
	order   []string
	mu      sync.RWMutex
}

// NewChain creates an empty fallback chain.
func NewChain() *Chain {
	return &Chain{
		sources: make(map[string]Source),
	}
}

// Register appends a source to the fallback order.
func (c *Chain) Register(name string, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[name]; !ok {
		c.order = append(c.order, name)
	}
	c.sources[name] = src
}

// Len returns the number of registered sources.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Chain) FetchTopLevelLessons(ctx context.Context, courseID string) ([]lessontree.LessonSummary, error) {
	var lessons []lessontree.LessonSummary
	err := c.try(ctx, func(src Source) error {
		var err error
		lessons, err = src.FetchTopLevelLessons(ctx, courseID)
		return err
	})
	return lessons, err
}

func (c *Chain) FetchNodeDetail(ctx context.Context, id lessontree.NodeID, typ lessontree.NodeType) (lessontree.RawNodeDetail, error) {
	var detail lessontree.RawNodeDetail
	err := c.try(ctx, func(src Source) error {
		var err error
		detail, err = src.FetchNodeDetail(ctx, id, typ)
		return err
	})
	return detail, err
}

func (c *Chain) try(ctx context.Context, fn func(Source) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.order) == 0 {
		return fmt.Errorf("no content source configured")
	}

	var errs []error
	for _, name := range c.order {
		err := fn(c.sources[name])
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("content source failed, trying next", "source", name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return fmt.Errorf("all content sources failed: %w", errors.Join(errs...))
}
