// Package notify delivers user-facing notifications (load failures, refresh
// results) to registered channels such as the dashboard WebSocket stream.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a toast-style message for one dashboard session.
type Notification struct {
	Level     Level     `json:"level"`
	SessionID string    `json:"session_id"`
	CourseID  string    `json:"course_id,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel is implemented by every notification transport.
type Channel interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifier is what producers depend on.
type Notifier interface {
	Broadcast(ctx context.Context, n Notification) error
}

// Gateway fans notifications out to registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a new notification gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("notification channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Send dispatches a notification to one channel.
func (g *Gateway) Send(ctx context.Context, channel string, n Notification) error {
	g.mu.RLock()
	ch, ok := g.channels[channel]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown channel: %s", channel)
	}

	return ch.Notify(ctx, stamp(n))
}

// Broadcast dispatches a notification to every channel and joins their errors.
func (g *Gateway) Broadcast(ctx context.Context, n Notification) error {
	n = stamp(n)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, ch := range g.channels {
		if err := ch.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func stamp(n Notification) Notification {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}
	return n
}

// LogChannel writes notifications to the default slog logger.
type LogChannel struct{}

func (LogChannel) Notify(_ context.Context, n Notification) error {
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "notification",
		"session_id", n.SessionID,
		"course_id", n.CourseID,
		"node_id", n.NodeID,
		"message", n.Message,
	)
	return nil
}

// MockChannel is a test double for Channel.
type MockChannel struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (m *MockChannel) Notify(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of the delivered notifications.
func (m *MockChannel) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}
