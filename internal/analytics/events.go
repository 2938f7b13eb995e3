// Package analytics records dashboard usage events.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Event types emitted by dashboard sessions.
const (
	EventSessionOpened = "session_opened"
	EventBatchLoaded   = "batch_loaded"
	EventNodeExpanded  = "node_expanded"
	EventSearch        = "search"
	EventFetchFailed   = "fetch_failed"
	EventRefreshed     = "refreshed"
)

// Event is one analytics record.
type Event struct {
	SessionID string
	CourseID  string
	NodeID    string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Count returns how many events of the given type were logged.
func (l *MemoryEventLogger) Count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// PostgresEventLogger inserts events into the dashboard_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO dashboard_events (session_id, course_id, node_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		event.SessionID,
		event.CourseID,
		nullIfEmpty(event.NodeID),
		event.EventType,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"session_id", event.SessionID,
		"course_id", event.CourseID,
	)
	return nil
}

// CountByType returns per-type event counts for a course.
func (l *PostgresEventLogger) CountByType(ctx context.Context, courseID string) (map[string]int, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT event_type, COUNT(*)
		 FROM dashboard_events
		 WHERE course_id = $1
		 GROUP BY event_type`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query event counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
