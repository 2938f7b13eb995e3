package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// handleStream pushes the session's events to a WebSocket until the client
// goes away or the session closes. Incoming messages are ignored.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "session_id", s.ID(), "error", err)
		return
	}
	defer c.CloseNow()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	ctx := c.CloseRead(r.Context())
	h.log.Info("stream opened", "session_id", s.ID())

	if err := writeEvent(ctx, c, StreamEvent{
		Type:     "snapshot",
		CourseID: s.CourseID(),
		Lessons:  s.VisibleLessons(),
		HasMore:  s.HasMore(),
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := writeEvent(ctx, c, ev); err != nil {
				h.log.Debug("stream write failed", "session_id", s.ID(), "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, c *websocket.Conn, ev StreamEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, ev)
}
