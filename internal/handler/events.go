package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"arena/internal/engine"
	"arena/internal/events"
	"arena/internal/repository"
)

type EventsHandler struct {
	Engine *engine.Engine
	Bus    *events.Bus
	Log    *zap.Logger
}

func (h *EventsHandler) Register(r *gin.Engine) {
	r.GET("/api/events", h.list)
	r.GET("/api/events/ws", h.stream)
}

// list pages the durable event outbox. Indexers resume with after_id.
func (h *EventsHandler) list(c *gin.Context) {
	params := repository.ListEventsParams{
		AfterID: strings.TrimSpace(c.Query("after_id")),
	}
	if v := strings.TrimSpace(c.Query("type")); v != "" {
		params.Type = &v
	}
	if v := strings.TrimSpace(c.Query("epoch")); v != "" {
		index, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "epoch must be a non-negative integer", nil)
			return
		}
		params.EpochIndex = &index
	}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			Error(c, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		params.Limit = limit
	}
	rows, err := h.Engine.Events(c.Request.Context(), params)
	if err != nil {
		engineError(c, err)
		return
	}
	meta := map[string]any{"count": len(rows)}
	if len(rows) > 0 {
		meta["last_id"] = rows[len(rows)-1].ID
	}
	Ok(c, rows, meta)
}

// stream pushes live engine events over a websocket. Delivery is best
// effort; a consumer that needs every event pages /api/events instead.
func (h *EventsHandler) stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch, cancel := h.Bus.Subscribe(64)
	defer cancel()

	ctx := c.Request.Context()
	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutdown")
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "bus closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				if h.Log != nil {
					h.Log.Debug("event stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
