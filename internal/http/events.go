package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// keepAliveInterval spaces comment lines that keep idle proxies from closing
// the stream.
const keepAliveInterval = 30 * time.Second

// handleEvents streams graph log changes as server-sent events until the
// client disconnects. Each event names the change kind; clients re-read the
// endpoints they care about.
func (s *Server) handleEvents(c echo.Context) error {
	ctx := c.Request().Context()
	events, err := s.graph.Watch(ctx)
	if err != nil {
		return s.internalError(c, "watching graph", err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	fmt.Fprint(c.Response(), ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			fmt.Fprint(c.Response(), ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ChangeEvent{Kind: string(ev.Kind), At: ev.At})
			if err != nil {
				s.logger.Warn("encoding change event", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}
