package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/conductor-hq/conductor/internal/bus"
)

// keepAliveInterval is how often an SSE comment ping is sent so proxies
// do not close an idle stream.
const keepAliveInterval = 15 * time.Second

// globalEventStream streams every bus event (fleet view).
func (s *Server) globalEventStream(c *gin.Context) {
	s.streamEvents(c, func(bus.Event) bool { return true })
}

// agentEventStream streams only one agent's events.
func (s *Server) agentEventStream(c *gin.Context) {
	agentID := c.Param("id")
	s.streamEvents(c, func(e bus.Event) bool {
		ae, ok := e.(bus.AgentEvent)
		return ok && ae.AgentRunID == agentID
	})
}

func (s *Server) streamEvents(c *gin.Context, match func(bus.Event) bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		errorJSON(c, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub.ID)

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if !match(event) {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Kind(), data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		}
	}
}
