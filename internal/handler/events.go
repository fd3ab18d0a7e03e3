package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FooledKiwi/ridemap-api/internal/broker"
	"github.com/FooledKiwi/ridemap-api/internal/mapsession"
)

// ssePingInterval keeps idle proxies from closing the stream.
var ssePingInterval = 30 * time.Second

// StreamViewEvents handles GET /api/v1/views/:id/events
//
// Server-Sent Events stream of scene changes. The first event is a
// "snapshot" with the full scene; every later event is named after the
// change (marker.added, route.rendered, ...). The stream ends after
// map.destroyed or when the client disconnects.
func (h *Handler) StreamViewEvents(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before the snapshot so no change falls between the two.
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id, ch)

	snap, err := h.views.Snapshot(id)
	if err != nil {
		h.viewError(c, err, "stream events")
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode snapshot"})
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", raw)
	w.Flush()

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case payload := <-ch:
			var ev broker.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			w.Flush()
			if ev.Type == mapsession.EventMapDestroyed {
				return
			}
		case <-ping.C:
			fmt.Fprintf(w, ": ping\n\n")
			w.Flush()
		}
	}
}
