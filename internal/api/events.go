package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/presentation"
	"github.com/zjrosen/playbook/internal/pubsub"
)

// StreamEvents streams the caller's progress events via SSE.
// GET /events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	ctx := r.Context()
	events := h.journeys.Subscribe(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if !visibleTo(event, id) {
				continue
			}
			data, err := json.Marshal(presentation.FromEvent(string(event.Type), event.Payload, event.Timestamp))
			if err != nil {
				log.ErrorErr(log.CatAPI, "Failed to marshal event", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func visibleTo(event pubsub.Event[engine.ProgressEvent], id identity) bool {
	return event.Payload.UserID == id.userID && event.Payload.OrganizationID == id.organizationID
}
