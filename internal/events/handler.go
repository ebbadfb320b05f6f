package events

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Handler serves the SSE stream at GET /api/events.
type Handler struct {
	bus    *Bus
	logger *slog.Logger
}

// NewHandler creates a new SSE handler backed by the given bus.
func NewHandler(bus *Bus, logger *slog.Logger) *Handler {
	return &Handler{
		bus:    bus,
		logger: logger,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			// Nothing was written yet; a plain error response is still
			// possible.
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}
		// The writer supports flushing but the connection is already
		// gone; the 200 header is committed, so just drop it.
		h.logger.Warn("initial flush failed", "error", err)
		return
	}

	sub, err := h.bus.Subscribe()
	if err != nil {
		h.logger.Error("failed to register subscriber", "error", err)
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.bus.Unsubscribe(sub.ID)

	subLogger := h.logger.With(slog.String("subscriber_id", sub.ID))

	if err := h.sendEvent(w, rc, Event{
		Timestamp: time.Now(),
		Name:      "connected",
		Data:      map[string]string{"subscriber_id": sub.ID},
	}); err != nil {
		subLogger.Warn("failed to send initial message", "error", err)
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-sub.EventChan:
			if !ok {
				return
			}
			if err := h.sendEvent(w, rc, event); err != nil {
				// Client disconnect is normal, not an error condition.
				subLogger.Info("subscriber disconnected during send")
				return
			}

		case <-sub.Done:
			subLogger.Info("subscriber closed by bus")
			return

		case <-ctx.Done():
			subLogger.Info("subscriber context canceled")
			return
		}
	}
}

// sendEvent writes one event in SSE wire format and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, jsonData); err != nil {
		return err
	}

	return rc.Flush()
}
