package events

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// plainWriter hides ResponseRecorder's Flush so the handler sees a
// writer without streaming support.
type plainWriter struct {
	rec *httptest.ResponseRecorder
}

func (w *plainWriter) Header() http.Header         { return w.rec.Header() }
func (w *plainWriter) Write(p []byte) (int, error) { return w.rec.Write(p) }
func (w *plainWriter) WriteHeader(code int)        { w.rec.WriteHeader(code) }

func TestHandler_ServeHTTP(t *testing.T) {
	t.Run("writer without flush support gets a plain 500", func(t *testing.T) {
		bus := startedBus(t)
		handler := NewHandler(bus, slog.Default())

		req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(&plainWriter{rec: rec}, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Streaming not supported")
		assert.Zero(t, bus.SubscriberCount())
	})

	t.Run("rejects non-GET methods", func(t *testing.T) {
		bus := startedBus(t)
		handler := NewHandler(bus, slog.Default())

		req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
