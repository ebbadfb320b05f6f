package api

import (
	"encoding/json/v2"
	"net/http"
	"time"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/http/response"
)

type postProgressRequest struct {
	BookID int64  `json:"book_id"`
	Status string `json:"status"`
}

// handleGetProgress returns every stored progress record.
func (s *Server) handleGetProgress(w http.ResponseWriter, _ *http.Request) {
	records, err := s.progress.All()
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, records, s.logger)
}

// handlePostProgress upserts one record, timestamped at receipt. The
// last-write-wins rule is applied store-side, so a replayed or
// out-of-order update can never roll a record backwards.
func (s *Server) handlePostProgress(w http.ResponseWriter, r *http.Request) {
	var req postProgressRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if req.BookID <= 0 {
		response.BadRequest(w, "invalid book_id")
		return
	}
	if !domain.ValidStatus(req.Status) {
		response.BadRequest(w, "invalid status")
		return
	}

	stored, err := s.progress.Upsert(domain.ProgressRecord{
		BookID:      req.BookID,
		Status:      req.Status,
		LastUpdated: time.Now().Unix(),
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, stored, s.logger)
}
