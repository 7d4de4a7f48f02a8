package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// kbSummary is the listing view of a committed entry: everything but
// the full document text.
type kbSummary struct {
	CRNumber      string    `json:"cr_number"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	ParentCR      string    `json:"parent_cr,omitempty"`
	SchemaVersion string    `json:"schema_version"`
	RevisionCount int       `json:"revision_count"`
}

func (s *Server) handleKBList(w http.ResponseWriter, r *http.Request) {
	entries := s.pipeline.Store().ListAll()
	summaries := make([]kbSummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, kbSummary{
			CRNumber:      e.CRNumber,
			Title:         e.Title,
			CreatedAt:     e.CreatedAt,
			ParentCR:      e.ParentCR,
			SchemaVersion: e.Document.SchemaVersion,
			RevisionCount: e.Document.RevisionCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": summaries})
}

func (s *Server) handleKBGet(w http.ResponseWriter, r *http.Request) {
	crNumber := chi.URLParam(r, "crNumber")
	entry, found := s.pipeline.Store().Find(crNumber)
	if !found {
		jsonError(w, "cr number not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleKBNextCR previews the identifier the next commit would get,
// so the front-end can pre-fill it the way the original form does.
func (s *Server) handleKBNextCR(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"next_cr": s.pipeline.Store().AllocateNextCRNumber(),
	})
}
