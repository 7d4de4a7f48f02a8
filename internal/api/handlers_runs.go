package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strikezor/SDMaker/internal/intake"
	"github.com/Strikezor/SDMaker/internal/kb"
	"github.com/Strikezor/SDMaker/internal/render"
	"github.com/Strikezor/SDMaker/internal/synth"
)

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentCR string `json:"parent_cr"`
	}
	if r.Body != nil {
		// Body is optional for this endpoint.
		json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
	}

	run := synth.NewRun()
	if req.ParentCR != "" {
		run.SetParentCR(req.ParentCR)
	}
	s.runs.Put(run)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"run_id":    run.ID,
		"state":     run.State(),
		"parent_cr": req.ParentCR,
	})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

// handleUpload accepts one or more files for a single intake category.
// A failing file does not fail the request; per-file errors come back
// alongside the accepted documents.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	category := intake.Category(r.FormValue("category"))
	if !category.Valid() {
		jsonError(w, fmt.Sprintf("category must be one of %v", intake.Categories), http.StatusBadRequest)
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	var files []intake.File
	var oversized []intake.FileError
	for _, fh := range fileHeaders {
		filename := sanitizeFilename(fh.Filename)
		f, err := fh.Open()
		if err != nil {
			oversized = append(oversized, intake.FileError{Filename: filename, Message: "failed to open file"})
			continue
		}
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
			oversized = append(oversized, intake.FileError{Filename: filename, Message: "file too large or read error"})
			continue
		}
		files = append(files, intake.File{Filename: filename, Data: data, Category: category})
	}

	docs, fileErrs, err := run.AddFiles(files)
	if err != nil {
		writeFailure(w, http.StatusConflict, "invalid_state", err.Error(), "create a new run or resupply inputs after a validation failure")
		return
	}
	fileErrs = append(fileErrs, oversized...)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":      run.ID,
		"state":       run.State(),
		"accepted":    docs,
		"file_errors": fileErrs,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}

	if err := s.pipeline.Analyze(r.Context(), run); err != nil {
		s.writeStageError(w, err)
		return
	}

	snap := run.Snapshot()
	status := http.StatusOK
	body := map[string]any{
		"run_id":     snap.ID,
		"state":      snap.State,
		"validation": snap.Validation,
		"gaps":       snap.Gaps,
		"warnings":   snap.Warnings,
	}
	switch snap.State {
	case synth.StateValidationFailed:
		body["hint"] = "replace the rejected documents and upload again"
	case synth.StateAwaitingUserInput:
		body["hint"] = "answer the gap questions, then trigger synthesis"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}

	var req struct {
		Answers map[string]string `json:"answers"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Answers) == 0 {
		jsonError(w, "answers is required", http.StatusBadRequest)
		return
	}

	if err := run.ResolveGaps(req.Answers); err != nil {
		writeFailure(w, http.StatusConflict, "invalid_state", err.Error(), "answers are only accepted while gap questions are open")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": run.ID,
		"state":  run.State(),
		"gaps":   run.Snapshot().Gaps,
	})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}

	if err := s.pipeline.Synthesize(r.Context(), run); err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}

	var req struct {
		Instruction string `json:"instruction"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.pipeline.Refine(r.Context(), run, req.Instruction); err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}

	var req struct {
		CRNumber string `json:"cr_number"`
		Title    string `json:"title"`
		ParentCR string `json:"parent_cr"`
	}
	if r.Body != nil {
		json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
	}
	if req.ParentCR != "" {
		run.SetParentCR(req.ParentCR)
	}

	entry, err := s.pipeline.Commit(run, req.CRNumber, req.Title)
	if err != nil {
		s.writeStageError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"cr_number":  entry.CRNumber,
		"title":      entry.Title,
		"created_at": entry.CreatedAt,
		"parent_cr":  entry.ParentCR,
		"state":      run.State(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	run := s.run(w, r)
	if run == nil {
		return
	}

	md, ok := run.DocumentMarkdown()
	if !ok {
		writeFailure(w, http.StatusConflict, "no_document", "run has no generated document", "trigger synthesis first")
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(md))
	case "html":
		page, err := render.MarkdownHTML("Solution Document "+run.ID, md)
		if err != nil {
			jsonError(w, "render failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	default:
		jsonError(w, fmt.Sprintf("unsupported export format %q", format), http.StatusBadRequest)
	}
}

// run resolves the request's run or writes a 404.
func (s *Server) run(w http.ResponseWriter, r *http.Request) *synth.Run {
	run := s.runs.Get(chi.URLParam(r, "runID"))
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return nil
	}
	return run
}

// writeStageError converts pipeline failures into the error kind plus
// a remediation hint for the front-end.
func (s *Server) writeStageError(w http.ResponseWriter, err error) {
	var (
		uge  *synth.UnresolvedGapError
		serr *synth.SynthesisError
		rerr *synth.RefinementError
		perr *kb.PersistenceError
	)
	switch {
	case errors.As(err, &uge):
		writeFailure(w, http.StatusConflict, "unresolved_gap", err.Error(), "answer every open gap question before synthesizing")
	case errors.Is(err, kb.ErrExists):
		writeFailure(w, http.StatusConflict, "cr_conflict", err.Error(), "retry without a cr_number to auto-assign the next one")
	case errors.As(err, &perr):
		writeFailure(w, http.StatusInternalServerError, "persistence_failed", err.Error(), "the knowledge base was not changed; retry the commit or export without saving")
	case errors.As(err, &serr):
		writeFailure(w, http.StatusBadGateway, "synthesis_failed", err.Error(), "re-trigger synthesis; inputs and answers are preserved")
	case errors.As(err, &rerr):
		writeFailure(w, http.StatusBadGateway, "refinement_failed", err.Error(), "the prior document is unchanged; adjust the instruction and retry")
	default:
		writeFailure(w, http.StatusConflict, "invalid_state", err.Error(), "check the run state and retry the appropriate step")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, code int, kind, msg, hint string) {
	writeJSON(w, code, map[string]string{
		"error":   kind,
		"message": msg,
		"hint":    hint,
	})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
