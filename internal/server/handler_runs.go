package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/stagehand/pkg/model"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code: model.ErrInternal, Message: "run history is not configured",
		})
		return
	}

	q := r.URL.Query()
	opts := model.ListOptions{
		State: model.RunState(q.Get("state")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid limit %q", v))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid offset %q", v))
			return
		}
		opts.Offset = n
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: err.Error(),
		})
		return
	}
	respondList(w, reqID, runs, &model.Pagination{
		Limit:  opts.Limit,
		Offset: opts.Offset,
		Total:  total,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run, ok := s.lookupRun(w, r, reqID)
	if !ok {
		return
	}
	respondOK(w, reqID, run)
}

// handleRunMetadata proxies the engine's metadata document for a run.
func (s *Server) handleRunMetadata(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireEngine(w, reqID) {
		return
	}
	run, ok := s.lookupRun(w, r, reqID)
	if !ok {
		return
	}

	md, err := s.engine.Metadata(r.Context(), run.EngineID)
	if err != nil {
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code: model.ErrInternal, Message: err.Error(),
		})
		return
	}
	respondOK(w, reqID, md)
}

func (s *Server) handleAbortRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireEngine(w, reqID) {
		return
	}
	run, ok := s.lookupRun(w, r, reqID)
	if !ok {
		return
	}

	if err := s.engine.Abort(r.Context(), run.EngineID); err != nil {
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code: model.ErrInternal, Message: err.Error(),
		})
		return
	}

	run.State = model.RunAborted
	run.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRun(r.Context(), run); err != nil {
		s.logger.Error("failed to record aborted state", "run_id", run.ID, "error", err)
	}
	respondOK(w, reqID, run)
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireEngine(w, reqID) {
		return
	}

	resp, err := s.engine.Backends(r.Context())
	if err != nil {
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code: model.ErrInternal, Message: err.Error(),
		})
		return
	}
	respondOK(w, reqID, resp)
}

// lookupRun resolves the {id} route parameter against the store,
// falling back to the engine-assigned ID.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request, reqID string) (*model.Run, bool) {
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code: model.ErrInternal, Message: "run history is not configured",
		})
		return nil, false
	}

	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err == nil && run == nil {
		run, err = s.store.GetRunByEngineID(r.Context(), id)
	}
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: err.Error(),
		})
		return nil, false
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil, false
	}
	return run, true
}

func (s *Server) requireEngine(w http.ResponseWriter, reqID string) bool {
	if s.engine == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code: model.ErrInternal, Message: "workflow engine is not configured",
		})
		return false
	}
	return true
}
