package server

import (
	"net/http"

	"github.com/me/stagehand/pkg/model"
	"github.com/me/stagehand/pkg/uri"
)

type localizeRequest struct {
	URI    string `json:"uri"`
	Target string `json:"target"`
}

type localizeResponse struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// handleLocalize mirrors a single file into the target storage root.
func (s *Server) handleLocalize(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req localizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid request body: %v", err))
		return
	}

	source, target, ok := s.parseTransfer(w, reqID, req.URI, req.Target)
	if !ok {
		return
	}

	localized, err := s.svc.Localize(r.Context(), source, target)
	if err != nil {
		respondTransferError(w, reqID, err)
		return
	}
	respondOK(w, reqID, localizeResponse{Source: source.String(), Target: localized.String()})
}

// handleDeepcopy localizes a manifest and everything it references,
// returning the rewritten manifest's URI.
func (s *Server) handleDeepcopy(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req localizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid request body: %v", err))
		return
	}

	source, target, ok := s.parseTransfer(w, reqID, req.URI, req.Target)
	if !ok {
		return
	}
	if !source.Deepcopyable() {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("%s is not a deepcopy manifest (.json, .tsv, or .csv)", source))
		return
	}

	rewritten, err := s.svc.Deepcopy(r.Context(), source, target)
	if err != nil {
		respondTransferError(w, reqID, err)
		return
	}
	// The rewritten manifest lands beside its source; mirror it onto
	// the target storage like any other file.
	localized, err := s.svc.Localize(r.Context(), rewritten, target)
	if err != nil {
		respondTransferError(w, reqID, err)
		return
	}
	respondOK(w, reqID, localizeResponse{Source: source.String(), Target: localized.String()})
}

type copyRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// handleCopy transfers a file to an explicit target URI instead of a
// mirrored path under a storage root.
func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req copyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid request body: %v", err))
		return
	}

	source, err := uri.Parse(req.Source)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("source: %v", err))
		return
	}
	target, err := uri.Parse(req.Target)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("target: %v", err))
		return
	}

	if err := s.svc.CopyTo(r.Context(), source, target); err != nil {
		respondTransferError(w, reqID, err)
		return
	}
	respondOK(w, reqID, localizeResponse{Source: source.String(), Target: target.String()})
}

// parseTransfer validates the uri/target pair shared by the localize
// and deepcopy endpoints.
func (s *Server) parseTransfer(w http.ResponseWriter, reqID, rawURI, rawTarget string) (uri.URI, uri.Kind, bool) {
	source, err := uri.Parse(rawURI)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("uri: %v", err))
		return uri.URI{}, 0, false
	}
	target, err := uri.ParseKind(rawTarget)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("target: %v", err))
		return uri.URI{}, 0, false
	}
	if target == uri.URL {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("target: cannot localize to a URL"))
		return uri.URI{}, 0, false
	}
	return source, target, true
}
