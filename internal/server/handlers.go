package server

import (
	"encoding/json"
	"net/http"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Removed *int   `json:"removed,omitempty"`
}

type removedResponse struct {
	Removed int `json:"removed"`
}

type invalidateRequest struct {
	Key    string `json:"key"`
	Prefix string `json:"prefix"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", logger.ErrorField(err))
	}
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Cache.Stats())
}

func (s *Server) cacheClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Cache.ClearAll(r.Context())
	if err != nil {
		s.log.Error("Cache clear incomplete", logger.ErrorField(err), logger.IntField("removed", n))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Removed: &n})
		return
	}
	s.writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}

func (s *Server) cacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if (req.Key == "") == (req.Prefix == "") {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "exactly one of key or prefix is required"})
		return
	}

	var (
		n   int
		err error
	)
	if req.Key != "" {
		var removed bool
		removed, err = s.deps.Cache.Invalidate(r.Context(), req.Key)
		if removed {
			n = 1
		}
	} else {
		n, err = s.deps.Cache.InvalidateByPrefix(r.Context(), req.Prefix)
	}
	if err != nil {
		s.log.Error("Cache invalidation failed", logger.ErrorField(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Removed: &n})
		return
	}
	s.writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Store.List(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": entries})
}
