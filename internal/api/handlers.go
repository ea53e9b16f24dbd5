package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type listResponse struct {
	Results []model.CombinedExtraction `json:"results"`
	Count   int                        `json:"count"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pinger, ok := s.store.(Pinger)
	if !ok {
		s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		s.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSchoolChildcare returns the newest combined answer for one school.
func (s *Server) handleSchoolChildcare(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "invalid school id")
		return
	}

	q := r.URL.Query()
	recs, err := s.store.ListCombined(r.Context(), store.CombinedFilter{
		SchoolID:      id,
		Model:         q.Get("model"),
		PromptVersion: q.Get("prompt_version"),
		Limit:         1,
	})
	if err != nil {
		s.logger.Error("list combined failed", zap.Int64("school_id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not load childcare answer")
		return
	}
	if len(recs) == 0 {
		s.respondWithError(w, http.StatusNotFound, "no childcare answer for school")
		return
	}
	s.respondWithJSON(w, http.StatusOK, recs[0])
}

func (s *Server) handleListChildcare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		s.respondWithError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	recs, err := s.store.ListCombined(r.Context(), store.CombinedFilter{
		Model:         q.Get("model"),
		PromptVersion: q.Get("prompt_version"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		s.logger.Error("list combined failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not list childcare answers")
		return
	}
	if recs == nil {
		recs = []model.CombinedExtraction{}
	}
	s.respondWithJSON(w, http.StatusOK, listResponse{Results: recs, Count: len(recs), Limit: limit, Offset: offset})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("write response failed", zap.Error(err))
	}
}
