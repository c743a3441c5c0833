package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"factseeker/internal/core"
)

type videoRequest struct {
	YouTubeURL string `json:"youtube_url"`
}

type articleRequest struct {
	ArticleURL string `json:"article_url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.partitions != nil {
		status["partitions"] = s.partitions.Len()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleFactCheckVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.YouTubeURL) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "youtube_url is required"})
		return
	}
	s.runCheck(w, r, func(ctx context.Context) (*core.PipelineResult, error) {
		return s.checker.CheckVideo(ctx, req.YouTubeURL)
	})
}

func (s *Server) handleFactCheckArticle(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ArticleURL) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "article_url is required"})
		return
	}
	s.runCheck(w, r, func(ctx context.Context) (*core.PipelineResult, error) {
		return s.checker.CheckArticle(ctx, req.ArticleURL)
	})
}

// decodeRequest enforces POST with a JSON body. It writes the error response
// itself and reports whether the handler may continue.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

// runCheck gates on partition readiness, runs the pipeline with the request
// timeout, maps the error taxonomy onto status codes, and saves the result.
func (s *Server) runCheck(w http.ResponseWriter, r *http.Request, check func(context.Context) (*core.PipelineResult, error)) {
	if s.partitions != nil && s.partitions.Len() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "title indexes are still loading, retry shortly",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := check(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsRequestError(err) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Error: core.ErrorDetail(err)})
		return
	}

	if s.history != nil {
		if id, err := s.history.SaveResult(result); err != nil {
			s.log.Warn("Failed to save result", "error", err)
		} else {
			s.log.Debug("Result saved", "id", id, "source", result.Source())
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
