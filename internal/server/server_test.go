package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"factseeker/internal/config"
	"factseeker/internal/core"
)

type stubChecker struct {
	result *core.PipelineResult
	err    error
}

func (s *stubChecker) CheckVideo(ctx context.Context, videoURL string) (*core.PipelineResult, error) {
	return s.result, s.err
}

func (s *stubChecker) CheckArticle(ctx context.Context, articleURL string) (*core.PipelineResult, error) {
	return s.result, s.err
}

type stubPartitions struct{ n int }

func (s *stubPartitions) Len() int { return s.n }

type stubHistory struct {
	saved []*core.PipelineResult
	err   error
}

func (s *stubHistory) SaveResult(result *core.PipelineResult) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, result)
	return "record-1", nil
}

func videoResult() *core.PipelineResult {
	score := 68
	return &core.PipelineResult{
		VideoID:    "abcdefghijk",
		VideoScore: &score,
		Summary:    "100.0% of claims with evidence",
		Claims:     []core.ClaimResult{},
		Keywords:   []string{},
		CreatedAt:  "2025-08-24T12:00:00Z",
	}
}

func newTestServer(checker Checker, history History, partitions PartitionSource) *Server {
	return New(checker, history, partitions, config.Server{Host: "127.0.0.1", Port: 0})
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestFactCheckVideoOK(t *testing.T) {
	history := &stubHistory{}
	s := newTestServer(&stubChecker{result: videoResult()}, history, &stubPartitions{n: 2})

	rec := postJSON(t, s, "/fact-check", `{"youtube_url": "https://www.youtube.com/watch?v=abcdefghijk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result core.PipelineResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if result.VideoID != "abcdefghijk" {
		t.Errorf("video_id = %q", result.VideoID)
	}
	if len(history.saved) != 1 {
		t.Errorf("result not saved to history")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestFactCheckArticleOK(t *testing.T) {
	s := newTestServer(&stubChecker{result: videoResult()}, nil, nil)

	rec := postJSON(t, s, "/article-fact-check", `{"article_url": "https://news.example.com/a"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRequestErrorsMapTo400(t *testing.T) {
	err := fmt.Errorf("%w: no transcript", core.ErrSourceUnavailable)
	s := newTestServer(&stubChecker{err: err}, nil, &stubPartitions{n: 1})

	rec := postJSON(t, s, "/fact-check", `{"youtube_url": "https://youtu.be/abcdefghijk"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SourceUnavailable") {
		t.Errorf("body %q lacks the error type", rec.Body.String())
	}
}

func TestInternalErrorsMapTo500(t *testing.T) {
	s := newTestServer(&stubChecker{err: fmt.Errorf("registry exploded")}, nil, &stubPartitions{n: 1})

	rec := postJSON(t, s, "/fact-check", `{"youtube_url": "https://youtu.be/abcdefghijk"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRefusesWithoutPartitions(t *testing.T) {
	s := newTestServer(&stubChecker{result: videoResult()}, nil, &stubPartitions{n: 0})

	rec := postJSON(t, s, "/fact-check", `{"youtube_url": "https://youtu.be/abcdefghijk"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRejectsMissingURL(t *testing.T) {
	s := newTestServer(&stubChecker{result: videoResult()}, nil, &stubPartitions{n: 1})

	for path, body := range map[string]string{
		"/fact-check":         `{}`,
		"/article-fact-check": `{"article_url": "  "}`,
	} {
		rec := postJSON(t, s, path, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestRejectsBadJSONAndMethod(t *testing.T) {
	s := newTestServer(&stubChecker{result: videoResult()}, nil, nil)

	rec := postJSON(t, s, "/fact-check", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/fact-check", nil)
	get := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(get, req)
	if get.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", get.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&stubChecker{}, nil, &stubPartitions{n: 3})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status["partitions"] != float64(3) {
		t.Errorf("partitions = %v, want 3", status["partitions"])
	}
}

func TestHistoryFailureDoesNotFailRequest(t *testing.T) {
	history := &stubHistory{err: fmt.Errorf("disk full")}
	s := newTestServer(&stubChecker{result: videoResult()}, history, nil)

	rec := postJSON(t, s, "/article-fact-check", `{"article_url": "https://news.example.com/a"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite history failure", rec.Code)
	}
}
