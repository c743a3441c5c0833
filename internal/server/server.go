// Package server exposes the fact-check pipeline over HTTP: two POST
// endpoints returning the pipeline's JSON result, plus a health check.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"factseeker/internal/config"
	"factseeker/internal/core"
	"factseeker/internal/logger"
)

// Checker runs fact-check requests; satisfied by pipeline.Driver.
type Checker interface {
	CheckVideo(ctx context.Context, videoURL string) (*core.PipelineResult, error)
	CheckArticle(ctx context.Context, articleURL string) (*core.PipelineResult, error)
}

// History persists finished results; satisfied by store.Store. Saving is
// best-effort and never fails a request.
type History interface {
	SaveResult(result *core.PipelineResult) (string, error)
}

// PartitionSource reports how many title partitions are loaded; satisfied
// by titleindex.Registry. Requests are refused while none are.
type PartitionSource interface {
	Len() int
}

// Server is the HTTP surface.
type Server struct {
	httpServer *http.Server
	checker    Checker
	history    History         // nil disables persistence
	partitions PartitionSource // nil skips the readiness gate
	log        *slog.Logger
}

// requestTimeout bounds one fact-check request end to end. Transcripts plus
// a ten-claim fan-out can legitimately take minutes.
const requestTimeout = 10 * time.Minute

// New creates a Server. history and partitions may be nil.
func New(checker Checker, history History, partitions PartitionSource, cfg config.Server) *Server {
	s := &Server{
		checker:    checker,
		history:    history,
		partitions: partitions,
		log:        logger.Get(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/fact-check", s.handleFactCheckVideo)
	mux.HandleFunc("/article-fact-check", s.handleFactCheckArticle)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 30*time.Second,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
