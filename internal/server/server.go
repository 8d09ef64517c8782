// Package server exposes the plan pipeline over HTTP: plan CRUD, pipeline
// start/cancel, question answering and the SSE progress stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/glowus/planpress/internal/app"
)

// Server wraps the HTTP listener over the application service.
type Server struct {
	app    *app.App
	port   int
	server *http.Server
}

// New creates a server listening on port.
func New(application *app.App, port int) *Server {
	s := &Server{
		app:  application,
		port: port,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/plans", s.handleCreatePlan)
	mux.HandleFunc("GET /api/plans", s.handleListPlans)
	mux.HandleFunc("GET /api/plans/{id}", s.handleGetPlan)
	mux.HandleFunc("DELETE /api/plans/{id}", s.handleDeletePlan)
	mux.HandleFunc("PUT /api/plans/{id}/sections/{key}", s.handleEditSection)
	mux.HandleFunc("POST /api/plans/{id}/pipeline", s.handleStartPipeline)
	mux.HandleFunc("DELETE /api/plans/{id}/pipeline/{jobId}", s.handleCancelPipeline)
	mux.HandleFunc("GET /api/plans/{id}/questions", s.handleListQuestions)
	mux.HandleFunc("POST /api/questions/{id}/answer", s.handleAnswerQuestion)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{id}/stream", s.handleStream)
	mux.HandleFunc("OPTIONS /api/", s.handleCORS)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           corsMiddleware(loggingMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the configured handler chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the listener in its own goroutine, reporting fatal errors on
// errChan.
func (s *Server) Start(wg *sync.WaitGroup, errChan chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
