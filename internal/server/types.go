package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/glowus/planpress/models"
)

type createPlanRequest struct {
	Title       string `json:"title"`
	TemplateKey string `json:"template_key,omitempty"`
	Brief       string `json:"brief,omitempty"`
}

type editSectionRequest struct {
	Content string `json:"content"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type startPipelineResponse struct {
	JobID string `json:"jobId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps the domain error taxonomy onto HTTP status codes:
// conflicts and invalid-state transitions are 409, unknown ids are 404.
func writeError(w http.ResponseWriter, err error) {
	var conflict *models.ConflictError
	var notFound *models.NotFoundError
	var invalidState *models.InvalidStateError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &conflict), errors.As(err, &invalidState):
		status = http.StatusConflict
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
