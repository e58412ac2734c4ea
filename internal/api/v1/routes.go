// Package v1 provides the HTTP handlers for request submission and polling.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/exact-lab/dockerhood/internal/request"
	"github.com/exact-lab/dockerhood/internal/service"
)

// SubmitRequest is the body of a request submission
type SubmitRequest struct {
	// Operation is the name of the operation to execute
	Operation string `json:"operation"`

	// Params carries the operation parameters
	Params service.Params `json:"params,omitempty"`
}

// SubmitResponse acknowledges a queued request
type SubmitResponse struct {
	ID string `json:"id"`
}

// RequestResponse reports the state and answer of a tracked request
type RequestResponse struct {
	ID string `json:"id"`

	// State is Pending, Executing, Executed, Failed or Unknown
	State request.State `json:"state"`

	// Answer is set once the request reaches a terminal state
	Answer any `json:"answer,omitempty"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the request API with dependency injection
type Routes struct {
	service service.Service
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.Service) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates a new router for the request API
func Router(svc service.Service) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Post("/requests", routes.submitRequest)
	r.Get("/requests/{id}", routes.getRequest)
	r.Get("/status", routes.getStatus)

	return r
}

// submitRequest handles POST /api/v1/requests. The request is queued and its
// id returned immediately; callers poll for the outcome.
func (rr *Routes) submitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rr.writeErrorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Operation == "" {
		rr.writeErrorResponse(w, "operation is required", http.StatusBadRequest)
		return
	}

	id, err := rr.service.Submit(service.Operation(body.Operation), body.Params)
	if err != nil {
		if errors.Is(err, service.ErrUnknownOperation) || errors.Is(err, service.ErrMissingParameter) {
			rr.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to submit request", "operation", body.Operation, "error", err)
		rr.writeErrorResponse(w, "failed to submit request", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, SubmitResponse{ID: id}, http.StatusAccepted)
}

// getRequest handles GET /api/v1/requests/{id}. An id that was never created
// or has been discarded reports the Unknown state with a 404, which callers
// must treat as "no longer trackable", not as a failure of the request.
func (rr *Routes) getRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state := rr.service.Status(id)
	if state == request.StateUnknown {
		rr.writeJSONResponse(w, RequestResponse{ID: id, State: state}, http.StatusNotFound)
		return
	}

	answer, _ := rr.service.Answer(id)
	rr.writeJSONResponse(w, RequestResponse{ID: id, State: state, Answer: answer}, http.StatusOK)
}

// getStatus handles GET /api/v1/status. It serves the cached snapshot and
// never queries the Docker engines.
func (rr *Routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, rr.service.Snapshot(), http.StatusOK)
}

// writeJSONResponse writes a JSON response with the given status code
func (rr *Routes) writeJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (rr *Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	rr.writeJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}
