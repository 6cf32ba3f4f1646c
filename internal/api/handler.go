// Package api exposes the session control surface over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/commandAGI/deviced/internal/device"
	"github.com/commandAGI/deviced/internal/session"
	"github.com/commandAGI/deviced/internal/store"
	"github.com/commandAGI/deviced/internal/stream"
)

// Handler serves the session control operations.
type Handler struct {
	ctrl     *session.Controller
	backend  device.Backend
	producer *stream.Producer
	repo     store.Repository
}

// NewHandler creates a handler bound to the session runtime.
func NewHandler(ctrl *session.Controller, backend device.Backend, producer *stream.Producer, repo store.Repository) *Handler {
	return &Handler{
		ctrl:     ctrl,
		backend:  backend,
		producer: producer,
		repo:     repo,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// dispatchResponse is the wire form of a dispatch result: the attempt
// count and last error message a failed action is reported with.
type dispatchResponse struct {
	Succeeded bool   `json:"succeeded"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
	Output    string `json:"output,omitempty"`
}

func dispatchJSON(w http.ResponseWriter, res session.Result, err error, output string) {
	resp := dispatchResponse{
		Succeeded: res.Succeeded,
		Attempts:  res.Attempts,
		Output:    output,
	}
	if err != nil {
		resp.Error = err.Error()
	} else if res.LastErr != nil {
		resp.Error = res.LastErr.Error()
	}
	status := http.StatusOK
	if !res.Succeeded {
		status = http.StatusBadGateway
	}
	JSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
