package api

import (
	"net/http"
	"time"

	"github.com/commandAGI/deviced/internal/device"
	"github.com/commandAGI/deviced/internal/session"
	"github.com/commandAGI/deviced/internal/stream"
	"github.com/go-chi/chi/v5"
)

// Operation is one entry in the control-surface registry: an operation
// name mapped to its route and handler.
type Operation struct {
	Name    string
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Registry enumerates every control operation. The table is assembled
// directly at startup; there is no runtime introspection and no dispatch
// path that bypasses the session controller.
func (h *Handler) Registry() []Operation {
	return []Operation{
		{Name: "start", Method: http.MethodPost, Path: "/start", Handler: h.handleStart},
		{Name: "stop", Method: http.MethodPost, Path: "/stop", Handler: h.handleStop},
		{Name: "pause", Method: http.MethodPost, Path: "/pause", Handler: h.handlePause},
		{Name: "resume", Method: http.MethodPost, Path: "/resume", Handler: h.handleResume},
		{Name: "reset", Method: http.MethodPost, Path: "/reset", Handler: h.handleReset},
		{Name: "ensure_state", Method: http.MethodPost, Path: "/ensure_state", Handler: h.handleEnsureState},
		{Name: "state", Method: http.MethodGet, Path: "/state", Handler: h.handleState},
		{Name: "record", Method: http.MethodGet, Path: "/record", Handler: h.handleRecord},
		{Name: "shell", Method: http.MethodPost, Path: "/shell", Handler: h.handleShell},
		{Name: "key_down", Method: http.MethodPost, Path: "/key_down", Handler: h.handleKeyDown},
		{Name: "key_up", Method: http.MethodPost, Path: "/key_up", Handler: h.handleKeyUp},
		{Name: "move_mouse", Method: http.MethodPost, Path: "/move_mouse", Handler: h.handleMoveMouse},
		{Name: "mouse_button_down", Method: http.MethodPost, Path: "/mouse_button_down", Handler: h.handleMouseButtonDown},
		{Name: "mouse_button_up", Method: http.MethodPost, Path: "/mouse_button_up", Handler: h.handleMouseButtonUp},
		{Name: "screenshot", Method: http.MethodGet, Path: "/screenshot", Handler: h.handleScreenshot},
		{Name: "frame", Method: http.MethodGet, Path: "/frame", Handler: h.handleFrame},
	}
}

// RegisterRoutes mounts the registry under /v1/session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/session", func(r chi.Router) {
		for _, op := range h.Registry() {
			r.Method(op.Method, op.Path, op.Handler)
		}
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": string(h.ctrl.State())})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()
	JSON(w, http.StatusOK, map[string]string{"state": string(h.ctrl.State())})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Pause(); err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": string(h.ctrl.State())})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Resume(); err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": string(h.ctrl.State())})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Reset(); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": string(h.ctrl.State())})
}

func (h *Handler) handleEnsureState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	target := session.State(req.State)
	switch target {
	case session.StateStopped, session.StateRunning, session.StatePaused:
	default:
		Error(w, http.StatusBadRequest, "unknown state "+req.State)
		return
	}
	if err := h.ctrl.EnsureState(target); err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": string(h.ctrl.State())})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"id":    h.ctrl.ID(),
		"name":  h.ctrl.Name(),
		"state": string(h.ctrl.State()),
	})
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		Error(w, http.StatusNotFound, "session persistence disabled")
		return
	}
	rec, err := h.repo.GetSession(r.Context(), h.ctrl.ID())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "no record for session")
		return
	}
	transitions, err := h.repo.ListTransitions(r.Context(), h.ctrl.ID())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":     rec,
		"transitions": transitions,
	})
}

func (h *Handler) handleShell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command   string `json:"command"`
		TimeoutMS int    `json:"timeout_ms"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Command == "" {
		Error(w, http.StatusBadRequest, "command is required")
		return
	}
	var output string
	res, err := h.ctrl.Dispatch("shell", func() error {
		out, shellErr := h.backend.Shell(r.Context(), req.Command, time.Duration(req.TimeoutMS)*time.Millisecond)
		output = out
		return shellErr
	})
	dispatchJSON(w, res, err, output)
}

func (h *Handler) handleKeyDown(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeKey(w, r)
	if !ok {
		return
	}
	res, err := h.ctrl.Dispatch("key_down", func() error { return h.backend.KeyDown(key) })
	dispatchJSON(w, res, err, "")
}

func (h *Handler) handleKeyUp(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeKey(w, r)
	if !ok {
		return
	}
	res, err := h.ctrl.Dispatch("key_up", func() error { return h.backend.KeyUp(key) })
	dispatchJSON(w, res, err, "")
}

func (h *Handler) decodeKey(w http.ResponseWriter, r *http.Request) (device.Key, bool) {
	var req struct {
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &req) {
		return "", false
	}
	if req.Key == "" {
		Error(w, http.StatusBadRequest, "key is required")
		return "", false
	}
	return device.Key(req.Key), true
}

func (h *Handler) handleMoveMouse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X          int `json:"x"`
		Y          int `json:"y"`
		DurationMS int `json:"duration_ms"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.ctrl.Dispatch("move_mouse", func() error {
		return h.backend.MoveMouse(req.X, req.Y, time.Duration(req.DurationMS)*time.Millisecond)
	})
	dispatchJSON(w, res, err, "")
}

func (h *Handler) handleMouseButtonDown(w http.ResponseWriter, r *http.Request) {
	button, ok := h.decodeButton(w, r)
	if !ok {
		return
	}
	res, err := h.ctrl.Dispatch("mouse_button_down", func() error { return h.backend.MouseButtonDown(button) })
	dispatchJSON(w, res, err, "")
}

func (h *Handler) handleMouseButtonUp(w http.ResponseWriter, r *http.Request) {
	button, ok := h.decodeButton(w, r)
	if !ok {
		return
	}
	res, err := h.ctrl.Dispatch("mouse_button_up", func() error { return h.backend.MouseButtonUp(button) })
	dispatchJSON(w, res, err, "")
}

func (h *Handler) decodeButton(w http.ResponseWriter, r *http.Request) (device.Button, bool) {
	var req struct {
		Button string `json:"button"`
	}
	if !decodeBody(w, r, &req) {
		return "", false
	}
	button, ok := device.ParseButton(req.Button)
	if !ok {
		Error(w, http.StatusBadRequest, "unknown button "+req.Button)
		return "", false
	}
	return button, true
}

func (h *Handler) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	var pixels []byte
	res, err := h.ctrl.Dispatch("screenshot", func() error {
		p, capErr := h.backend.CaptureScreen(r.Context())
		pixels = p
		return capErr
	})
	if !res.Succeeded {
		dispatchJSON(w, res, err, "")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixels)
}

func (h *Handler) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := h.producer.GetFrame()
	contentType := "image/jpeg"
	if frame.Encoding == stream.EncodingPNG {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.Pixels)
}
