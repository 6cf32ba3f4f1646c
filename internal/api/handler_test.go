package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/commandAGI/deviced/internal/device"
	"github.com/commandAGI/deviced/internal/session"
	"github.com/commandAGI/deviced/internal/stream"
	"github.com/go-chi/chi/v5"
)

// fakeBackend records calls and can be told to fail.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	shellOut string
	failWith error
}

func (b *fakeBackend) record(call string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
	return b.failWith
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) KeyDown(key device.Key) error { return b.record("key_down " + string(key)) }
func (b *fakeBackend) KeyUp(key device.Key) error   { return b.record("key_up " + string(key)) }
func (b *fakeBackend) MoveMouse(x, y int, _ time.Duration) error {
	return b.record("move_mouse")
}
func (b *fakeBackend) MouseButtonDown(button device.Button) error {
	return b.record("button_down " + string(button))
}
func (b *fakeBackend) MouseButtonUp(button device.Button) error {
	return b.record("button_up " + string(button))
}
func (b *fakeBackend) Shell(_ context.Context, command string, _ time.Duration) (string, error) {
	return b.shellOut, b.record("shell " + command)
}
func (b *fakeBackend) CaptureScreen(context.Context) ([]byte, error) {
	return []byte("pixels"), b.record("capture")
}

func newTestRouter(t *testing.T, backend *fakeBackend, policy session.ErrorPolicy) (chi.Router, *session.Controller) {
	t.Helper()
	ctrl := session.NewController(backend, session.Options{
		Name:         "api-test",
		RetryBudget:  2,
		Policy:       policy,
		ArtifactRoot: t.TempDir(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(ctrl.Stop)

	producer := stream.NewProducer(stream.Config{
		SourceURL: "http://127.0.0.1:0/stream",
		Width:     32,
		Height:    24,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	h := NewHandler(ctrl, backend, producer, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, ctrl
}

func do(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestRegistry_CoversEveryOperation(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil)
	ops := h.Registry()

	want := []string{
		"start", "stop", "pause", "resume", "reset", "ensure_state",
		"state", "record", "shell", "key_down", "key_up", "move_mouse",
		"mouse_button_down", "mouse_button_up", "screenshot", "frame",
	}
	if len(ops) != len(want) {
		t.Fatalf("registry has %d operations, want %d", len(ops), len(want))
	}
	byName := make(map[string]Operation, len(ops))
	for _, op := range ops {
		if op.Handler == nil {
			t.Errorf("operation %q has no handler", op.Name)
		}
		if op.Path == "" || op.Method == "" {
			t.Errorf("operation %q missing route", op.Name)
		}
		byName[op.Name] = op
	}
	for _, name := range want {
		if _, ok := byName[name]; !ok {
			t.Errorf("registry missing operation %q", name)
		}
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	r, ctrl := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodPost, "/v1/session/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", w.Code, w.Body.String())
	}
	if got := decodeMap(t, w)["state"]; got != "running" {
		t.Errorf("start reported state %v, want running", got)
	}

	w = do(t, r, http.MethodPost, "/v1/session/pause", "")
	if w.Code != http.StatusOK {
		t.Fatalf("pause = %d: %s", w.Code, w.Body.String())
	}
	if ctrl.State() != session.StatePaused {
		t.Errorf("state = %s, want paused", ctrl.State())
	}

	w = do(t, r, http.MethodPost, "/v1/session/resume", "")
	if w.Code != http.StatusOK {
		t.Fatalf("resume = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/v1/session/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stop = %d: %s", w.Code, w.Body.String())
	}
	if ctrl.State() != session.StateStopped {
		t.Errorf("state = %s, want stopped", ctrl.State())
	}
}

func TestPauseFromStoppedConflicts(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodPost, "/v1/session/pause", "")
	if w.Code != http.StatusConflict {
		t.Errorf("pause from stopped = %d, want 409", w.Code)
	}
}

func TestEnsureStateEndpoint(t *testing.T) {
	r, ctrl := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodPost, "/v1/session/ensure_state", `{"state":"paused"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ensure_state = %d: %s", w.Code, w.Body.String())
	}
	if ctrl.State() != session.StatePaused {
		t.Errorf("state = %s, want paused", ctrl.State())
	}

	w = do(t, r, http.MethodPost, "/v1/session/ensure_state", `{"state":"hibernating"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown state = %d, want 400", w.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	r, ctrl := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodGet, "/v1/session/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("state = %d: %s", w.Code, w.Body.String())
	}
	m := decodeMap(t, w)
	if m["id"] != ctrl.ID() || m["name"] != "api-test" || m["state"] != "stopped" {
		t.Errorf("state body = %v", m)
	}
}

func TestShellEndpoint(t *testing.T) {
	backend := &fakeBackend{shellOut: "hi\n"}
	r, _ := newTestRouter(t, backend, session.Raise)

	w := do(t, r, http.MethodPost, "/v1/session/shell", `{"command":"echo hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("shell = %d: %s", w.Code, w.Body.String())
	}
	m := decodeMap(t, w)
	if m["succeeded"] != true {
		t.Errorf("succeeded = %v, want true", m["succeeded"])
	}
	if m["attempts"] != float64(1) {
		t.Errorf("attempts = %v, want 1", m["attempts"])
	}
	if m["output"] != "hi\n" {
		t.Errorf("output = %v, want %q", m["output"], "hi\n")
	}
	// Dispatch auto-started the stopped session before running the op.
	calls := backend.Calls()
	if len(calls) != 1 || calls[0] != "shell echo hi" {
		t.Errorf("backend calls = %v", calls)
	}
}

func TestShellEndpoint_MissingCommand(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodPost, "/v1/session/shell", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty command = %d, want 400", w.Code)
	}
}

func TestDispatchFailure_RaisePolicyReports502(t *testing.T) {
	backend := &fakeBackend{failWith: errors.New("input device wedged")}
	r, _ := newTestRouter(t, backend, session.Raise)

	w := do(t, r, http.MethodPost, "/v1/session/key_down", `{"key":"enter"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failed dispatch = %d, want 502", w.Code)
	}
	m := decodeMap(t, w)
	if m["succeeded"] != false {
		t.Errorf("succeeded = %v, want false", m["succeeded"])
	}
	if m["attempts"] != float64(2) {
		t.Errorf("attempts = %v, want retry budget 2", m["attempts"])
	}
	if msg, _ := m["error"].(string); !strings.Contains(msg, "input device wedged") {
		t.Errorf("error = %v, want the backend failure", m["error"])
	}
}

func TestDispatchFailure_SwallowPolicyReports502(t *testing.T) {
	backend := &fakeBackend{failWith: errors.New("input device wedged")}
	r, _ := newTestRouter(t, backend, session.Swallow)

	// Swallow suppresses the Go error but the wire result still says failed.
	w := do(t, r, http.MethodPost, "/v1/session/key_down", `{"key":"enter"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failed dispatch = %d, want 502", w.Code)
	}
	m := decodeMap(t, w)
	if m["succeeded"] != false {
		t.Errorf("succeeded = %v, want false", m["succeeded"])
	}
}

func TestMouseEndpoints(t *testing.T) {
	backend := &fakeBackend{}
	r, _ := newTestRouter(t, backend, session.Raise)

	if w := do(t, r, http.MethodPost, "/v1/session/move_mouse", `{"x":10,"y":20}`); w.Code != http.StatusOK {
		t.Fatalf("move_mouse = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/v1/session/mouse_button_down", `{"button":"left"}`); w.Code != http.StatusOK {
		t.Fatalf("mouse_button_down = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/v1/session/mouse_button_up", `{"button":"left"}`); w.Code != http.StatusOK {
		t.Fatalf("mouse_button_up = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/v1/session/mouse_button_down", `{"button":"side"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown button = %d, want 400", w.Code)
	}

	want := []string{"move_mouse", "button_down left", "button_up left"}
	got := backend.Calls()
	if len(got) != len(want) {
		t.Fatalf("backend calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("backend calls = %v, want %v", got, want)
		}
	}
}

func TestScreenshotEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodGet, "/v1/session/screenshot", "")
	if w.Code != http.StatusOK {
		t.Fatalf("screenshot = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("content type = %q", got)
	}
	if w.Body.String() != "pixels" {
		t.Errorf("body = %q, want raw capture bytes", w.Body.String())
	}
}

func TestFrameEndpoint_ServesPlaceholderJPEG(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodGet, "/v1/session/frame", "")
	if w.Code != http.StatusOK {
		t.Fatalf("frame = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", got)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte{0xff, 0xd8}) {
		t.Error("frame body is not a JPEG")
	}
}

func TestRecordEndpoint_WithoutRepository(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, session.Raise)

	w := do(t, r, http.MethodGet, "/v1/session/record", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("record without repo = %d, want 404", w.Code)
	}
}
