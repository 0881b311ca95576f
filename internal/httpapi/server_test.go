package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type mockBackendStatus struct{ joined bool }

func (m *mockBackendStatus) IsJoined() bool { return m.joined }

type mockStreamStatus struct{ running bool }

func (m *mockStreamStatus) Running() bool { return m.running }

type mockDBChecker struct{ err error }

func (m *mockDBChecker) Ping(_ context.Context) error { return m.err }

func newTestServer(backendJoined, streamRunning bool) *Server {
	logger := zap.NewNop()
	bs := &mockBackendStatus{joined: backendJoined}
	ss := &mockStreamStatus{running: streamRunning}
	return NewServer(":0", nil, bs, ss, logger)
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(false, false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", body["status"])
	}
}

func TestReadyz_NotReady_BackendNotJoined(t *testing.T) {
	s := newTestServer(false, true)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["backend"] != "not_joined" {
		t.Errorf("expected backend 'not_joined', got '%v'", checks["backend"])
	}
}

func TestReadyz_NotReady_StreamStopped(t *testing.T) {
	s := newTestServer(true, false)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	checks := body["checks"].(map[string]any)
	if checks["stream"] != "stopped" {
		t.Errorf("expected stream 'stopped', got '%v'", checks["stream"])
	}
}

func TestReadyz_AllHealthy_NoOptionalChecks(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer(":0", nil, nil, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when no optional checks are configured, got %d", w.Code)
	}
}

func TestReadyz_DBDown(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer(":0", nil, nil, nil, logger)
	s.dbChecker = &mockDBChecker{err: context.DeadlineExceeded}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestReadyz_ContentType(t *testing.T) {
	s := newTestServer(true, true)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
}
