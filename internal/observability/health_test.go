package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (c *stubChecker) Ping(ctx context.Context) error {
	return c.err
}

func TestHealthHandler_Health(t *testing.T) {
	h := NewHealthHandler()

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestHealthHandler_Ready_NotReadyUntilSet(t *testing.T) {
	h := NewHealthHandler()

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before SetReady = %d, want 503", rec.Code)
	}

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status after SetReady = %d, want 200", rec.Code)
	}
}

func TestHealthHandler_Ready_ReportsFailingCheck(t *testing.T) {
	h := NewHealthHandler()
	h.SetReady(true)
	h.AddCheck("database", &stubChecker{})
	h.AddCheck("cache", &stubChecker{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with a failing check", rec.Code)
	}
	var body ReadyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Checks["database"] != "ok" {
		t.Errorf("database check = %q, want ok", body.Checks["database"])
	}
	if body.Checks["cache"] != "connection refused" {
		t.Errorf("cache check = %q, want the error message", body.Checks["cache"])
	}
}
