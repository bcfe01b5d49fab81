package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckLiveness(t *testing.T) {
	status := New(0).CheckLiveness(context.Background())
	if status.Status != StatusOK {
		t.Errorf("status = %q, want %q", status.Status, StatusOK)
	}
}

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{
			name:   "no checks",
			checks: nil,
			want:   StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"policy_tree": func(context.Context) error { return nil },
				"audit_sink":  func(context.Context) error { return nil },
			},
			want: StatusReady,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"policy_tree": func(context.Context) error { return errors.New("policy tree not loaded") },
				"audit_sink":  func(context.Context) error { return nil },
			},
			want: StatusNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			for name, check := range tt.checks {
				checker.RegisterCheck(name, check)
			}

			status := checker.CheckReadiness(context.Background())
			if status.Status != tt.want {
				t.Errorf("status = %q, want %q", status.Status, tt.want)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("got %d check results, want %d", len(status.Checks), len(tt.checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	status := checker.CheckReadiness(context.Background())
	if status.Checks["slow"].Status != StatusUnhealthy {
		t.Errorf("slow check status = %q, want unhealthy", status.Checks["slow"].Status)
	}
}

func TestListChecks(t *testing.T) {
	checker := New(0)
	checker.RegisterCheck("b", func(context.Context) error { return nil })
	checker.RegisterCheck("a", func(context.Context) error { return nil })

	names := checker.ListChecks()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("ListChecks() = %v, want [a b]", names)
	}
}

func TestReadinessHandler(t *testing.T) {
	ready := false
	checker := New(time.Second)
	checker.RegisterCheck("policy_tree", func(context.Context) error {
		if !ready {
			return errors.New("policy tree not loaded")
		}
		return nil
	})
	handler := checker.ReadinessHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d before load, want 503", rec.Code)
	}

	var body HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Checks["policy_tree"].Message != "policy tree not loaded" {
		t.Errorf("check message = %q", body.Checks["policy_tree"].Message)
	}

	ready = true
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d after load, want 200", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodHead, http.StatusOK},
		{http.MethodPost, http.StatusMethodNotAllowed},
	}

	handler := New(0).LivenessHandler()
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, "/health", nil))
		if rec.Code != tt.want {
			t.Errorf("%s /health = %d, want %d", tt.method, rec.Code, tt.want)
		}
	}
}
