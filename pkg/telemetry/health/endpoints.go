package health

import (
	"encoding/json"
	"net/http"
)

// LivenessHandler returns the handler for the liveness probe.
//
// Example response:
//
//	{"status": "ok", "timestamp": "2026-01-20T10:30:00Z"}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns the handler for the readiness probe. It answers
// 503 Service Unavailable until every registered check passes.
//
// Example response (not ready):
//
//	{
//	    "status": "not_ready",
//	    "checks": {
//	        "policy_tree": {"status": "unhealthy", "message": "policy tree not loaded"},
//	        "audit_sink": {"status": "ok", "duration_ms": 0.4}
//	    },
//	    "timestamp": "2026-01-20T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())
		code := http.StatusOK
		if !status.Ready() {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, r, code, status)
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, status HealthStatus) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(status)
	}
}
