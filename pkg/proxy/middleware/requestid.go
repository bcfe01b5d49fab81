package middleware

import (
	"context"
	"net/http"

	"mercator-hq/luthien/pkg/telemetry/logging"

	"github.com/google/uuid"
)

// RequestIDHeader is the HTTP header for the request ID.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied IDs.
const maxRequestIDLength = 128

// RequestIDMiddleware accepts the client's X-Request-ID when it is
// well-formed, or generates a UUID, and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts printable ASCII without spaces, so IDs are safe to
// log and echo.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// GetRequestID returns the request ID stored by RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
