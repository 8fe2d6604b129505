package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with a correlation id and installs a
// request-scoped logger in the context. An inbound X-Request-ID is honored so
// ids survive proxy hops; otherwise a fresh one is generated.
func RequestID(base *logger.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		log := base.WithRequestID(requestID)
		next(w, r.WithContext(log.ToContext(r.Context())))
	}
}
