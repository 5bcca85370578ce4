package reqcontext

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	headerTraceID   = "X-Trace-ID"
	headerRequestID = "X-Request-ID"
)

// Middleware reads X-Trace-ID/X-Request-ID off the inbound request,
// generating either that is missing, stores both on the request
// context, and echoes them back on the response so a caller can
// correlate logs across services.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(headerTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := WithTraceID(r.Context(), traceID)
		ctx = WithRequestID(ctx, requestID)

		w.Header().Set(headerTraceID, traceID)
		w.Header().Set(headerRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
