package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pointstore/internal/handler"
	"github.com/josh-kwaku/pointstore/internal/logging"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log := logging.FromContext(r.Context())
				log.Error("panic recovered", "error", rec, "path", r.URL.Path, "stack", string(debug.Stack()))

				span := trace.SpanFromContext(r.Context())
				span.SetStatus(codes.Error, fmt.Sprint(rec))

				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
