package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery turns a handler panic into a logged 500 problem response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}

				logger.Error("HTTP request panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
					slog.Any("panic", recovered),
					slog.String("stack_trace", string(debug.Stack())),
				)

				WriteProblem(w, r, logger, NewProblem(http.StatusInternalServerError,
					"An unexpected error occurred while processing the request"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
