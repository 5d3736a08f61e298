package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HeaderCorrelationID carries the request correlation id in both directions.
const HeaderCorrelationID = "X-Correlation-ID"

const maxCorrelationIDLength = 128

// correlationIDKey is the context key for correlation ID.
type correlationIDKey struct{}

// CorrelationID tags each request with the caller's X-Correlation-ID, or a fresh UUID when
// the header is absent or unusable, and echoes it in the response.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := strings.TrimSpace(r.Header.Get(HeaderCorrelationID))
			if correlationID == "" || len(correlationID) > maxCorrelationIDLength {
				correlationID = uuid.NewString()
			}

			w.Header().Set(HeaderCorrelationID, correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}
