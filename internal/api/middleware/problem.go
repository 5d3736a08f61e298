package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	// ProblemTypeBase prefixes the RFC 7807 type URI of every error response.
	ProblemTypeBase = "https://movie-explorer.dev/problems/"

	// ContentTypeProblemJSON is the media type of RFC 7807 bodies.
	ContentTypeProblemJSON = "application/problem+json"
)

// Problem is an RFC 7807 problem document (https://tools.ietf.org/html/rfc7807).
type Problem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblem builds a problem whose title is the standard status text.
func NewProblem(status int, detail string) *Problem {
	return &Problem{
		Type:   ProblemTypeBase + strconv.Itoa(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// WriteProblem fills the instance and correlation id from r and writes p.
func WriteProblem(w http.ResponseWriter, r *http.Request, logger *slog.Logger, p *Problem) {
	if p.CorrelationID == "" {
		p.CorrelationID = GetCorrelationID(r.Context())
	}

	if p.Instance == "" {
		p.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(p.Status)

	if err := json.NewEncoder(w).Encode(p); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", p.CorrelationID),
			slog.String("path", r.URL.Path),
			slog.Int("status", p.Status),
			slog.String("error", err.Error()),
		)
	}
}
