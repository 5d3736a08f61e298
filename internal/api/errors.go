package api

import (
	"net/http"

	"github.com/movie-explorer/catalog-ingest/internal/api/middleware"
)

// ProblemDetail is the body of every ops server error response.
type ProblemDetail = middleware.Problem

func (s *Server) writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	middleware.WriteProblem(w, r, s.logger, middleware.NewProblem(status, detail))
}
