package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mhpenta/imagerelay"
	"github.com/mhpenta/imagerelay/comfy"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps the relay's typed errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case imagerelay.IsConfigError(err), imagerelay.IsValidationError(err):
		return http.StatusBadRequest
	case imagerelay.IsContentBlockedError(err):
		return http.StatusUnprocessableEntity
	case imagerelay.IsNotFoundError(err):
		return http.StatusNotFound
	case imagerelay.IsRateLimitError(err):
		return http.StatusTooManyRequests
	case imagerelay.IsTimeoutError(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case imagerelay.IsProviderError(err), imagerelay.IsSubmissionError(err), comfy.IsJobError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, statusFor(err), err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	level := s.logger.Warn
	if code >= http.StatusInternalServerError {
		level = s.logger.Error
	}
	level("request failed",
		"path", r.URL.Path,
		"status", code,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	s.json(w, code, errorResponse{Error: publicMessage(code, err), RequestID: middleware.GetReqID(r.Context())})
}

// publicMessage returns what a client may see of err. Untyped 4xx errors
// describe the request itself; other untyped errors become the status text.
func publicMessage(code int, err error) string {
	if msg, ok := imagerelay.PublicMessage(err); ok {
		return msg
	}
	if code < http.StatusInternalServerError {
		return err.Error()
	}
	return http.StatusText(code)
}
