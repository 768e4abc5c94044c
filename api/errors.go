package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/c360studio/maclib/library"
)

// Error codes carried in the error envelope.
const (
	CodeNotFound         = "not_found"
	CodeValidationFailed = "validation_failed"
	CodeInvalidFormat    = "invalid_format"
	CodeInvalidJSON      = "invalid_json"
	CodeFileRequired     = "file_required"
	CodePayloadTooLarge  = "payload_too_large"
	CodeCanceled         = "canceled"
	CodeInternal         = "internal_error"
)

// APIError is the body of an error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError so clients can test for the "error" key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// MessageResponse acknowledges an operation that returns no resource.
type MessageResponse struct {
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// statusFor maps the engine's error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, library.ErrValidation):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, library.ErrInvalidFormat):
		return http.StatusBadRequest, CodeInvalidFormat
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCanceled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// fail logs server-side failures and writes the mapped error response.
func (s *Server) fail(c *gin.Context, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"op", op,
			"request_id", c.GetString(requestIDKey),
			"error", err)
	}
	respondError(c, status, code, err)
}
