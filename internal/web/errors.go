package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as a coded, user-friendly JSON message
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusCode)
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is written as an ErrorResponse

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/logging"
	"github.com/JonMunkholm/recordimport/internal/source"
)

var (
	errNoFile     = errors.New("no file provided")
	errEmptyFile  = errors.New("empty file")
	errBadRequest = errors.New("invalid request")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`

	// Report holds what was committed before a file stopped.
	Report *ImportResponse `json:"report,omitempty"`
}

// respondError handles error responses with user-friendly messages.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	s.respondErrorReport(w, r, err, statusCode, nil)
}

func (s *Server) respondErrorReport(w http.ResponseWriter, r *http.Request, err error, statusCode int, report *ImportResponse) {
	userMsg := core.MapError(err)
	requestID := middleware.GetReqID(r.Context())

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:     userMsg.Message,
		Message:   userMsg.Message,
		Action:    userMsg.Action,
		Code:      userMsg.Code,
		RequestID: requestID,
		Report:    report,
	})
}

// statusFor picks the HTTP status for an import failure.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, source.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case core.IsMalformed(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrCommitConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, errNoFile), errors.Is(err, errEmptyFile), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
