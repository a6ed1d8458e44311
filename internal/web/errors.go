package web

// errors.go turns pipeline errors into JSON responses.
//
// The technical error is logged with the request ID; the client gets the
// mapped user message, its support code and, for pipeline failures, the
// stage and run ID.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/corpfetch/internal/core"
	"github.com/JonMunkholm/corpfetch/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Action     string `json:"action,omitempty"`
	Code       string `json:"code"`
	Stage      string `json:"stage,omitempty"`
	RunID      string `json:"runId,omitempty"`
}

// respondError logs err and writes its mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	resp := ErrorResponse{
		StatusCode: msg.Status,
		Message:    msg.Message,
		Action:     msg.Action,
		Code:       msg.Code,
	}

	var pErr *core.PipelineError
	if errors.As(err, &pErr) {
		resp.Stage = string(pErr.Stage)
		resp.RunID = pErr.RunID
	}

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"user_message", core.FormatUserError(err),
		"error", err.Error(),
	}
	// Unclassified errors log at Error.
	if core.IsUserFacing(err) {
		logger.Warn("request error", attrs...)
	} else {
		logger.Error("request error", attrs...)
	}

	if msg.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSONStatus(w, msg.Status, resp)
}
