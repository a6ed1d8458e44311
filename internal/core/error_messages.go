package core

// error_messages.go maps pipeline errors to user-facing messages with codes
// for support reference.
//
// # Error Codes Reference
//
//	DL001 - Download failed: the document server did not return the file
//	        Action: Check the city and district names, then try again
//	        HTTP 502
//
//	ENC001 - Encoding error: the document contains bytes invalid in its charset
//	         Action: The published file may be corrupt; try again later
//	         HTTP 422
//
//	SCH001 - Unexpected file layout: the document is empty or lacks a column
//	         Action: The published format may have changed; contact support
//	         HTTP 422
//
//	REG001 - Registry unavailable: the registration API call failed
//	         Action: Please try again in a few moments
//	         HTTP 502
//
//	TMO001 - Timeout: a download or registry call exceeded its deadline
//	         Action: Please try again later
//	         HTTP 504
//
//	REQ001 - Invalid request: city or district missing or malformed
//	         Action: Provide both city and district without path characters
//	         HTTP 400
//
//	FETCH001 - System busy: too many fetches in progress
//	           Action: Please wait a moment and try again
//	           HTTP 503
//
//	ERR000 - Unknown error: an unexpected error occurred
//	         Action: Please try again or contact support
//	         HTTP 500
//
// Typed errors are matched first with errors.As. Errors without a type fall
// back to case-insensitive substring patterns; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/corpfetch/internal/errs"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
	Status  int    // HTTP status for API responses
}

var (
	msgDownload = UserMessage{
		Message: "The document server did not return the requested file",
		Action:  "Check the city and district names, then try again",
		Code:    "DL001",
		Status:  http.StatusBadGateway,
	}
	msgEncoding = UserMessage{
		Message: "The downloaded file contains invalid characters",
		Action:  "The published file may be corrupt; try again later",
		Code:    "ENC001",
		Status:  http.StatusUnprocessableEntity,
	}
	msgSchema = UserMessage{
		Message: "The downloaded file has an unexpected layout",
		Action:  "The published format may have changed; contact support",
		Code:    "SCH001",
		Status:  http.StatusUnprocessableEntity,
	}
	msgRegistry = UserMessage{
		Message: "The business registration service could not be reached",
		Action:  "Please try again in a few moments",
		Code:    "REG001",
		Status:  http.StatusBadGateway,
	}
	msgTimeout = UserMessage{
		Message: "The operation timed out",
		Action:  "Please try again later",
		Code:    "TMO001",
		Status:  http.StatusGatewayTimeout,
	}
	msgRequest = UserMessage{
		Message: "The request is missing or has an invalid city or district",
		Action:  "Provide both city and district without path characters",
		Code:    "REQ001",
		Status:  http.StatusBadRequest,
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other fetches",
		Action:  "Please wait a moment and try again",
		Code:    "FETCH001",
		Status:  http.StatusServiceUnavailable,
	}
)

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
	Status:  http.StatusInternalServerError,
}

// errorPattern maps an untyped error substring to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{pattern: "too many concurrent fetches", msg: msgBusy},
	{pattern: "invalid request", msg: msgRequest},
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
	{pattern: "encoding error", msg: msgEncoding},
	{pattern: "schema error", msg: msgSchema},
}

// MapError converts an error to a user-facing message.
//
//	msg := MapError(&errs.DownloadError{StatusCode: 404})
//	// msg.Code == "DL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		timeoutErr  *errs.TimeoutError
		downloadErr *errs.DownloadError
		encodingErr *errs.EncodingError
		schemaErr   *errs.SchemaError
		registryErr *errs.RegistryFetchError
	)
	switch {
	case errors.Is(err, ErrTooManyFetches):
		return msgBusy
	case errors.Is(err, ErrInvalidRequest):
		return msgRequest
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.As(err, &downloadErr), errors.Is(err, ErrDocumentTooLarge):
		return msgDownload
	case errors.As(err, &encodingErr):
		return msgEncoding
	case errors.As(err, &schemaErr):
		return msgSchema
	case errors.As(err, &registryErr):
		return msgRegistry
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
