package core

// error_messages.go maps technical errors to user-friendly messages with
// codes for support reference. The CLI summary and the HTTP API both
// report failures through MapError so a user can quote the code.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Commit conflict: the store kept rejecting the transaction
//	         Action: Retry the import or raise IMPORT_MAX_ATTEMPTS
//	IMP002 - Malformed group: values do not line up with the header
//	         Action: Check the line for missing or extra delimiters
//	IMP003 - Unknown format: no source exists for the requested format
//	         Action: Use csv, tsv, json or xlsx
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Connection refused
//	STORE002 - Connection reset
//	STORE003 - Timeout
//	STORE004 - Store busy (too many connections / pool exhausted)
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - File not found
//	FILE003 - Empty file
//	FILE004 - No file provided
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Too many imports in progress
//	REQ002 - Request cancelled
//	REQ003 - Request timed out
//	REQ004 - Rate limit exceeded (HTTP only)
//	REQ005 - Invalid request parameters
//
// Fallback: ERR000.
//
// Typed errors are matched first with errors.Is / errors.As; string patterns
// are matched case-insensitively after that and the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgCommitConflict = UserMessage{
		Message: "The store could not commit the import",
		Action:  "Retry the import or raise IMPORT_MAX_ATTEMPTS",
		Code:    "IMP001",
	}
	msgMalformed = UserMessage{
		Message: "A line does not match the file header",
		Action:  "Check the reported line for missing or extra delimiters",
		Code:    "IMP002",
	}
	msgUnknownFormat = UserMessage{
		Message: "Unsupported import format",
		Action:  "Use csv, tsv, json or xlsx",
		Code:    "IMP003",
	}
	msgFileNotFound = UserMessage{
		Message: "File not found",
		Action:  "Check the path passed to --data",
		Code:    "FILE002",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ002",
	}
	msgDeadline = UserMessage{
		Message: "Request timed out",
		Action:  "Try importing a smaller file or try again later",
		Code:    "REQ003",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "unknown format",
		msg:     msgUnknownFormat,
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the store",
			Action:  "Please try again in a few moments",
			Code:    "STORE001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Store connection was interrupted",
			Action:  "Please try again",
			Code:    "STORE002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Store operation timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "STORE003",
		},
	},
	{
		pattern: "too many connections",
		msg: UserMessage{
			Message: "The store is busy",
			Action:  "Lower IMPORT_WORKERS or try again later",
			Code:    "STORE004",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Provide a file with a header and data",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Attach the file as the 'file' form field",
			Code:    "FILE004",
		},
	},
	{
		pattern: "too many imports",
		msg: UserMessage{
			Message: "Too many imports in progress",
			Action:  "Please wait a moment and try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "rate limit exceeded",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Wait a minute before retrying",
			Code:    "REQ004",
		},
	},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request parameters are invalid",
			Action:  "Check the form fields and the delimiter",
			Code:    "REQ005",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	switch {
	case errors.Is(err, ErrCommitConflict):
		return msgCommitConflict
	case IsMalformed(err):
		return msgMalformed
	case errors.Is(err, os.ErrNotExist):
		return msgFileNotFound
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgDeadline
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

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
