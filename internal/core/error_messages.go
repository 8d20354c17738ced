package core

// Error codes shown to users of the workflow endpoints and CLI. Users quote
// the code to support; support looks it up here and checks the logs for the
// technical error.
//
// # Database (DB001-DB099)
//
//	DB001 - Duplicate key            "duplicate key"
//	DB002 - Unique constraint        "unique constraint", "violates unique"
//	DB003 - Connection refused       "connection refused"
//	DB004 - Connection reset         "connection reset"
//	DB005 - Deadlock                 "deadlock"
//	DB006 - Missing schema or table  "does not exist"
//
// # Files (FILE001-FILE099)
//
//	FILE001 - File too large         "file too large"
//	FILE002 - Invalid CSV            "invalid csv"
//	FILE003 - Unsupported format     "unsupported file format"
//	FILE004 - No file                "no file provided"
//	FILE005 - Empty file             "empty file"
//	FILE006 - Manifest anchor        "manifest has no include"
//	FILE007 - Fragment exists        "file exists"
//
// # Workflow (WF001-WF099)
//
//	WF001 - Missing column           "missing required column"
//	WF002 - Invalid request          "invalid request"
//	WF003 - Unknown workflow         "unknown workflow"
//	WF004 - System busy              "too many workflow runs"
//	WF005 - Cancelled                "context canceled"
//	WF006 - Timed out                "context deadline exceeded", "timeout"
//	WF007 - Missing sheet            "sheet not found"
//
// # Configuration (CFG001-CFG099)
//
//	CFG001 - Unknown tenant          "unknown tenant"
//	CFG002 - No rule schema          "has no schema"
//
// # Rate limiting
//
//	RATE001 - Too many requests      "rate limit"
//
// ERR000 is the fallback. Patterns match case-insensitively and the first
// match wins, so specific patterns sit above general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Database
	{"duplicate key", UserMessage{"A record with this ID already exists", "Check the store for rows applied outside the generator", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check the store for rows applied outside the generator", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Check the store for rows applied outside the generator", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"does not exist", UserMessage{"A configuration schema or table is missing", "Check the tenant schema names in the tenants file", "DB006"}},

	// Files
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the request file into smaller batches", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with consistent columns", "FILE002"}},
	{"unsupported file format", UserMessage{"File format is not supported", "Upload an .xlsx, .xlsm or .csv file", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Select both the catalog workbook and the request file", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a file with a header row and data rows", "FILE005"}},
	{"manifest has no include", UserMessage{"The tenant changelog manifest could not be updated", "Add an include line to the manifest and run again", "FILE006"}},
	{"file exists", UserMessage{"A changelog file with this version already exists", "Run again; the next free version will be used", "FILE007"}},

	// Workflow
	{"missing required column", UserMessage{"Required column is missing from the request file", "Check that all required columns are present in your file", "WF001"}},
	{"invalid request", UserMessage{"The request file could not be read", "Check the request rows and try again", "WF002"}},
	{"unknown workflow", UserMessage{"Unknown workflow", "Use add-update or configure", "WF003"}},
	{"too many workflow runs", UserMessage{"System is busy processing other runs", "Please wait a moment and try again", "WF004"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "WF005"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller request file or try again later", "WF006"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller request file or try again later", "WF006"}},
	{"sheet not found", UserMessage{"Expected sheet not found in the workbook", "Check the sheet names of the catalog workbook", "WF007"}},

	// Configuration
	{"unknown tenant", UserMessage{"Unknown tenant in request file", "Use one of the configured tenant names or aliases", "CFG001"}},
	{"has no schema", UserMessage{"Tenant has no configuration schema", "Configure rules against a client tenant", "CFG002"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Unmatched
// errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError keeps the technical error for logs and a mapped message for display.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
